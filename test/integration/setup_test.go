// Package integration exercises the server end to end over real HTTP and
// WebSocket connections.
package integration

import (
	"net/http/httptest"
	"testing"

	"github.com/hideout-chat/hideout-server/internal/server"
	"github.com/hideout-chat/hideout-server/test/testhelpers"
)

// startServer brings up a hub behind a test HTTP server. The configuration
// is installed before the hub is created so admission and rate limits take
// effect, then refreshed with the server URL as an allowed origin.
func startServer(t *testing.T, customize func(cfg *server.Config)) (*server.Hub, *httptest.Server) {
	t.Helper()
	testhelpers.ConfigureForTest(t, "", customize)

	hub := server.NewHub()
	ts := testhelpers.CreateTestServer(server.SetupRoutes(hub))
	t.Cleanup(ts.Close)

	testhelpers.ConfigureForTest(t, ts.URL, customize)
	return hub, ts
}
