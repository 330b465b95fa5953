package integration

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hideout-chat/hideout-server/internal/server"
	"github.com/hideout-chat/hideout-server/test/testhelpers"
)

func wsURL(t *testing.T, baseURL string) string {
	t.Helper()
	u, err := url.Parse(baseURL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/ws"
	return u.String()
}

func TestDisallowedOriginRefused(t *testing.T) {
	_, ts := startServer(t, nil)

	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(t, ts.URL), header)
	require.Error(t, err)
	if conn != nil {
		_ = conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWildcardOriginAllowsAny(t *testing.T) {
	_, ts := startServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"*"}
	})

	header := http.Header{}
	header.Set("Origin", "http://anywhere.example.com")

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(t, ts.URL), header)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	testhelpers.ReadEvent(t, conn, server.EventWelcome, eventTimeout)
}

func TestConnectionCapReturns503(t *testing.T) {
	_, ts := startServer(t, func(cfg *server.Config) {
		cfg.Admission.MaxPerIP = 1
	})

	first := testhelpers.DialWS(t, ts.URL)
	testhelpers.ReadEvent(t, first, server.EventWelcome, eventTimeout)

	header := http.Header{}
	header.Set("Origin", ts.URL)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(t, ts.URL), header)
	require.Error(t, err)
	if conn != nil {
		_ = conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSlotFreedAfterDisconnect(t *testing.T) {
	hub, ts := startServer(t, func(cfg *server.Config) {
		cfg.Admission.MaxPerIP = 1
	})

	first := testhelpers.DialWS(t, ts.URL)
	testhelpers.ReadEvent(t, first, server.EventWelcome, eventTimeout)
	require.NoError(t, first.Close())

	require.Eventually(t, func() bool {
		return hub.Stats().Users == 0
	}, eventTimeout, 20*time.Millisecond)

	second := testhelpers.DialWS(t, ts.URL)
	testhelpers.ReadEvent(t, second, server.EventWelcome, eventTimeout)
}
