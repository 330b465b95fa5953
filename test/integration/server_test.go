package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hideout-chat/hideout-server/internal/server"
	"github.com/hideout-chat/hideout-server/test/testhelpers"
)

func TestHealthEndpoint(t *testing.T) {
	_, ts := startServer(t, nil)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "running")
}

func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	_, ts := startServer(t, nil)

	resp, err := http.Post(ts.URL+"/ws", "text/plain", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	_, ts := startServer(t, nil)

	conn := testhelpers.DialWS(t, ts.URL)
	testhelpers.ReadEvent(t, conn, server.EventWelcome, eventTimeout)
	testhelpers.SendEvent(t, conn, server.EventJoinMode, server.JoinRequest{Mode: server.ModeRandom})
	testhelpers.ReadEvent(t, conn, server.EventRoomUpdate, eventTimeout)

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var stats server.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, 1, stats.Rooms)
	assert.Equal(t, 0, stats.Waiting)
	assert.Equal(t, 0, stats.ActivePairs)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, int64(0))
}

func TestGracefulShutdown(t *testing.T) {
	hub, ts := startServer(t, nil)
	go hub.Run()

	conn := testhelpers.DialWS(t, ts.URL)
	testhelpers.ReadEvent(t, conn, server.EventWelcome, eventTimeout)

	require.NoError(t, hub.Shutdown(3*time.Second))
	assert.Equal(t, 0, hub.Stats().Users)

	// The server side closed the connection; the next read fails.
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
