// Package testhelpers provides common utilities for testing the chat
// server: test HTTP servers, WebSocket dialing, and event-stream helpers
// shared across unit and integration tests.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hideout-chat/hideout-server/internal/server"
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// ConfigureForTest installs a test configuration whose allowed origins
// include the test server URL, applies the caller's overrides, and restores
// defaults on cleanup.
func ConfigureForTest(t *testing.T, baseURL string, customize func(cfg *server.Config)) {
	t.Helper()
	cfg := server.NewConfig()
	if baseURL != "" {
		cfg.AllowedOrigins = append([]string{baseURL}, cfg.AllowedOrigins...)
	}
	if customize != nil {
		customize(cfg)
	}
	server.SetConfig(cfg)
	t.Cleanup(func() {
		server.SetConfig(nil)
	})
}

// DialWS opens a WebSocket connection to the test server's /ws endpoint
// with an allowed Origin header.
func DialWS(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	header := http.Header{}
	header.Set("Origin", baseURL)

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes one event envelope to the connection.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	env, err := server.NewEnvelope(event, data)
	if err != nil {
		t.Fatalf("Failed to build %q envelope: %v", event, err)
	}
	frame, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Failed to marshal %q envelope: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("Failed to send %q event: %v", event, err)
	}
}

// ReadEvent reads frames until it sees the wanted event, skipping others,
// and returns its raw payload. It fails the test on timeout.
func ReadEvent(t *testing.T, conn *websocket.Conn, want string, timeout time.Duration) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("Failed to set read deadline: %v", err)
		}
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Did not receive %q event: %v", want, err)
		}
		var env server.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("Received invalid frame: %v", err)
		}
		if env.Event == want {
			return env.Data
		}
	}
}

// DecodeInto unmarshals a raw payload into out.
func DecodeInto(t *testing.T, raw json.RawMessage, out any) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("Failed to decode payload %s: %v", string(raw), err)
	}
}

// DrainEvents collects every frame currently queued on a test client's send
// channel, decoded into envelopes. It never blocks; unit tests call it
// after a synchronous dispatch.
func DrainEvents(t *testing.T, ch <-chan []byte) []server.Envelope {
	t.Helper()
	var out []server.Envelope
	for {
		select {
		case frame, ok := <-ch:
			if !ok {
				return out
			}
			var env server.Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				t.Fatalf("Invalid frame on send channel: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

// FindEvent returns the first envelope with the given name and whether one
// was present.
func FindEvent(envs []server.Envelope, event string) (server.Envelope, bool) {
	for _, env := range envs {
		if env.Event == event {
			return env, true
		}
	}
	return server.Envelope{}, false
}

// CountEvents counts envelopes with the given name.
func CountEvents(envs []server.Envelope, event string) int {
	n := 0
	for _, env := range envs {
		if env.Event == event {
			n++
		}
	}
	return n
}
