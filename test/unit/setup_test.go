// Package unit contains unit tests for individual components of the chat
// server core.
//
// These tests drive the hub directly with connectionless clients: every
// dispatch is synchronous, so outbound events are read back from the
// clients' send channels without sleeping or polling.
package unit

import (
	"fmt"
	"testing"

	"github.com/hideout-chat/hideout-server/internal/server"
	"github.com/hideout-chat/hideout-server/test/testhelpers"
)

var addrCounter int

// newTestHub applies a test configuration and returns a fresh hub.
// Background sweeps are not started; grace and typing timers work without
// them.
func newTestHub(t *testing.T, customize func(cfg *server.Config)) *server.Hub {
	t.Helper()
	cfg := server.NewConfig()
	if customize != nil {
		customize(cfg)
	}
	server.SetConfig(cfg)
	t.Cleanup(func() {
		server.SetConfig(nil)
	})
	return server.NewHub()
}

// connect registers a connectionless client with a unique fake address.
func connect(t *testing.T, h *server.Hub) *server.Client {
	t.Helper()
	addrCounter++
	return h.Register(nil, fmt.Sprintf("10.0.0.%d:4242", addrCounter))
}

func dispatch(t *testing.T, h *server.Hub, c *server.Client, event string, data any) {
	t.Helper()
	env, err := server.NewEnvelope(event, data)
	if err != nil {
		t.Fatalf("Failed to build %q envelope: %v", event, err)
	}
	h.Dispatch(c, env)
}

func joinRoom(t *testing.T, h *server.Hub, c *server.Client, mode, room string) {
	t.Helper()
	dispatch(t, h, c, server.EventJoinMode, server.JoinRequest{Mode: mode, Room: room})
}

func sendChat(t *testing.T, h *server.Hub, c *server.Client, text string) {
	t.Helper()
	dispatch(t, h, c, server.EventChatMessage, text)
}

// drain empties the client's send channel into decoded envelopes.
func drain(t *testing.T, c *server.Client) []server.Envelope {
	t.Helper()
	return testhelpers.DrainEvents(t, c.GetSendChan())
}
