package unit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hideout-chat/hideout-server/internal/server"
	"github.com/hideout-chat/hideout-server/test/testhelpers"
)

func TestMessageQuotaEnforced(t *testing.T) {
	h := newTestHub(t, func(cfg *server.Config) {
		cfg.RateLimit.Messages = 3
		cfg.RateLimit.Window = time.Minute
	})
	sender := connect(t, h)
	observer := connect(t, h)
	joinRoom(t, h, sender, server.ModeRandom, "")
	joinRoom(t, h, observer, server.ModeRandom, "")
	drain(t, sender)
	drain(t, observer)

	for i := 0; i < 4; i++ {
		sendChat(t, h, sender, fmt.Sprintf("message %d", i))
	}

	events := drain(t, sender)
	assert.Equal(t, 3, testhelpers.CountEvents(events, server.EventChatMessage))
	require.Equal(t, 1, testhelpers.CountEvents(events, server.EventRateLimited))

	// The limited message never reaches the room.
	assert.Equal(t, 3, testhelpers.CountEvents(drain(t, observer), server.EventChatMessage))
}

func TestMessageQuotaResetsAfterWindow(t *testing.T) {
	h := newTestHub(t, func(cfg *server.Config) {
		cfg.RateLimit.Messages = 1
		cfg.RateLimit.Window = 50 * time.Millisecond
	})
	sender := connect(t, h)
	joinRoom(t, h, sender, server.ModeRandom, "")
	drain(t, sender)

	sendChat(t, h, sender, "first")
	sendChat(t, h, sender, "blocked")
	events := drain(t, sender)
	assert.Equal(t, 1, testhelpers.CountEvents(events, server.EventChatMessage))
	assert.Equal(t, 1, testhelpers.CountEvents(events, server.EventRateLimited))

	time.Sleep(80 * time.Millisecond)

	sendChat(t, h, sender, "fresh window")
	events = drain(t, sender)
	assert.Equal(t, 1, testhelpers.CountEvents(events, server.EventChatMessage))
	assert.Equal(t, 0, testhelpers.CountEvents(events, server.EventRateLimited))
}

func TestRejectedContentDoesNotConsumeQuota(t *testing.T) {
	h := newTestHub(t, func(cfg *server.Config) {
		cfg.RateLimit.Messages = 2
		cfg.RateLimit.Window = time.Minute
	})
	sender := connect(t, h)
	joinRoom(t, h, sender, server.ModeRandom, "")
	drain(t, sender)

	for i := 0; i < 5; i++ {
		sendChat(t, h, sender, "   ")
	}
	events := drain(t, sender)
	assert.Equal(t, 5, testhelpers.CountEvents(events, server.EventRejected))
	assert.Equal(t, 0, testhelpers.CountEvents(events, server.EventRateLimited))

	// The full quota is still available for valid messages.
	sendChat(t, h, sender, "one")
	sendChat(t, h, sender, "two")
	events = drain(t, sender)
	assert.Equal(t, 2, testhelpers.CountEvents(events, server.EventChatMessage))
	assert.Equal(t, 0, testhelpers.CountEvents(events, server.EventRateLimited))
}

func TestDenylistedContentRejected(t *testing.T) {
	h := newTestHub(t, func(cfg *server.Config) {
		cfg.Denylist = []string{"blocked"}
	})
	sender := connect(t, h)
	observer := connect(t, h)
	joinRoom(t, h, sender, server.ModeRandom, "")
	joinRoom(t, h, observer, server.ModeRandom, "")
	drain(t, sender)
	drain(t, observer)

	sendChat(t, h, sender, "this is BloCkEd content")

	events := drain(t, sender)
	assert.Equal(t, 1, testhelpers.CountEvents(events, server.EventRejected), "matching is case-insensitive")
	assert.Equal(t, 0, testhelpers.CountEvents(drain(t, observer), server.EventChatMessage))
}

func TestOverlongMessageRejected(t *testing.T) {
	h := newTestHub(t, func(cfg *server.Config) {
		cfg.MaxMessageLen = 5
	})
	sender := connect(t, h)
	joinRoom(t, h, sender, server.ModeRandom, "")
	drain(t, sender)

	sendChat(t, h, sender, "this one is far too long")
	events := drain(t, sender)
	assert.Equal(t, 1, testhelpers.CountEvents(events, server.EventRejected))
	assert.Equal(t, 0, testhelpers.CountEvents(events, server.EventChatMessage))
}

func TestAdmissionPerIPCap(t *testing.T) {
	h := newTestHub(t, func(cfg *server.Config) {
		cfg.Admission.MaxPerIP = 2
	})

	assert.True(t, h.AdmitConnection("203.0.113.7:1001"))
	assert.True(t, h.AdmitConnection("203.0.113.7:1002"))
	assert.False(t, h.AdmitConnection("203.0.113.7:1003"), "third connection from the same address is refused")
	assert.True(t, h.AdmitConnection("203.0.113.8:1001"), "other addresses are unaffected")
}

func TestAdmissionTotalCap(t *testing.T) {
	h := newTestHub(t, func(cfg *server.Config) {
		cfg.Admission.MaxPerIP = 10
		cfg.Admission.MaxTotal = 2
	})

	assert.True(t, h.AdmitConnection("198.51.100.1:1001"))
	assert.True(t, h.AdmitConnection("198.51.100.2:1001"))
	assert.False(t, h.AdmitConnection("198.51.100.3:1001"))
}

func TestDisconnectFreesAdmissionSlot(t *testing.T) {
	h := newTestHub(t, func(cfg *server.Config) {
		cfg.Admission.MaxPerIP = 1
	})

	addr := "203.0.113.9:2001"
	require.True(t, h.AdmitConnection(addr))
	c := h.Register(nil, addr)
	assert.False(t, h.AdmitConnection("203.0.113.9:2002"))

	h.Disconnect(c)
	assert.True(t, h.AdmitConnection("203.0.113.9:2002"), "the slot is released on disconnect")
}
