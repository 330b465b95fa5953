// Package server coordinates the whole chat core through the Hub type: it
// owns the connection registry, room manager, matchmaking queue, typing
// tracker, and rate limiter, and routes every inbound event to them under a
// single serialization domain.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub is the event dispatcher and the single owner of all mutable chat
// state. Every inbound event handler runs entirely under mu, so concurrent
// connection events never interleave within one logical operation.
type Hub struct {
	mu       sync.Mutex
	registry *registry
	rooms    *roomManager
	queue    *matchQueue
	typing   *typingTracker
	msgRate  *messageLimiter
	gate     *admissionGate

	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewHub creates a Hub with all component state initialized from the active
// configuration. Call Run in a goroutine to start the background sweeps.
func NewHub() *Hub {
	cfg := currentConfig()
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:  newRegistry(),
		rooms:     newRoomManager(),
		queue:     newMatchQueue(),
		typing:    newTypingTracker(),
		msgRate:   newMessageLimiter(cfg.RateLimit.Messages, cfg.RateLimit.Window),
		gate:      newAdmissionGate(cfg.Admission.MaxPerIP, cfg.Admission.MaxTotal),
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// AdmitConnection reserves an admission slot for the remote address. It is
// checked before any identity is assigned; a rejected connection never
// reaches the registry.
func (h *Hub) AdmitConnection(addr string) bool {
	return h.gate.admit(hostOnly(addr))
}

// Register creates the client identity, adds it to the registry, sends the
// welcome event, and starts the connection pumps. conn may be nil in tests.
func (h *Hub) Register(conn *websocket.Conn, addr string) *Client {
	c := NewClient(conn, h, addr)

	h.mu.Lock()
	h.registry.add(c)
	count := h.registry.count()
	c.trySend(encodeEvent(EventWelcome, WelcomePayload{Nickname: c.nickname, Avatar: c.avatar}))
	h.mu.Unlock()

	log.Printf("Client %s registered from %s. Total clients: %d", c.nickname, addr, count)

	if conn != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			c.writePump()
		}()
		go func() {
			defer h.wg.Done()
			c.readPump()
		}()
	}
	return c
}

// Dispatch routes one inbound event to its handler. Unknown events are
// logged and dropped; malformed payloads are treated as client desync.
func (h *Hub) Dispatch(c *Client, env Envelope) {
	switch env.Event {
	case EventJoinMode:
		var req JoinRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			log.Printf("Invalid joinMode payload from %s: %v", c.addr, err)
			return
		}
		h.handleJoinMode(c, req)
	case EventChatMessage:
		var text string
		if err := json.Unmarshal(env.Data, &text); err != nil {
			log.Printf("Invalid chat payload from %s: %v", c.addr, err)
			return
		}
		h.handleChat(c, text)
	case EventTyping:
		h.handleTyping(c)
	case EventStopTyping:
		h.handleStopTyping(c)
	case EventJoin1v1:
		h.handleJoin1v1(c)
	case EventSkip1v1:
		h.handleSkip(c)
	case EventLeave1v1:
		h.handleLeave1v1(c)
	case EventPing:
		h.handlePing(c)
	default:
		log.Printf("Unknown event %q from %s", env.Event, c.addr)
	}
}

// handleJoinMode moves the client into the room derived from the requested
// mode. Any matchmaking state is torn down first; a client is never in a
// room and the queue at once.
func (h *Hub) handleJoinMode(c *Client, req JoinRequest) {
	name, ok := deriveRoomName(req.Mode, req.Room)
	if !ok {
		log.Printf("Ignoring joinMode with mode %q from %s", req.Mode, c.addr)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.registry.contains(c) {
		return
	}
	h.leaveMatchmakingLocked(c)

	if r, in := h.rooms.roomOf(c); in && r.name == name {
		return
	}
	h.leaveRoomLocked(c, true)

	r := h.rooms.add(c, name, false)
	h.broadcastRoomUpdateLocked(r)
	h.broadcastSystemLocked(r, c.nickname+" joined the chat")
}

// handleChat validates, rate-checks, and broadcasts one chat message. The
// content gate runs before rate accounting so malformed input never
// consumes quota; a sender with no room is a silent no-op.
func (h *Hub) handleChat(c *Client, text string) {
	cfg := currentConfig()

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.registry.contains(c) {
		return
	}

	trimmed, valid := validateMessage(text, cfg.MaxMessageLen, cfg.Denylist)
	if !valid {
		c.trySend(encodeEvent(EventRejected, NoticePayload{Message: "Message rejected: empty, too long, or not allowed."}))
		return
	}

	if !h.msgRate.allow(c.id, time.Now()) {
		c.trySend(encodeEvent(EventRateLimited, NoticePayload{Message: "You're sending messages too fast. Give it a moment."}))
		return
	}

	r, in := h.rooms.roomOf(c)
	if !in {
		return
	}

	r.messageCount++
	r.lastActive = time.Now()
	frame := encodeEvent(EventChatMessage, ChatPayload{
		Nickname:  c.nickname,
		Avatar:    c.avatar,
		Msg:       truncateMessage(trimmed, cfg.MaxMessageLen),
		Timestamp: nowMillis(),
		Type:      MessageTypeUser,
	})
	h.broadcastFrameLocked(r, frame, nil)

	// Sending a message ends the sender's typing state.
	if h.typing.clear(r.name, c.nickname) {
		h.broadcastFrameLocked(r, encodeEvent(EventStopTyping, c.nickname), c)
	}
}

func (h *Hub) handleTyping(c *Client) {
	cfg := currentConfig()

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.registry.contains(c) {
		return
	}
	r, in := h.rooms.roomOf(c)
	if !in {
		return
	}

	roomName, nickname := r.name, c.nickname
	isNew := h.typing.arm(roomName, nickname, cfg.TypingQuietPeriod, func(gen uint64) {
		h.typingExpired(roomName, nickname, gen)
	})
	if isNew {
		h.broadcastFrameLocked(r, encodeEvent(EventTyping, nickname), c)
	}
}

func (h *Hub) handleStopTyping(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.registry.contains(c) {
		return
	}
	r, in := h.rooms.roomOf(c)
	if !in {
		return
	}
	if h.typing.clear(r.name, c.nickname) {
		h.broadcastFrameLocked(r, encodeEvent(EventStopTyping, c.nickname), c)
	}
}

// typingExpired is the quiet-period timer callback. The generation check
// makes a stale timer a no-op when a fresh signal re-armed the entry.
func (h *Hub) typingExpired(roomName, nickname string, gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.typing.expire(roomName, nickname, gen) {
		return
	}
	if r, ok := h.rooms.get(roomName); ok {
		h.broadcastFrameLocked(r, encodeEvent(EventStopTyping, nickname), nil)
	}
}

// handleJoin1v1 appends the client to the waiting queue and immediately
// attempts a match. Already waiting or paired is a no-op.
func (h *Hub) handleJoin1v1(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.registry.contains(c) {
		return
	}
	if h.queue.isWaiting(c) || h.queue.isPaired(c) {
		return
	}

	h.leaveRoomLocked(c, true)
	h.queue.push(c, time.Now())
	h.attemptMatchLocked()
	h.pushQueuePositionsLocked()
}

// handleSkip tears down the caller's pair, notifies the partner, and
// re-enqueues both at the back in (skipper, skipped) order. No match is
// attempted here: the pair would simply re-form when the queue holds only
// these two, defeating the skip.
func (h *Hub) handleSkip(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.registry.contains(c) {
		return
	}
	partner, _, ok := h.queue.clearPair(c)
	if !ok {
		return
	}

	h.leaveRoomLocked(c, false)
	h.leaveRoomLocked(partner, false)
	partner.trySend(encodeEvent(EventPartnerSkipped, PartnerSkippedPayload{Message: "Your partner skipped. Looking for someone new..."}))

	now := time.Now()
	h.queue.push(c, now)
	h.queue.push(partner, now)
	// With a third party already waiting, matching proceeds; with only the
	// skipped pair in the queue it would just re-form, so they wait.
	if h.queue.waitingCount() > 2 {
		h.attemptMatchLocked()
	}
	h.pushQueuePositionsLocked()
}

// handleLeave1v1 removes the client from 1v1 mode: a waiting client leaves
// the queue; a paired client tears the pair down and the surviving partner
// is re-enqueued, same as on disconnect.
func (h *Hub) handleLeave1v1(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.registry.contains(c) {
		return
	}
	h.leaveMatchmakingLocked(c)
}

func (h *Hub) handlePing(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.registry.contains(c) {
		return
	}
	c.lastSeen = time.Now()
	c.trySend(encodeEvent(EventPong, nil))
}

// Disconnect synchronously unwinds all state for the connection: queue or
// pair membership, room membership, typing state, rate records, registry
// entry, and the admission slot. Safe to call more than once.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	if !h.registry.remove(c) {
		h.mu.Unlock()
		return
	}

	h.leaveMatchmakingLocked(c)
	h.leaveRoomLocked(c, true)
	h.msgRate.forget(c.id)
	c.closed = true
	close(c.send)
	count := h.registry.count()
	h.mu.Unlock()

	c.releaseSlot(h.gate)
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection for %s: %v", c.addr, err)
		}
	}
	log.Printf("Client %s disconnected from %s. Total clients: %d", c.nickname, c.addr, count)
}

// leaveMatchmakingLocked removes the client from whichever 1v1 state it
// occupies. A paired client's partner is notified and re-enqueued; the
// departing client is not.
func (h *Hub) leaveMatchmakingLocked(c *Client) {
	if h.queue.removeWaiting(c) {
		h.pushQueuePositionsLocked()
		return
	}

	partner, _, ok := h.queue.clearPair(c)
	if !ok {
		return
	}

	h.leaveRoomLocked(c, false)
	h.leaveRoomLocked(partner, false)
	partner.trySend(encodeEvent(EventPartnerDisconnected, PartnerDisconnectedPayload{PartnerName: c.nickname}))
	h.queue.push(partner, time.Now())
	h.attemptMatchLocked()
	h.pushQueuePositionsLocked()
}

// attemptMatchLocked pairs the earliest waiters while at least two are in
// the queue: fresh pair room, symmetric pair record, matched notifications,
// then a system welcome visible to both.
func (h *Hub) attemptMatchLocked() {
	for {
		a, b, ok := h.queue.popTwo()
		if !ok {
			return
		}

		roomName := pairRoomPrefix + uuid.NewString()
		h.leaveRoomLocked(a, true)
		h.leaveRoomLocked(b, true)
		r := h.rooms.add(a, roomName, true)
		h.rooms.add(b, roomName, true)
		h.queue.setPair(a, b, roomName)

		a.trySend(encodeEvent(EventMatched, MatchedPayload{
			PartnerID: b.id, PartnerName: b.nickname, PartnerAvatar: b.avatar, RoomID: roomName,
		}))
		b.trySend(encodeEvent(EventMatched, MatchedPayload{
			PartnerID: a.id, PartnerName: a.nickname, PartnerAvatar: a.avatar, RoomID: roomName,
		}))

		status := encodeEvent(EventQueueStatus, QueueStatusPayload{Position: 0, Message: "Matched! Say hello.", CanSkip: true})
		a.trySend(status)
		b.trySend(status)

		h.broadcastSystemLocked(r, "You've been matched. Say hello!")
		log.Printf("Paired %s with %s in %s", a.nickname, b.nickname, roomName)
	}
}

// pushQueuePositionsLocked recomputes every waiter's 1-based position and
// pushes a status update; the front of the queue gets the distinguished
// "you're next" message.
func (h *Hub) pushQueuePositionsLocked() {
	for i, waiter := range h.queue.snapshot() {
		message := fmt.Sprintf("Position %d in queue", i+1)
		if i == 0 {
			message = "You're next! Waiting for a partner..."
		}
		waiter.trySend(encodeEvent(EventQueueStatus, QueueStatusPayload{
			Position: i + 1,
			Message:  message,
			CanSkip:  false,
		}))
	}
}

// leaveRoomLocked removes the client from its current room, if any. With
// announce set, the remaining members get the updated count and a system
// "left" message. An emptied named room starts its grace timer; an emptied
// pair room is deleted on the spot.
func (h *Hub) leaveRoomLocked(c *Client, announce bool) {
	r, ok := h.rooms.remove(c)
	if !ok {
		return
	}

	if h.typing.clear(r.name, c.nickname) {
		h.broadcastFrameLocked(r, encodeEvent(EventStopTyping, c.nickname), nil)
	}

	if announce && len(r.members) > 0 {
		h.broadcastRoomUpdateLocked(r)
		h.broadcastSystemLocked(r, c.nickname+" left the chat")
	}

	if len(r.members) == 0 {
		if r.pair {
			h.rooms.deleteRoom(r.name)
		} else {
			h.rooms.scheduleGrace(r.name, currentConfig().RoomGracePeriod, h.expireRoom)
		}
	}
}

// expireRoom is the grace-timer callback; emptiness is re-checked under the
// lock so a rejoin during the grace period wins.
func (h *Hub) expireRoom(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms.expireIfEmpty(name) {
		log.Printf("Room %s deleted after grace period", name)
	}
}

// broadcastRoomUpdateLocked pushes the authoritative member count, read at
// the moment of broadcast, to every member.
func (h *Hub) broadcastRoomUpdateLocked(r *room) {
	frame := encodeEvent(EventRoomUpdate, RoomUpdatePayload{UserCount: len(r.members), RoomName: r.name})
	h.broadcastFrameLocked(r, frame, nil)
}

func (h *Hub) broadcastSystemLocked(r *room, text string) {
	frame := encodeEvent(EventChatMessage, ChatPayload{
		Nickname:  "system",
		Msg:       text,
		Timestamp: nowMillis(),
		Type:      MessageTypeSystem,
	})
	h.broadcastFrameLocked(r, frame, nil)
}

// broadcastFrameLocked fans a frame out to the room's members. A member
// whose send buffer is full is dropped asynchronously; a slow consumer must
// not stall the room.
func (h *Hub) broadcastFrameLocked(r *room, frame []byte, except *Client) {
	if frame == nil {
		return
	}
	var failed []*Client
	for m := range r.members {
		if m == except {
			continue
		}
		if !m.trySend(frame) && !m.closed {
			failed = append(failed, m)
		}
	}
	for _, m := range failed {
		log.Printf("Dropping client %s with full send buffer", m.addr)
		go h.Disconnect(m)
	}
}

// Stats is the read-only aggregate exposed on the side-channel endpoint.
type Stats struct {
	Rooms         int   `json:"rooms"`
	Users         int   `json:"users"`
	Waiting       int   `json:"waiting"`
	ActivePairs   int   `json:"activePairs"`
	UptimeSeconds int64 `json:"uptimeSeconds"`
}

// Stats reports current aggregate state without mutating anything.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	return Stats{
		Rooms:         h.rooms.roomCount(),
		Users:         h.registry.count(),
		Waiting:       h.queue.waitingCount(),
		ActivePairs:   h.queue.pairCount(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
}

// Run drives the background sweeps (stale empty rooms, stale rate records)
// until Shutdown. Both sweeps re-verify state under the lock at deletion
// time, so they tolerate concurrent mutation.
func (h *Hub) Run() {
	defer close(h.done)

	cfg := currentConfig()
	roomTicker := time.NewTicker(cfg.RoomSweepInterval)
	rateTicker := time.NewTicker(cfg.RateSweepInterval)
	defer roomTicker.Stop()
	defer rateTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-roomTicker.C:
			h.sweepRooms(time.Now())
		case <-rateTicker.C:
			h.sweepRateRecords(time.Now())
		}
	}
}

func (h *Hub) sweepRooms(now time.Time) {
	maxIdle := currentConfig().RoomMaxIdle

	h.mu.Lock()
	deleted := h.rooms.sweep(now, maxIdle)
	h.mu.Unlock()

	for _, name := range deleted {
		log.Printf("Room %s deleted by staleness sweep", name)
	}
}

func (h *Hub) sweepRateRecords(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgRate.sweep(now)
}

// Shutdown stops the sweeps, disconnects every client, and waits for the
// pump goroutines to finish or the timeout to pass.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")
	h.cancel()

	select {
	case <-h.done:
	case <-time.After(timeout):
	}

	h.mu.Lock()
	clients := h.registry.snapshot()
	h.mu.Unlock()
	for _, c := range clients {
		h.Disconnect(c)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
