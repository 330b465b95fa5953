// Package server tracks named broadcast groups: membership, activity
// counters, grace-period expiry for emptied rooms, and a periodic staleness
// sweep.
package server

import (
	"strings"
	"time"
)

// Chat modes accepted by the joinMode event.
const (
	ModeRandom   = "random"
	ModeRoom     = "room"
	ModeInterest = "interest"
)

const pairRoomPrefix = "pair_"

// deriveRoomName maps a mode and its parameter onto the canonical room key.
func deriveRoomName(mode, param string) (string, bool) {
	param = strings.TrimSpace(param)
	switch mode {
	case ModeRandom:
		return "random", true
	case ModeRoom:
		if param == "" {
			return "", false
		}
		return "room_" + param, true
	case ModeInterest:
		if param == "" {
			return "", false
		}
		return "interest_" + param, true
	}
	return "", false
}

// room is a broadcast group. pair rooms are synthetic two-party rooms formed
// by the matchmaker: not discoverable by name, not subject to grace timers
// or the staleness sweep, and deleted as soon as their pair tears down.
type room struct {
	name         string
	members      map[*Client]struct{}
	createdAt    time.Time
	lastActive   time.Time
	messageCount int64
	peakMembers  int
	pair         bool
}

// roomManager owns every room record plus the reverse client-to-room index.
// A client is a member of at most one room at any time; add enforces that
// callers removed the old membership first. All access is serialized by the
// hub mutex.
type roomManager struct {
	rooms       map[string]*room
	byClient    map[*Client]*room
	graceTimers map[string]*time.Timer
}

func newRoomManager() *roomManager {
	return &roomManager{
		rooms:       make(map[string]*room),
		byClient:    make(map[*Client]*room),
		graceTimers: make(map[string]*time.Timer),
	}
}

func (rm *roomManager) roomOf(c *Client) (*room, bool) {
	r, ok := rm.byClient[c]
	return r, ok
}

func (rm *roomManager) get(name string) (*room, bool) {
	r, ok := rm.rooms[name]
	return r, ok
}

// add places the client in the named room, creating the record on first
// join. A pending grace deletion is implicitly cancelled here; the timer is
// also stopped so it cannot fire pointlessly.
func (rm *roomManager) add(c *Client, name string, pair bool) *room {
	now := time.Now()
	r, ok := rm.rooms[name]
	if !ok {
		r = &room{
			name:      name,
			members:   make(map[*Client]struct{}),
			createdAt: now,
			pair:      pair,
		}
		rm.rooms[name] = r
	}
	rm.stopGraceTimer(name)

	r.members[c] = struct{}{}
	r.lastActive = now
	if len(r.members) > r.peakMembers {
		r.peakMembers = len(r.members)
	}
	rm.byClient[c] = r
	return r
}

// remove takes the client out of its current room, if any.
func (rm *roomManager) remove(c *Client) (*room, bool) {
	r, ok := rm.byClient[c]
	if !ok {
		return nil, false
	}
	delete(rm.byClient, c)
	delete(r.members, c)
	r.lastActive = time.Now()
	return r, true
}

// deleteRoom drops the record and any pending grace timer.
func (rm *roomManager) deleteRoom(name string) {
	rm.stopGraceTimer(name)
	delete(rm.rooms, name)
}

// scheduleGrace arms (or re-arms) the idle-expiry timer for an emptied
// room. The callback runs outside the hub lock; it must re-check emptiness
// before deleting.
func (rm *roomManager) scheduleGrace(name string, grace time.Duration, expire func(string)) {
	rm.stopGraceTimer(name)
	rm.graceTimers[name] = time.AfterFunc(grace, func() { expire(name) })
}

func (rm *roomManager) stopGraceTimer(name string) {
	if t, ok := rm.graceTimers[name]; ok {
		t.Stop()
		delete(rm.graceTimers, name)
	}
}

// expireIfEmpty deletes the room when it is still empty at expiry time. A
// rejoin during the grace period makes this a no-op.
func (rm *roomManager) expireIfEmpty(name string) bool {
	r, ok := rm.rooms[name]
	if !ok || r.pair || len(r.members) > 0 {
		return false
	}
	rm.deleteRoom(name)
	return true
}

// sweep deletes rooms that are empty and stale. It is a safety net behind
// the per-room grace timers; emptiness is checked at deletion time.
func (rm *roomManager) sweep(now time.Time, maxIdle time.Duration) []string {
	var deleted []string
	for name, r := range rm.rooms {
		if r.pair || len(r.members) > 0 {
			continue
		}
		if now.Sub(r.lastActive) > maxIdle {
			rm.deleteRoom(name)
			deleted = append(deleted, name)
		}
	}
	return deleted
}

func (rm *roomManager) roomCount() int {
	return len(rm.rooms)
}
