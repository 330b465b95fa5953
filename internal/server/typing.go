// Package server tracks who is typing in each room. Entries expire on a
// quiet-period timer that is re-armed by every fresh signal.
package server

import "time"

// typingEntry is one flagged typist. gen guards against a stale timer
// firing after the entry was re-armed: the expiry callback only clears the
// entry whose generation it was created for.
type typingEntry struct {
	timer *time.Timer
	gen   uint64
}

// typingTracker keeps a per-room set of typing nicknames keyed by display
// name, each with its auto-expiry timer. Mutation is serialized by the hub
// mutex; timers fire on their own goroutines and re-enter through the hub,
// which validates the generation before broadcasting a stop.
type typingTracker struct {
	byRoom  map[string]map[string]*typingEntry
	nextGen uint64
}

func newTypingTracker() *typingTracker {
	return &typingTracker{byRoom: make(map[string]map[string]*typingEntry)}
}

// arm records the nickname as typing in the room and (re)starts its expiry
// timer. isNew lets the caller broadcast the typing event once per burst
// rather than per keystroke.
func (t *typingTracker) arm(roomName, nickname string, quiet time.Duration, expire func(gen uint64)) (isNew bool) {
	set, ok := t.byRoom[roomName]
	if !ok {
		set = make(map[string]*typingEntry)
		t.byRoom[roomName] = set
	}
	entry, existed := set[nickname]
	if existed {
		entry.timer.Stop()
	}
	t.nextGen++
	gen := t.nextGen
	set[nickname] = &typingEntry{
		timer: time.AfterFunc(quiet, func() { expire(gen) }),
		gen:   gen,
	}
	return !existed
}

// clear removes the nickname's entry and stops its timer. It reports
// whether an entry was present so the caller knows to broadcast stopTyping.
func (t *typingTracker) clear(roomName, nickname string) bool {
	set, ok := t.byRoom[roomName]
	if !ok {
		return false
	}
	entry, present := set[nickname]
	if !present {
		return false
	}
	entry.timer.Stop()
	delete(set, nickname)
	if len(set) == 0 {
		delete(t.byRoom, roomName)
	}
	return true
}

// expire clears the entry only when it still belongs to the generation the
// timer was armed for. A fresh signal in the window makes this a no-op.
func (t *typingTracker) expire(roomName, nickname string, gen uint64) bool {
	set, ok := t.byRoom[roomName]
	if !ok {
		return false
	}
	entry, present := set[nickname]
	if !present || entry.gen != gen {
		return false
	}
	delete(set, nickname)
	if len(set) == 0 {
		delete(t.byRoom, roomName)
	}
	return true
}
