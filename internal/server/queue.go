// Package server holds the 1v1 matchmaking state: a strict FIFO waiting
// list and the symmetric pair table. Orchestration (room moves, outbound
// events) lives in the hub; this file keeps the state transitions honest.
package server

import "time"

// queueEntry is one waiting connection.
type queueEntry struct {
	client     *Client
	enqueuedAt time.Time
}

// pairing is one direction of a formed pair. The table always holds both
// directions with the same room id, or neither.
type pairing struct {
	roomName string
	partner  *Client
}

// matchQueue owns the waiting list and pair table. A client occupies at
// most one of {unqueued, waiting, paired}. All access is serialized by the
// hub mutex.
type matchQueue struct {
	waiting []queueEntry
	pairs   map[*Client]pairing
}

func newMatchQueue() *matchQueue {
	return &matchQueue{pairs: make(map[*Client]pairing)}
}

func (q *matchQueue) isWaiting(c *Client) bool {
	for _, e := range q.waiting {
		if e.client == c {
			return true
		}
	}
	return false
}

func (q *matchQueue) isPaired(c *Client) bool {
	_, ok := q.pairs[c]
	return ok
}

// push appends to the back of the queue. Duplicate and already-paired
// clients are rejected so a handle appears at most once.
func (q *matchQueue) push(c *Client, now time.Time) bool {
	if q.isWaiting(c) || q.isPaired(c) {
		return false
	}
	q.waiting = append(q.waiting, queueEntry{client: c, enqueuedAt: now})
	return true
}

// popTwo dequeues the two earliest entries in strict arrival order.
func (q *matchQueue) popTwo() (a, b *Client, ok bool) {
	if len(q.waiting) < 2 {
		return nil, nil, false
	}
	a = q.waiting[0].client
	b = q.waiting[1].client
	q.waiting = append(q.waiting[:0], q.waiting[2:]...)
	return a, b, true
}

// removeWaiting drops the single matching entry, preserving order of the
// rest. No-op if the client is not waiting.
func (q *matchQueue) removeWaiting(c *Client) bool {
	for i, e := range q.waiting {
		if e.client == c {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return true
		}
	}
	return false
}

// setPair records both directions of a formed pair.
func (q *matchQueue) setPair(a, b *Client, roomName string) {
	q.pairs[a] = pairing{roomName: roomName, partner: b}
	q.pairs[b] = pairing{roomName: roomName, partner: a}
}

// clearPair tears down the pair containing c, removing both directions
// together. It returns the partner and shared room so the caller can
// notify and clean up; ok is false when c was not paired.
func (q *matchQueue) clearPair(c *Client) (partner *Client, roomName string, ok bool) {
	p, exists := q.pairs[c]
	if !exists {
		return nil, "", false
	}
	delete(q.pairs, c)
	delete(q.pairs, p.partner)
	return p.partner, p.roomName, true
}

// snapshot returns the waiting clients in queue order.
func (q *matchQueue) snapshot() []*Client {
	out := make([]*Client, len(q.waiting))
	for i, e := range q.waiting {
		out[i] = e.client
	}
	return out
}

func (q *matchQueue) waitingCount() int {
	return len(q.waiting)
}

// pairCount is the number of formed pairs, not directed entries.
func (q *matchQueue) pairCount() int {
	return len(q.pairs) / 2
}
