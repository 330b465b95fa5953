// Package server implements message rate limiting and connection admission
// control that protect the hub from abuse.
package server

import (
	"sync"
	"time"
)

// rateRecord tracks one connection's message count within the current
// fixed window.
type rateRecord struct {
	count       int
	windowStart time.Time
}

// messageLimiter enforces a fixed-count quota per fixed window for each
// connection. The window resets lazily on the first message after expiry;
// a periodic sweep drops records that have gone a full window without
// traffic. Access is serialized by the hub mutex.
type messageLimiter struct {
	limit   int
	window  time.Duration
	records map[string]*rateRecord
}

func newMessageLimiter(limit int, window time.Duration) *messageLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &messageLimiter{
		limit:   limit,
		window:  window,
		records: make(map[string]*rateRecord),
	}
}

// allow charges one message against the connection's window and reports
// whether it fits the quota. Rejections do not penalize future windows
// beyond the window's natural reset.
func (l *messageLimiter) allow(id string, now time.Time) bool {
	rec, ok := l.records[id]
	if !ok || now.Sub(rec.windowStart) >= l.window {
		l.records[id] = &rateRecord{count: 1, windowStart: now}
		return true
	}
	rec.count++
	return rec.count <= l.limit
}

// forget drops the record for a departed connection.
func (l *messageLimiter) forget(id string) {
	delete(l.records, id)
}

// sweep removes records whose window expired long enough ago that they no
// longer influence any decision.
func (l *messageLimiter) sweep(now time.Time) {
	for id, rec := range l.records {
		if now.Sub(rec.windowStart) >= 2*l.window {
			delete(l.records, id)
		}
	}
}

// admissionGate caps concurrent connections per remote address and
// server-wide. It carries its own lock because it is consulted on the HTTP
// upgrade path before any identity exists.
type admissionGate struct {
	mu       sync.Mutex
	perIP    map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newAdmissionGate(maxPerIP, maxTotal int) *admissionGate {
	if maxPerIP <= 0 {
		maxPerIP = 1
	}
	if maxTotal <= 0 {
		maxTotal = 1
	}
	return &admissionGate{
		perIP:    make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

// admit reserves a slot for the address, or rejects when the per-address or
// server-wide cap is reached.
func (g *admissionGate) admit(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.total >= g.maxTotal || g.perIP[ip] >= g.maxPerIP {
		return false
	}
	g.perIP[ip]++
	g.total++
	return true
}

// release frees a previously admitted slot. Callers must pair each admit
// with exactly one release; Client.releaseSlot guarantees that.
func (g *admissionGate) release(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.perIP[ip] > 0 {
		g.perIP[ip]--
		if g.perIP[ip] == 0 {
			delete(g.perIP, ip)
		}
	}
	if g.total > 0 {
		g.total--
	}
}
