// Package ratelimit implements per-client request rate limiting using a
// sliding window log.
//
// Each client key keeps the timestamps of its allowed requests. A request
// is allowed when fewer than limit timestamps fall inside the trailing
// window. This gives precise limiting without the boundary burst of fixed
// windows, at the cost of storing individual timestamps; with the default
// ceiling of 60 requests per minute the cost is negligible.
//
// Denied requests are NOT recorded. A client hammering a closed window
// therefore recovers as soon as its allowed requests age out, instead of
// pushing its own recovery further away with every rejected attempt.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultWindow is the trailing window requests are counted over.
const DefaultWindow = time.Minute

// Decision captures the result of a rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int // requests left in the window after this one
	Limit     int // configured ceiling

	// RetryAfter is the wait until the oldest recorded request leaves the
	// window. Only meaningful when Allowed is false.
	RetryAfter time.Duration
}

// Limiter enforces a per-key sliding-window ceiling. One mutex serializes
// all state; the daemon's request volume makes contention irrelevant.
type Limiter struct {
	mu          sync.Mutex
	trackers    map[string]*tracker
	limit       int
	window      time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

// tracker holds the request log for a single client key.
type tracker struct {
	stamps   []time.Time
	lastSeen time.Time
}

// New creates a limiter allowing limit requests per window.
func New(limit int, window time.Duration) *Limiter {
	return NewWithClock(limit, window, time.Now)
}

// NewWithClock creates a limiter with an injected time source. Tests use
// this to step through windows without sleeping.
func NewWithClock(limit int, window time.Duration, now func() time.Time) *Limiter {
	return &Limiter{
		trackers:    make(map[string]*tracker),
		limit:       limit,
		window:      window,
		lastCleanup: now(),
		now:         now,
	}
}

// Allow checks whether a request from key is admitted and records it if so.
func (l *Limiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeCleanup(now)

	t, exists := l.trackers[key]
	if !exists {
		t = &tracker{}
		l.trackers[key] = t
	}
	t.lastSeen = now

	// Prune stamps that have left the window. A stamp exactly window-old
	// is pruned, so a fully elapsed window always admits again.
	windowStart := now.Add(-l.window)
	kept := t.stamps[:0]
	for _, ts := range t.stamps {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	t.stamps = kept

	if len(t.stamps) < l.limit {
		t.stamps = append(t.stamps, now)
		return Decision{
			Allowed:   true,
			Remaining: l.limit - len(t.stamps),
			Limit:     l.limit,
		}
	}

	return Decision{
		Allowed:    false,
		Remaining:  0,
		Limit:      l.limit,
		RetryAfter: t.stamps[0].Add(l.window).Sub(now),
	}
}

// maybeCleanup drops stale trackers, at most once per window. A tracker
// idle for over twice the window cannot hold any in-window stamps (stamps
// are only added together with a lastSeen update), so dropping it never
// loosens anyone's limit. Caller holds l.mu.
func (l *Limiter) maybeCleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < l.window {
		return
	}
	for key, t := range l.trackers {
		if now.Sub(t.lastSeen) > 2*l.window {
			delete(l.trackers, key)
		}
	}
	l.lastCleanup = now
}

// Len returns the number of tracked client keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.trackers)
}
