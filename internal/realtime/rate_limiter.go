package realtime

import (
	"sync"
	"time"
)

// Per-connection event budget defaults; env knobs in gateway.go override them.
const (
	defaultRateEvents = 120
	defaultRateWindow = 10 * time.Second
)

// RateLimiter admits at most limit events per sliding window. It keeps the
// admission times of the last limit events in a fixed ring: an event passes
// when the ring still has room, or when its oldest entry has aged out of the
// window and can be evicted.
type RateLimiter struct {
	mu     sync.Mutex
	ring   []time.Time
	head   int
	count  int
	window time.Duration

	now func() time.Time
}

// NewRateLimiter constructs a RateLimiter, substituting defaults for invalid
// inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = defaultRateEvents
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &RateLimiter{
		ring:   make([]time.Time, limit),
		window: window,
		now:    time.Now,
	}
}

// Allow reports whether one more event may pass right now.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if r.count < len(r.ring) {
		r.ring[(r.head+r.count)%len(r.ring)] = now
		r.count++
		return true
	}

	// Ring full: admit only by evicting an entry that left the window.
	if now.Sub(r.ring[r.head]) < r.window {
		return false
	}
	r.ring[r.head] = now
	r.head = (r.head + 1) % len(r.ring)
	return true
}
