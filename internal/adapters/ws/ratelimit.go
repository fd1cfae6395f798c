package ws

import (
	"sync"
	"time"

	"github.com/avilov/codemesh/internal/core"
)

// frameLimiter caps inbound frames per connection over a sliding
// window. Over-limit frames are dropped, the connection stays up; a
// runaway debounce loop on one client must not starve the topic.
type frameLimiter struct {
	mu       sync.Mutex
	history  map[core.ConnRef][]time.Time
	limit    int
	interval time.Duration
}

func newFrameLimiter(limit int, interval time.Duration) *frameLimiter {
	return &frameLimiter{
		history:  make(map[core.ConnRef][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *frameLimiter) Allow(ref core.ConnRef) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[ref]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[ref] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[ref] = fresh
	return true
}

// Forget drops the window for a closed connection.
func (rl *frameLimiter) Forget(ref core.ConnRef) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, ref)
}
