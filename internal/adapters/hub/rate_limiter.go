package hub

import (
	"sync"
	"time"

	"github.com/dkeye/voicemesh/internal/domain"
)

// RelayRateLimiter bounds how many setup messages one participant may relay
// per sliding window. Only relayed offers, answers and candidates count;
// join and leave are never limited. Rejected relays do not extend the window.
type RelayRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ParticipantID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRelayRateLimiter(limit int, interval time.Duration) *RelayRateLimiter {
	return &RelayRateLimiter{
		history:  make(map[domain.ParticipantID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow records one relay by id. When the window is full it reports how long
// until the oldest relay in it expires.
func (rl *RelayRateLimiter) Allow(id domain.ParticipantID) (bool, time.Duration) {
	if rl.limit <= 0 {
		return true, 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	relays := rl.history[id]
	fresh := relays[:0]
	for _, t := range relays {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false, fresh[0].Sub(windowStart)
	}
	rl.history[id] = append(fresh, now)
	return true, 0
}

// Forget drops the history of a disconnected participant. A resumed
// participant keeps its id, so it keeps its window until then.
func (rl *RelayRateLimiter) Forget(id domain.ParticipantID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}
