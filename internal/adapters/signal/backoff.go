package signal

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Schedule is a fixed reconnect schedule that holds its last delay forever.
type Schedule struct {
	delays []time.Duration
	next   int
}

var _ backoff.BackOff = (*Schedule)(nil)

func NewSchedule(delays []time.Duration) *Schedule {
	return &Schedule{delays: append([]time.Duration(nil), delays...)}
}

func (s *Schedule) NextBackOff() time.Duration {
	if len(s.delays) == 0 {
		return backoff.Stop
	}
	i := min(s.next, len(s.delays)-1)
	if s.next < len(s.delays) {
		s.next++
	}
	return s.delays[i]
}

func (s *Schedule) Reset() {
	s.next = 0
}
