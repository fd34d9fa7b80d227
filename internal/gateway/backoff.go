package gateway

import (
	"context"
	"time"
)

// Backoff doubles the delay on every failed attempt up to Max and resets to
// Min after a success.
type Backoff struct {
	// Min is the delay after the first failure.
	Min time.Duration
	// Max caps the delay growth.
	Max time.Duration

	current time.Duration
}

// Next returns the delay to sleep after one more failure.
func (b *Backoff) Next() time.Duration {
	if b.current <= 0 {
		b.current = b.Min
		return b.current
	}
	b.current *= 2
	if b.current > b.Max {
		b.current = b.Max
	}
	return b.current
}

// Reset restores the schedule after a success.
func (b *Backoff) Reset() {
	b.current = 0
}

// schedule is a fixed retry ladder. Attempts beyond the last entry repeat it
// when repeatLast is set; otherwise the ladder is exhausted.
type schedule struct {
	steps      []time.Duration
	repeatLast bool
	attempt    int
}

// next returns the delay for the upcoming attempt and whether the ladder
// still has room. The first attempt is always immediate.
func (s *schedule) next() (time.Duration, bool) {
	s.attempt++
	if s.attempt == 1 {
		return 0, true
	}
	idx := s.attempt - 2
	if idx < len(s.steps) {
		return s.steps[idx], true
	}
	if s.repeatLast && len(s.steps) > 0 {
		return s.steps[len(s.steps)-1], true
	}
	return 0, false
}

func (s *schedule) reset() {
	s.attempt = 0
}

// sleep waits out a backoff delay, returning early when ctx is cancelled.
func sleep(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
