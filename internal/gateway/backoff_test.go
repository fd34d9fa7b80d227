package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := Backoff{Min: time.Second, Max: 8 * time.Second}

	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())
	assert.Equal(t, 8*time.Second, b.Next())
	assert.Equal(t, 8*time.Second, b.Next())

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestScheduleLadder(t *testing.T) {
	s := schedule{steps: []time.Duration{8 * time.Second, 16 * time.Second}}

	wait, ok := s.next()
	assert.True(t, ok)
	assert.Zero(t, wait)

	wait, ok = s.next()
	assert.True(t, ok)
	assert.Equal(t, 8*time.Second, wait)

	wait, ok = s.next()
	assert.True(t, ok)
	assert.Equal(t, 16*time.Second, wait)

	_, ok = s.next()
	assert.False(t, ok)

	s.reset()
	wait, ok = s.next()
	assert.True(t, ok)
	assert.Zero(t, wait)
}

func TestScheduleRepeatsLast(t *testing.T) {
	s := schedule{steps: []time.Duration{2 * time.Second, 4 * time.Second}, repeatLast: true}

	s.next()
	s.next()
	s.next()
	for i := 0; i < 3; i++ {
		wait, ok := s.next()
		assert.True(t, ok)
		assert.Equal(t, 4*time.Second, wait)
	}
}
