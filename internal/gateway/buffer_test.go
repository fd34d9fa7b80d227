package gateway

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/codec"
)

func event(sn uint64) codec.Event {
	return codec.Event{SN: sn, Data: json.RawMessage(fmt.Sprintf(`{"sn":%d}`, sn))}
}

func TestBufferReordersContiguousRange(t *testing.T) {
	buf := newEventBuffer(0, 100)

	var delivered []uint64
	for _, sn := range []uint64{3, 1, 2, 5, 4} {
		ready, overflow := buf.Offer(event(sn))
		require.False(t, overflow)
		for _, ev := range ready {
			delivered = append(delivered, ev.SN)
		}
	}

	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, delivered)
	assert.Equal(t, uint64(5), buf.LastSN())
	assert.Zero(t, buf.Len())
}

func TestBufferDropsDuplicateAndStale(t *testing.T) {
	buf := newEventBuffer(10, 100)

	for _, sn := range []uint64{10, 9, 1} {
		ready, overflow := buf.Offer(event(sn))
		assert.Empty(t, ready)
		assert.False(t, overflow)
	}
	assert.Equal(t, uint64(10), buf.LastSN())

	ready, _ := buf.Offer(event(11))
	require.Len(t, ready, 1)
	assert.Equal(t, uint64(11), ready[0].SN)

	// Re-delivery of a consumed sn stays dropped.
	ready, _ = buf.Offer(event(11))
	assert.Empty(t, ready)
	assert.Equal(t, uint64(11), buf.LastSN())
}

func TestBufferOverflowSignalsReconnect(t *testing.T) {
	const max = 16
	buf := newEventBuffer(0, max)

	// Never offer sn=1, so the gap never closes.
	var overflowed bool
	for sn := uint64(2); sn < 2+max+1; sn++ {
		ready, overflow := buf.Offer(event(sn))
		assert.Empty(t, ready)
		if overflow {
			overflowed = true
			break
		}
	}
	assert.True(t, overflowed)
}

func TestBufferReset(t *testing.T) {
	buf := newEventBuffer(0, 100)
	buf.Offer(event(5))
	buf.Offer(event(7))
	require.Equal(t, 2, buf.Len())

	buf.Reset(0)
	assert.Zero(t, buf.Len())
	assert.Zero(t, buf.LastSN())

	ready, _ := buf.Offer(event(1))
	require.Len(t, ready, 1)
}
