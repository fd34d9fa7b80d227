package gateway

import (
	"main/internal/codec"
)

// eventBuffer re-orders gateway events by sequence number. Events arriving
// out of order are parked until the gap closes; duplicates are dropped.
type eventBuffer struct {
	lastSN  uint64
	max     int
	pending map[uint64]codec.Event
}

func newEventBuffer(lastSN uint64, max int) *eventBuffer {
	return &eventBuffer{
		lastSN:  lastSN,
		max:     max,
		pending: make(map[uint64]codec.Event),
	}
}

// Offer accepts one event and returns the contiguous run now ready for
// delivery, in sequence order. overflow reports that the pending map grew
// past the bound, which means the connection is unrecoverably behind and the
// caller should force a reconnect.
func (b *eventBuffer) Offer(ev codec.Event) (ready []codec.Event, overflow bool) {
	if ev.SN <= b.lastSN {
		return nil, false
	}

	expected := b.lastSN + 1
	if ev.SN > expected {
		b.pending[ev.SN] = ev
		return nil, len(b.pending) > b.max
	}

	b.lastSN = ev.SN
	ready = append(ready, ev)
	for {
		next, ok := b.pending[b.lastSN+1]
		if !ok {
			return ready, false
		}
		delete(b.pending, next.SN)
		b.lastSN = next.SN
		ready = append(ready, next)
	}
}

// LastSN is the highest sequence number consumed so far.
func (b *eventBuffer) LastSN() uint64 {
	return b.lastSN
}

// Len is the number of parked out-of-order events.
func (b *eventBuffer) Len() int {
	return len(b.pending)
}

// Reset discards every parked event and rebases the sequence. Used when the
// session is invalidated.
func (b *eventBuffer) Reset(lastSN uint64) {
	b.lastSN = lastSN
	b.pending = make(map[uint64]codec.Event)
}
