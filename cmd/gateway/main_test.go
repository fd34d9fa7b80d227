package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSinkUnblocksOnShutdown(t *testing.T) {
	events := make(chan event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := eventSink(ctx, events)
	sink(1, json.RawMessage(`{}`))

	// Channel is full and the consumer is gone; cancellation must unblock.
	cancel()
	done := make(chan struct{})
	go func() {
		sink(2, json.RawMessage(`{}`))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event sink blocked after shutdown")
	}

	ev := <-events
	assert.Equal(t, uint64(1), ev.SN)
}

func TestEventSinkDelivers(t *testing.T) {
	events := make(chan event, 1)
	sink := eventSink(t.Context(), events)

	sink(7, json.RawMessage(`{"k":"v"}`))

	select {
	case ev := <-events:
		require.Equal(t, uint64(7), ev.SN)
		assert.JSONEq(t, `{"k":"v"}`, string(ev.Data))
	default:
		t.Fatal("event not delivered")
	}
}
