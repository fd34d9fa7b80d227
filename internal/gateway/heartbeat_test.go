package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func strictHeartbeat() *heartbeat {
	return newHeartbeat(
		func() HeartbeatMode { return HeartbeatStrict },
		30*time.Second, 0, 6*time.Second,
		[]time.Duration{2 * time.Second, 4 * time.Second},
	)
}

func TestHeartbeatLaxNeverDegrades(t *testing.T) {
	hb := newHeartbeat(func() HeartbeatMode { return HeartbeatLax }, 30*time.Second, 0, 6*time.Second, nil)

	assert.Equal(t, time.Duration(0), hb.Start())
	for i := 0; i < 10; i++ {
		action, next := hb.Fire()
		assert.Equal(t, heartbeatPing, action)
		assert.Equal(t, 30*time.Second, next)
	}
}

func TestHeartbeatStrictHappyPath(t *testing.T) {
	hb := strictHeartbeat()
	hb.Start()

	action, next := hb.Fire()
	assert.Equal(t, heartbeatPing, action)
	assert.Equal(t, 6*time.Second, next)

	recovered, next := hb.Pong()
	assert.False(t, recovered)
	assert.Equal(t, 30*time.Second, next)
}

func TestHeartbeatStrictMissedPongProbesThenCloses(t *testing.T) {
	hb := strictHeartbeat()
	hb.Start()

	hb.Fire() // scheduled ping, arms pong timeout

	// Pong timeout: weak + first probe ping.
	action, next := hb.Fire()
	assert.Equal(t, heartbeatWeakPing, action)
	assert.Equal(t, 6*time.Second, next)

	// No reply: escalation delay 2s before the next probe.
	action, next = hb.Fire()
	assert.Equal(t, heartbeatNone, action)
	assert.Equal(t, 2*time.Second, next)

	action, next = hb.Fire()
	assert.Equal(t, heartbeatPing, action)
	assert.Equal(t, 6*time.Second, next)

	// Still nothing: escalation delay 4s, probe, then give up.
	action, next = hb.Fire()
	assert.Equal(t, heartbeatNone, action)
	assert.Equal(t, 4*time.Second, next)

	action, _ = hb.Fire()
	assert.Equal(t, heartbeatPing, action)

	action, _ = hb.Fire()
	assert.Equal(t, heartbeatClose, action)
}

func TestHeartbeatPongDuringProbesRecovers(t *testing.T) {
	hb := strictHeartbeat()
	hb.Start()

	hb.Fire() // scheduled ping
	hb.Fire() // pong timeout -> weak probe

	recovered, next := hb.Pong()
	assert.True(t, recovered)
	assert.Equal(t, 30*time.Second, next)

	// Back to the regular cadence.
	action, next := hb.Fire()
	assert.Equal(t, heartbeatPing, action)
	assert.Equal(t, 6*time.Second, next)
}

func TestHeartbeatJitterStaysBounded(t *testing.T) {
	hb := newHeartbeat(func() HeartbeatMode { return HeartbeatLax }, 30*time.Second, 5*time.Second, 6*time.Second, nil)
	hb.Start()

	for i := 0; i < 200; i++ {
		_, next := hb.Fire()
		assert.GreaterOrEqual(t, next, 25*time.Second)
		assert.LessOrEqual(t, next, 35*time.Second)
	}
}

func TestHeartbeatModeSwitchAtRuntime(t *testing.T) {
	mode := HeartbeatLax
	hb := newHeartbeat(func() HeartbeatMode { return mode }, 30*time.Second, 0, 6*time.Second,
		[]time.Duration{2 * time.Second})
	hb.Start()

	_, next := hb.Fire()
	assert.Equal(t, 30*time.Second, next)

	mode = HeartbeatStrict
	action, next := hb.Fire()
	assert.Equal(t, heartbeatPing, action)
	assert.Equal(t, 6*time.Second, next)
}
