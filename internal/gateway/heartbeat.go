package gateway

import (
	"math/rand"
	"time"
)

// HeartbeatMode selects how aggressively the client probes a quiet link.
type HeartbeatMode uint8

const (
	// HeartbeatLax pings on schedule and never judges the reply.
	HeartbeatLax HeartbeatMode = iota
	// HeartbeatStrict arms a pong timeout per ping and degrades the
	// connection to weak when it fires.
	HeartbeatStrict
)

func (m HeartbeatMode) String() string {
	if m == HeartbeatStrict {
		return "strict"
	}
	return "lax"
}

// heartbeatAction tells the state machine what to do after a timer fire.
type heartbeatAction uint8

const (
	heartbeatNone heartbeatAction = iota
	// heartbeatPing sends one ping frame.
	heartbeatPing
	// heartbeatWeakPing marks the connection weak and sends a probe ping.
	heartbeatWeakPing
	// heartbeatClose gives up on the connection; the probe budget is spent.
	heartbeatClose
)

type heartbeatPhase uint8

const (
	phaseInterval heartbeatPhase = iota
	phaseAwaitPong
	phaseProbeDelay
	phaseProbeAwait
)

// heartbeat is the liveness monitor. It is a pure timer-driven state
// machine: the owner keeps a single timer, calls Fire when it expires and
// Pong when a reply arrives, and performs whatever I/O the returned action
// demands. That keeps all socket writes on the connection loop.
type heartbeat struct {
	mode        func() HeartbeatMode
	interval    time.Duration
	jitter      time.Duration
	pongTimeout time.Duration
	probeDelays []time.Duration

	phase heartbeatPhase
	probe int
}

func newHeartbeat(mode func() HeartbeatMode, interval, jitter, pongTimeout time.Duration, probeDelays []time.Duration) *heartbeat {
	return &heartbeat{
		mode:        mode,
		interval:    interval,
		jitter:      jitter,
		pongTimeout: pongTimeout,
		probeDelays: probeDelays,
	}
}

// Start returns the delay before the first ping. The first heartbeat fires
// immediately after coming online.
func (h *heartbeat) Start() time.Duration {
	h.phase = phaseInterval
	h.probe = 0
	return 0
}

// Fire advances the machine after the owner's timer expired and returns the
// action to take plus the next timer delay. A zero delay with heartbeatClose
// means the owner should stop the timer and drop the connection.
func (h *heartbeat) Fire() (heartbeatAction, time.Duration) {
	switch h.phase {
	case phaseInterval:
		if h.mode() == HeartbeatStrict {
			h.phase = phaseAwaitPong
			return heartbeatPing, h.pongTimeout
		}
		return heartbeatPing, h.nextInterval()

	case phaseAwaitPong:
		// Ping went unanswered: degrade and start probing.
		h.phase = phaseProbeAwait
		h.probe = 0
		return heartbeatWeakPing, h.pongTimeout

	case phaseProbeAwait:
		if h.probe < len(h.probeDelays) {
			delay := h.probeDelays[h.probe]
			h.probe++
			h.phase = phaseProbeDelay
			return heartbeatNone, delay
		}
		return heartbeatClose, 0

	case phaseProbeDelay:
		h.phase = phaseProbeAwait
		return heartbeatPing, h.pongTimeout

	default:
		return heartbeatNone, h.nextInterval()
	}
}

// Pong records a liveness reply. recovered reports that the connection was
// weak and is healthy again; next is the delay until the next scheduled ping.
func (h *heartbeat) Pong() (recovered bool, next time.Duration) {
	recovered = h.phase == phaseProbeAwait || h.phase == phaseProbeDelay
	h.phase = phaseInterval
	h.probe = 0
	return recovered, h.nextInterval()
}

func (h *heartbeat) nextInterval() time.Duration {
	if h.jitter <= 0 {
		return h.interval
	}
	spread := time.Duration(rand.Int63n(int64(2*h.jitter))) - h.jitter
	return h.interval + spread
}
