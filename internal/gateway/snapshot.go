package gateway

import "time"

// Counters accumulate over the lifetime of a client.
type Counters struct {
	ConnectAttempts  uint64 `json:"connectAttempts"`
	ResumeAttempts   uint64 `json:"resumeAttempts"`
	PingSent         uint64 `json:"pingSent"`
	PongRecv         uint64 `json:"pongRecv"`
	ReconnectNotices uint64 `json:"reconnectNotices"`
}

// Timers record the most recent occurrence of each protocol beat.
type Timers struct {
	LastHelloAt    time.Time     `json:"lastHelloAt"`
	LastPingAt     time.Time     `json:"lastPingAt"`
	LastPongAt     time.Time     `json:"lastPongAt"`
	LastEventAt    time.Time     `json:"lastEventAt"`
	CurrentBackoff time.Duration `json:"currentBackoffMs"`
}

// Snapshot is a point-in-time view of the connection. Snapshot() returns it
// by value; external readers never share the client's mutable state.
type Snapshot struct {
	State         State    `json:"state"`
	StateMessage  string   `json:"stateMessage"`
	SessionID     string   `json:"sessionId"`
	LastSN        uint64   `json:"lastSn"`
	BufferedCount int      `json:"bufferedCount"`
	CurrentURL    string   `json:"currentUrl"`
	Counters      Counters `json:"counters"`
	Timers        Timers   `json:"timers"`
	LastError     string   `json:"lastError"`
}
