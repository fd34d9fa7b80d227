package codec

import "encoding/json"

// Signal identifies the frame type carried in the envelope `s` field.
type Signal int32

// SignalUnknown tags frames outside the documented signal range.
const SignalUnknown Signal = -1

const (
	SignalEvent Signal = iota
	SignalHello
	SignalPing
	SignalPong
	SignalResume
	SignalReconnect
	SignalResumeAck
)

func (s Signal) String() string {
	switch s {
	case SignalEvent:
		return "event"
	case SignalHello:
		return "hello"
	case SignalPing:
		return "ping"
	case SignalPong:
		return "pong"
	case SignalResume:
		return "resume"
	case SignalReconnect:
		return "reconnect"
	case SignalResumeAck:
		return "resume_ack"
	default:
		return "unknown"
	}
}

// Frame is one decoded gateway frame. Call sites switch on the concrete type.
type Frame interface {
	Signal() Signal
}

// Hello is the server handshake reply. Code 0 means success.
type Hello struct {
	Code      int32
	SessionID string
}

// Event carries one payload at a session sequence number.
type Event struct {
	SN   uint64
	Data json.RawMessage
}

// Pong acknowledges a heartbeat ping.
type Pong struct{}

// Reconnect is the server-initiated session invalidation signal.
type Reconnect struct {
	Code int32
	Err  string
}

// ResumeAck confirms a resume request and carries the adopted session id.
type ResumeAck struct {
	SessionID string
}

// Unknown is any frame the client does not understand. Callers drop it.
type Unknown struct {
	Raw json.RawMessage
}

func (Hello) Signal() Signal     { return SignalHello }
func (Event) Signal() Signal     { return SignalEvent }
func (Pong) Signal() Signal      { return SignalPong }
func (Reconnect) Signal() Signal { return SignalReconnect }
func (ResumeAck) Signal() Signal { return SignalResumeAck }
func (Unknown) Signal() Signal   { return SignalUnknown }

// Hello result codes documented by the gateway.
const (
	HelloOK                int32 = 0
	HelloMissingParam      int32 = 40100
	HelloInvalidToken      int32 = 40101
	HelloTokenVerifyFailed int32 = 40102
	HelloTokenExpired      int32 = 40103
)

// Reconnect codes that require discarding the persisted session.
const (
	ReconnectResumeFailed   int32 = 40106
	ReconnectSessionExpired int32 = 40107
)

// ReconnectRequiresClear reports whether the code invalidates the persisted
// session, forcing the next attempt to be a full connect.
func ReconnectRequiresClear(code int32) bool {
	return code == ReconnectResumeFailed || code == ReconnectSessionExpired
}

type pingFrame struct {
	S  Signal `json:"s"`
	SN uint64 `json:"sn"`
}

// EncodePing builds the heartbeat frame reporting the last consumed sn.
func EncodePing(sn uint64) []byte {
	data, _ := json.Marshal(pingFrame{S: SignalPing, SN: sn})
	return data
}

// EncodeResume builds the resume request continuing from the last consumed sn.
func EncodeResume(sn uint64) []byte {
	data, _ := json.Marshal(pingFrame{S: SignalResume, SN: sn})
	return data
}
