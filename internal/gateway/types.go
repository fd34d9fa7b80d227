package gateway

import (
	"context"

	"github.com/yanun0323/errors"
)

var (
	ErrNilDialer      = errors.New("gateway: nil dialer")
	ErrNilURLProvider = errors.New("gateway: nil url provider")
	ErrAlreadyRunning = errors.New("gateway: client already running")
	ErrNotConnected   = errors.New("gateway: not connected")
	ErrTokenExpired   = errors.New("gateway: token expired, refresh credentials")
)

// MessageType represents a WebSocket data message type.
// Values match RFC 6455 opcodes.
type MessageType uint8

const (
	// MessageText is a text data frame.
	MessageText MessageType = 1
	// MessageBinary is a binary data frame.
	MessageBinary MessageType = 2
)

// Conn is one live socket handle. The state machine owns exactly one at a
// time and replaces it on every connect attempt.
type Conn interface {
	// Read blocks until the next data message arrives. Control pongs are
	// surfaced through the handler registered with SetPongHandler.
	Read(ctx context.Context) (MessageType, []byte, error)
	// Write sends one data message.
	Write(ctx context.Context, msgType MessageType, payload []byte) error
	// SetPongHandler registers the callback invoked on control pong frames.
	// It must be called before the first Read.
	SetPongHandler(fn func())
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Dialer establishes gateway connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// URLParams are the query parameters the client passes when requesting a
// signed gateway URL.
type URLParams struct {
	Resume    bool
	SN        uint64
	SessionID string
	Compress  bool
}

// URLProvider fetches a signed gateway URL. Implementations may fail
// transiently; the client retries with backoff.
type URLProvider interface {
	GatewayURL(ctx context.Context, p URLParams) (string, error)
}

// State is the connection lifecycle state. Exactly one is active at a time.
type State uint8

const (
	StateIdle State = iota
	StateFetchingGateway
	StateConnecting
	StateHandshaking
	StateResuming
	StateOnline
	StateWeak
	StateBackoff
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingGateway:
		return "fetching_gateway"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateResuming:
		return "resuming"
	case StateOnline:
		return "online"
	case StateWeak:
		return "weak"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText lets snapshots render states as names instead of numbers.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
