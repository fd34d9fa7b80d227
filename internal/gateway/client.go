// Package gateway implements the resumable event-gateway client: one
// sequential connection state machine that fetches a signed URL, dials,
// handshakes, resumes when possible and delivers events strictly ordered by
// sequence number.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/codec"
	"main/internal/session"
)

const (
	defaultHelloTimeout      = 6 * time.Second
	defaultResumeTimeout     = 6 * time.Second
	defaultPongTimeout       = 6 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
	defaultHeartbeatJitter   = 5 * time.Second
	defaultBufferMax         = 10_000
	defaultURLBackoffMin     = time.Second
	defaultURLBackoffMax     = 60 * time.Second
)

// Option defines the client runtime configuration.
type Option struct {
	// Store persists the resumable session. Optional; default in-memory.
	Store session.Store
	// Compress asks the gateway for zlib frames. Optional; default false.
	Compress bool
	// HeartbeatMode selects the initial liveness policy. Optional; default lax.
	HeartbeatMode HeartbeatMode

	// HelloTimeout bounds the wait for the handshake reply. Optional; default 6s.
	HelloTimeout time.Duration
	// ResumeTimeout bounds the wait for a resume ack. Optional; default 6s.
	ResumeTimeout time.Duration
	// PongTimeout bounds the wait for a heartbeat reply in strict mode. Optional; default 6s.
	PongTimeout time.Duration
	// HeartbeatInterval is the base ping period. Optional; default 30s.
	HeartbeatInterval time.Duration
	// HeartbeatJitter spreads pings uniformly around the interval. Optional; default 5s.
	HeartbeatJitter time.Duration
	// BufferMax caps parked out-of-order events before forcing a reconnect. Optional; default 10000.
	BufferMax int
	// URLBackoff retries the gateway URL fetch. Optional; default 1s doubling to 60s.
	URLBackoff Backoff
	// ConnectRetries is the socket retry ladder after the immediate first
	// attempt; the last step repeats forever. Optional; default [2s, 4s].
	ConnectRetries []time.Duration
	// ResumeRetries is the resume retry ladder after the immediate first
	// attempt; once exhausted the client falls back to a full connect.
	// Optional; default [8s, 16s].
	ResumeRetries []time.Duration
	// ProbeDelays are the waits between liveness probes on a weak
	// connection. Optional; default [2s, 4s].
	ProbeDelays []time.Duration

	// OnEvent delivers one event in sequence order. Optional.
	OnEvent func(sn uint64, data json.RawMessage)
	// OnStateChange observes lifecycle transitions. Optional.
	OnStateChange func(prev, next State, reason string)
	// OnError surfaces connection-level failures. The client keeps retrying
	// regardless. Optional.
	OnError func(err error)
	// OnFrame taps every decoded inbound frame. Optional.
	OnFrame func(frame codec.Frame)
	// OnDebug reports internal milestones for diagnostics. Optional.
	OnDebug func(tag string, v any)

	// provider fetches signed gateway URLs. Required (nil returns ErrNilURLProvider).
	provider URLProvider
	// dialer establishes gateway connections. Required (nil returns ErrNilDialer).
	dialer Dialer
}

func (opt *Option) init(provider URLProvider, dialer Dialer) {
	opt.provider = provider
	opt.dialer = dialer

	if opt.Store == nil {
		opt.Store = session.NewMemoryStore()
	}

	if opt.HelloTimeout <= 0 {
		opt.HelloTimeout = defaultHelloTimeout
	}

	if opt.ResumeTimeout <= 0 {
		opt.ResumeTimeout = defaultResumeTimeout
	}

	if opt.PongTimeout <= 0 {
		opt.PongTimeout = defaultPongTimeout
	}

	if opt.HeartbeatInterval <= 0 {
		opt.HeartbeatInterval = defaultHeartbeatInterval
	}

	if opt.HeartbeatJitter <= 0 {
		opt.HeartbeatJitter = defaultHeartbeatJitter
	}

	if opt.BufferMax <= 0 {
		opt.BufferMax = defaultBufferMax
	}

	if opt.URLBackoff.Min <= 0 {
		opt.URLBackoff.Min = defaultURLBackoffMin
	}

	if opt.URLBackoff.Max <= 0 {
		opt.URLBackoff.Max = defaultURLBackoffMax
	}

	if len(opt.ConnectRetries) == 0 {
		opt.ConnectRetries = []time.Duration{2 * time.Second, 4 * time.Second}
	}

	if len(opt.ResumeRetries) == 0 {
		opt.ResumeRetries = []time.Duration{8 * time.Second, 16 * time.Second}
	}

	if len(opt.ProbeDelays) == 0 {
		opt.ProbeDelays = []time.Duration{2 * time.Second, 4 * time.Second}
	}
}

type reconnectRequest struct {
	hard bool
}

// Client owns the gateway connection lifecycle.
type Client struct {
	opt   Option
	store session.Store

	running atomic.Bool
	hbMode  atomic.Int32

	mu   sync.Mutex
	snap Snapshot
	conn Conn

	cancel context.CancelFunc
	done   chan struct{}

	reconnectCh chan reconnectRequest
	saver       *sessionSaver
	urlBackoff  Backoff
}

// New validates collaborators and builds a client.
func New(provider URLProvider, dialer Dialer, option ...Option) (*Client, error) {
	if provider == nil {
		return nil, ErrNilURLProvider
	}

	if dialer == nil {
		return nil, ErrNilDialer
	}

	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}

	opt.init(provider, dialer)

	client := &Client{
		opt:         opt,
		store:       opt.Store,
		reconnectCh: make(chan reconnectRequest, 1),
		saver:       newSessionSaver(opt.Store),
		urlBackoff:  opt.URLBackoff,
	}
	client.hbMode.Store(int32(opt.HeartbeatMode))
	client.snap.State = StateIdle
	return client, nil
}

// Start launches the connection loop. It returns immediately; the loop runs
// until Stop or ctx cancellation.
func (c *Client) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	rctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.saver.run(rctx)
	go func() {
		defer close(done)
		defer c.running.Store(false)
		c.run(rctx)
	}()
	return nil
}

// Stop cancels the loop and waits for it to finish. Safe to call more than
// once and before Start.
func (c *Client) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done
	return nil
}

// Send writes one text frame on the live socket.
func (c *Client) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.Write(ctx, MessageText, payload)
}

// ReconnectSoft drops the socket and reconnects, resuming the session.
func (c *Client) ReconnectSoft() {
	c.requestReconnect(false)
}

// ReconnectHard drops the socket and the session, persisted copy included.
// The next connection starts fresh.
func (c *Client) ReconnectHard() {
	c.requestReconnect(true)
}

func (c *Client) requestReconnect(hard bool) {
	req := reconnectRequest{hard: hard}
	for {
		select {
		case c.reconnectCh <- req:
			return
		default:
		}
		select {
		case <-c.reconnectCh:
		default:
		}
	}
}

// SetHeartbeatMode switches the liveness policy at runtime. Takes effect on
// the next heartbeat fire.
func (c *Client) SetHeartbeatMode(mode HeartbeatMode) {
	c.hbMode.Store(int32(mode))
}

func (c *Client) heartbeatMode() HeartbeatMode {
	return HeartbeatMode(c.hbMode.Load())
}

// Snapshot returns a point-in-time copy of the connection state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// State is the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.State
}

func (c *Client) setState(next State, reason string) {
	c.mu.Lock()
	prev := c.snap.State
	if prev == next {
		c.mu.Unlock()
		return
	}
	c.snap.State = next
	c.snap.StateMessage = reason
	c.mu.Unlock()

	if c.opt.OnStateChange != nil {
		c.opt.OnStateChange(prev, next, reason)
	}
}

func (c *Client) bump(fn func(s *Snapshot)) {
	c.mu.Lock()
	fn(&c.snap)
	c.mu.Unlock()
}

func (c *Client) setConn(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) fail(err error) {
	logs.Errorf("gateway client, err: %+v", err)
	c.bump(func(s *Snapshot) { s.LastError = err.Error() })

	if c.opt.OnError != nil {
		c.opt.OnError(err)
	}
}

func (c *Client) tapFrame(frame codec.Frame) {
	if c.opt.OnFrame != nil {
		c.opt.OnFrame(frame)
	}
}

func (c *Client) debug(tag string, v any) {
	if c.opt.OnDebug != nil {
		c.opt.OnDebug(tag, v)
	}
}

// sessionSaver serializes fire-and-forget persistence on one goroutine. The
// single-slot queue keeps only the newest session so a slow store never
// backs up the connection loop.
type sessionSaver struct {
	store session.Store
	ch    chan session.Session
}

func newSessionSaver(store session.Store) *sessionSaver {
	return &sessionSaver{store: store, ch: make(chan session.Session, 1)}
}

func (s *sessionSaver) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sess := <-s.ch:
			if err := s.store.Save(ctx, sess); err != nil {
				logs.Errorf("persist session, err: %+v", err)
			}
		}
	}
}

func (s *sessionSaver) offer(sess session.Session) {
	for {
		select {
		case s.ch <- sess:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
