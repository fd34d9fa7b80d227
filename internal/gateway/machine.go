package gateway

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/codec"
	"main/internal/session"
)

type cycleOutcome uint8

const (
	// cycleFailed means the attempt never reached Online.
	cycleFailed cycleOutcome = iota
	// cycleDropped means the connection was Online and then lost.
	cycleDropped
	// cycleStopped means the loop context is done.
	cycleStopped
)

type cycleResult struct {
	outcome cycleOutcome
	// sess carries into the next cycle; nil forces a full connect.
	sess *session.Session
}

// run is the connection loop. It owns every socket, timer and state
// transition; nothing else mutates connection state.
func (c *Client) run(ctx context.Context) {
	defer c.setState(StateClosed, "stopped")

	sess := c.loadSession(ctx)
	connectSched := &schedule{steps: c.opt.ConnectRetries, repeatLast: true}
	resumeSched := &schedule{steps: c.opt.ResumeRetries}

	for ctx.Err() == nil {
		c.drainReconnect(ctx, &sess)

		resuming := sess != nil && sess.SessionID != ""
		var wait time.Duration
		if resuming {
			w, ok := resumeSched.next()
			if !ok {
				logs.Info("resume retries exhausted, falling back to full connect")
				c.clearStore(ctx)
				sess = nil
				resuming = false
				resumeSched.reset()
				w, _ = connectSched.next()
			}
			wait = w
		} else {
			wait, _ = connectSched.next()
		}

		if wait > 0 {
			c.setState(StateBackoff, "waiting before retry")
			c.bump(func(s *Snapshot) { s.Timers.CurrentBackoff = wait })
			if err := sleep(ctx, wait); err != nil {
				return
			}
		}

		res := c.cycle(ctx, resuming, sess, connectSched, resumeSched)
		if res.outcome == cycleStopped {
			return
		}
		if res.outcome == cycleDropped {
			// The next attempt after a live connection starts immediately.
			connectSched.reset()
		}
		sess = res.sess
	}
}

// cycle runs one connection attempt end to end: fetch URL, dial, handshake,
// optionally resume, then serve Online until the connection drops.
func (c *Client) cycle(ctx context.Context, resuming bool, sess *session.Session, connectSched, resumeSched *schedule) cycleResult {
	c.setState(StateFetchingGateway, "fetching gateway url")
	url, err := c.fetchGatewayURL(ctx, resuming, sess)
	if err != nil {
		return cycleResult{outcome: cycleStopped, sess: sess}
	}
	c.bump(func(s *Snapshot) { s.CurrentURL = url })
	c.debug("gateway_url", url)

	c.setState(StateConnecting, "dialing")
	c.bump(func(s *Snapshot) { s.Counters.ConnectAttempts++ })
	conn, err := c.opt.dialer.Dial(ctx, url)
	if err != nil {
		c.fail(errors.Wrap(err, "dial gateway"))
		return cycleResult{outcome: cycleFailed, sess: sess}
	}
	defer conn.Close()
	c.setConn(conn)
	defer c.setConn(nil)

	inbound := make(chan codec.Frame, 64)
	readErr := make(chan error, 1)
	conn.SetPongHandler(func() {
		select {
		case inbound <- codec.Pong{}:
		default:
		}
	})

	rctx, rcancel := context.WithCancel(ctx)
	defer rcancel()
	go c.readLoop(rctx, conn, inbound, readErr)

	c.setState(StateHandshaking, "awaiting hello")
	var early []codec.Frame
	hello, err := c.awaitHello(ctx, inbound, readErr, &early)
	if err != nil {
		c.fail(errors.Wrap(err, "gateway handshake"))
		return cycleResult{outcome: outcomeFor(ctx), sess: sess}
	}

	switch hello.Code {
	case codec.HelloOK:
	case codec.HelloInvalidToken, codec.HelloTokenVerifyFailed:
		c.fail(errors.Errorf("hello rejected, code: %d", hello.Code))
		c.clearStore(ctx)
		return cycleResult{outcome: cycleFailed}
	case codec.HelloTokenExpired:
		c.clearStore(ctx)
		c.fail(ErrTokenExpired)
		return cycleResult{outcome: cycleFailed}
	default:
		// Missing-param and anything undocumented: plain retry.
		c.fail(errors.Errorf("hello rejected, code: %d", hello.Code))
		return cycleResult{outcome: cycleFailed, sess: sess}
	}

	sessionID := hello.SessionID
	var lastSN uint64
	if resuming {
		c.setState(StateResuming, "resuming session")
		c.bump(func(s *Snapshot) { s.Counters.ResumeAttempts++ })
		lastSN = sess.LastSN
		c.debug("resume", sess.LastSN)

		if err := conn.Write(ctx, MessageText, codec.EncodeResume(sess.LastSN)); err != nil {
			c.fail(errors.Wrap(err, "send resume"))
			return cycleResult{outcome: cycleFailed, sess: sess}
		}

		ack, err := c.awaitResumeAck(ctx, inbound, readErr, &early)
		if err != nil {
			c.fail(errors.Wrap(err, "await resume ack"))
			return cycleResult{outcome: outcomeFor(ctx), sess: sess}
		}
		if ack.SessionID != "" {
			sessionID = ack.SessionID
		}
		if sessionID == "" {
			sessionID = sess.SessionID
		}
	}

	connectSched.reset()
	resumeSched.reset()

	now := time.Now()
	c.bump(func(s *Snapshot) {
		s.SessionID = sessionID
		s.LastSN = lastSN
		s.BufferedCount = 0
		s.Timers.LastHelloAt = now
		s.Timers.CurrentBackoff = 0
	})
	c.saver.offer(session.Session{LastSN: lastSN, SessionID: sessionID})

	buf := newEventBuffer(lastSN, c.opt.BufferMax)
	c.setState(StateOnline, "handshake complete")
	return c.online(ctx, conn, buf, sessionID, inbound, readErr, early)
}

// online serves an established connection: heartbeats out, frames in,
// ordered events up. Returns when the connection drops or the loop stops.
func (c *Client) online(ctx context.Context, conn Conn, buf *eventBuffer, sessionID string, inbound <-chan codec.Frame, readErr <-chan error, early []codec.Frame) cycleResult {
	hb := newHeartbeat(c.heartbeatMode, c.opt.HeartbeatInterval, c.opt.HeartbeatJitter, c.opt.PongTimeout, c.opt.ProbeDelays)
	timer := time.NewTimer(hb.Start())
	defer timer.Stop()

	resetTimer := func(d time.Duration) {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d)
	}

	keep := func() *session.Session {
		return &session.Session{LastSN: buf.LastSN(), SessionID: sessionID}
	}

	sendPing := func() error {
		if err := conn.Write(ctx, MessageText, codec.EncodePing(buf.LastSN())); err != nil {
			return errors.Wrap(err, "send ping")
		}
		now := time.Now()
		c.bump(func(s *Snapshot) {
			s.Counters.PingSent++
			s.Timers.LastPingAt = now
		})
		return nil
	}

	handle := func(frame codec.Frame) (cycleResult, bool) {
		switch f := frame.(type) {
		case codec.Event:
			ready, overflow := buf.Offer(f)
			if len(ready) > 0 {
				for _, ev := range ready {
					if c.opt.OnEvent != nil {
						c.opt.OnEvent(ev.SN, ev.Data)
					}
				}
				now := time.Now()
				c.bump(func(s *Snapshot) {
					s.LastSN = buf.LastSN()
					s.BufferedCount = buf.Len()
					s.Timers.LastEventAt = now
				})
				c.saver.offer(session.Session{LastSN: buf.LastSN(), SessionID: sessionID})
			} else {
				c.bump(func(s *Snapshot) { s.BufferedCount = buf.Len() })
			}
			if overflow {
				c.fail(errors.Errorf("event buffer overflow, pending: %d", buf.Len()))
				return cycleResult{outcome: cycleDropped, sess: keep()}, true
			}

		case codec.Pong:
			now := time.Now()
			c.bump(func(s *Snapshot) {
				s.Counters.PongRecv++
				s.Timers.LastPongAt = now
			})
			recovered, next := hb.Pong()
			if recovered {
				c.setState(StateOnline, "pong received")
			}
			resetTimer(next)

		case codec.Reconnect:
			c.bump(func(s *Snapshot) { s.Counters.ReconnectNotices++ })
			logs.Infof("gateway requested reconnect, code: %d, err: %s", f.Code, f.Err)
			if codec.ReconnectRequiresClear(f.Code) {
				c.clearStore(ctx)
			}
			return cycleResult{outcome: cycleDropped}, true

		default:
			// Late hello, stray resume ack, unknown signal: nothing to do.
		}
		return cycleResult{}, false
	}

	for _, frame := range early {
		if res, done := handle(frame); done {
			return res
		}
	}

	for {
		select {
		case <-ctx.Done():
			return cycleResult{outcome: cycleStopped, sess: keep()}

		case err := <-readErr:
			c.fail(errors.Wrap(err, "read gateway"))
			return cycleResult{outcome: cycleDropped, sess: keep()}

		case req := <-c.reconnectCh:
			if req.hard {
				c.clearStore(ctx)
				return cycleResult{outcome: cycleDropped}
			}
			return cycleResult{outcome: cycleDropped, sess: keep()}

		case frame := <-inbound:
			c.tapFrame(frame)
			if res, done := handle(frame); done {
				return res
			}

		case <-timer.C:
			action, next := hb.Fire()
			switch action {
			case heartbeatPing:
				if err := sendPing(); err != nil {
					c.fail(err)
					return cycleResult{outcome: cycleDropped, sess: keep()}
				}
			case heartbeatWeakPing:
				c.setState(StateWeak, "pong timeout")
				if err := sendPing(); err != nil {
					c.fail(err)
					return cycleResult{outcome: cycleDropped, sess: keep()}
				}
			case heartbeatClose:
				c.fail(errors.New("liveness probes exhausted"))
				return cycleResult{outcome: cycleDropped, sess: keep()}
			}
			if next > 0 {
				resetTimer(next)
			}
		}
	}
}

// fetchGatewayURL retries until it has a signed URL or the loop stops.
func (c *Client) fetchGatewayURL(ctx context.Context, resuming bool, sess *session.Session) (string, error) {
	params := URLParams{Compress: c.opt.Compress}
	if resuming {
		params.Resume = true
		params.SN = sess.LastSN
		params.SessionID = sess.SessionID
	}

	for {
		url, err := c.opt.provider.GatewayURL(ctx, params)
		if err == nil {
			c.urlBackoff.Reset()
			return url, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		wait := c.urlBackoff.Next()
		c.fail(errors.Wrap(err, "fetch gateway url").With("wait", wait))
		c.bump(func(s *Snapshot) { s.Timers.CurrentBackoff = wait })
		if err := sleep(ctx, wait); err != nil {
			return "", err
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn, inbound chan<- codec.Frame, readErr chan<- error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case readErr <- err:
			default:
			}
			return
		}

		frame, ok := codec.Decode(data)
		if !ok {
			continue
		}

		select {
		case inbound <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// awaitHello waits for the handshake reply, queueing any frame that arrives
// ahead of it for replay once Online.
func (c *Client) awaitHello(ctx context.Context, inbound <-chan codec.Frame, readErr <-chan error, early *[]codec.Frame) (codec.Hello, error) {
	timer := time.NewTimer(c.opt.HelloTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return codec.Hello{}, ctx.Err()
		case err := <-readErr:
			return codec.Hello{}, err
		case <-timer.C:
			return codec.Hello{}, errors.New("hello timeout")
		case frame := <-inbound:
			c.tapFrame(frame)
			if hello, ok := frame.(codec.Hello); ok {
				return hello, nil
			}
			*early = append(*early, frame)
		}
	}
}

func (c *Client) awaitResumeAck(ctx context.Context, inbound <-chan codec.Frame, readErr <-chan error, early *[]codec.Frame) (codec.ResumeAck, error) {
	timer := time.NewTimer(c.opt.ResumeTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return codec.ResumeAck{}, ctx.Err()
		case err := <-readErr:
			return codec.ResumeAck{}, err
		case <-timer.C:
			return codec.ResumeAck{}, errors.New("resume ack timeout")
		case frame := <-inbound:
			c.tapFrame(frame)
			if ack, ok := frame.(codec.ResumeAck); ok {
				return ack, nil
			}
			*early = append(*early, frame)
		}
	}
}

func (c *Client) loadSession(ctx context.Context) *session.Session {
	sess, err := c.store.Load(ctx)
	if err != nil {
		logs.Errorf("load persisted session, err: %+v", err)
		return nil
	}
	if sess != nil {
		c.bump(func(s *Snapshot) {
			s.SessionID = sess.SessionID
			s.LastSN = sess.LastSN
		})
		logs.Infof("loaded persisted session, sn: %d", sess.LastSN)
	}
	return sess
}

func (c *Client) clearStore(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		logs.Errorf("clear persisted session, err: %+v", err)
	}
}

// drainReconnect applies a pending reconnect request while offline. A soft
// request is moot between connections; a hard one still drops the session.
func (c *Client) drainReconnect(ctx context.Context, sess **session.Session) {
	select {
	case req := <-c.reconnectCh:
		if req.hard {
			c.clearStore(ctx)
			*sess = nil
		}
	default:
	}
}

func outcomeFor(ctx context.Context) cycleOutcome {
	if ctx.Err() != nil {
		return cycleStopped
	}
	return cycleFailed
}
