// Package transport provides the default gateway.Dialer on top of
// gorilla/websocket.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"

	"main/internal/gateway"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteWait        = 10 * time.Second
)

// Dialer dials gateway URLs over websocket.
type Dialer struct {
	// HandshakeTimeout bounds the upgrade. Optional; default 10s.
	HandshakeTimeout time.Duration
	// Header is sent with the upgrade request. Optional.
	Header http.Header
}

func (d *Dialer) Dial(ctx context.Context, url string) (gateway.Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}

	wd := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	ws, resp, err := wd.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, errors.Wrap(err, "dial websocket").With("status", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "dial websocket")
	}
	return &conn{ws: ws}, nil
}

// conn adapts one gorilla connection to the gateway.Conn contract. Reads
// stay on the connection loop; the write mutex covers pings sent while a
// caller uses Send concurrently.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) Read(ctx context.Context) (gateway.MessageType, []byte, error) {
	// gorilla reads are not context-aware; closing the socket unblocks them.
	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, errors.Wrap(err, "read message")
	}

	switch msgType {
	case websocket.TextMessage:
		return gateway.MessageText, data, nil
	default:
		return gateway.MessageBinary, data, nil
	}
}

func (c *conn) Write(ctx context.Context, msgType gateway.MessageType, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteWait)
	}
	_ = c.ws.SetWriteDeadline(deadline)

	wire := websocket.BinaryMessage
	if msgType == gateway.MessageText {
		wire = websocket.TextMessage
	}

	if err := c.ws.WriteMessage(wire, payload); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

func (c *conn) SetPongHandler(fn func()) {
	c.ws.SetPongHandler(func(string) error {
		fn()
		return nil
	})
}

func (c *conn) Close() error {
	return c.ws.Close()
}
