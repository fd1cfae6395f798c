// Package ws adapts websocket connections to the hub: one bounded
// send queue per connection, a read pump that decodes envelopes at the
// boundary, and a write pump that owns the socket.
package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/avilov/codemesh/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// wsConn implements core.SignalConnection over a gorilla websocket.
// TrySend never blocks: a full queue means the subscriber is too slow
// and the frame is dropped, which is the contract of this transport.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(conn *websocket.Conn, queue int) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan core.Frame, queue),
	}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
