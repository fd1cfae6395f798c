package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrClientClosed = errors.New("channel: client closed")
	ErrTopicOpen    = errors.New("channel: topic already open")
)

type Option func(*Client)

// WithToken attaches a bearer token to the dial; the server resolves
// it into the participant identity.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// Client multiplexes topic handles over one websocket. A single read
// loop dispatches inbound frames to handles sequentially, so handler
// code runs on one logical thread of control.
type Client struct {
	conn  *websocket.Conn
	token string
	log   zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool

	done chan struct{}
}

// Dial connects to a channeld endpoint, e.g. "ws://host:8080/api/ws".
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Client, error) {
	c := &Client{
		handles: make(map[string]*Handle),
		done:    make(chan struct{}),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("channel: parse url: %w", err)
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("channel: dial: %w", err)
	}
	c.conn = conn

	go c.readLoop()
	return c, nil
}

// Open subscribes to a topic and returns its handle. Each feature
// opens its own topic even within one room.
func (c *Client) Open(topic string) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if _, ok := c.handles[topic]; ok {
		return nil, ErrTopicOpen
	}
	h := newHandle(c, topic)
	c.handles[topic] = h
	if err := c.write(Envelope{Op: OpSubscribe, Topic: topic}); err != nil {
		delete(c.handles, topic)
		return nil, err
	}
	return h, nil
}

// Close tears the connection down; every open handle becomes inert.
// Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	handles := make([]*Handle, 0, len(c.handles))
	for _, h := range c.handles {
		handles = append(handles, h)
	}
	c.handles = make(map[string]*Handle)
	c.mu.Unlock()

	for _, h := range handles {
		h.markClosed()
	}
	_ = c.conn.Close()
}

// Done is closed when the read loop exits, whatever the reason.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) write(env Envelope) error {
	b, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("channel: write: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Str("module", "channel").Msg("read loop exiting")
			c.Close()
			return
		}
		env, err := DecodeEnvelope(data)
		if err != nil {
			c.log.Warn().Err(err).Str("module", "channel").Msg("dropping bad frame")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	c.mu.Lock()
	h, ok := c.handles[env.Topic]
	c.mu.Unlock()

	switch env.Op {
	case OpBroadcast:
		if ok {
			h.deliver(env.Event, env.Payload)
		}
	case OpPresenceState:
		if !ok {
			return
		}
		var state PresenceState
		if err := unmarshalPresence(env.Payload, &state); err != nil {
			c.log.Warn().Err(err).Str("module", "channel").Msg("bad presence state")
			return
		}
		h.deliverPresence(state)
	case OpPong:
		// Keepalive reply, nothing to do.
	default:
		c.log.Warn().Str("module", "channel").Str("op", string(env.Op)).Msg("unexpected op from server")
	}
}

func (c *Client) dropHandle(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handles, topic)
}
