package channel

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Handle is one open topic: broadcast out, handlers in, presence
// roster sync. Broadcast is fire-and-forget and at-most-once; a
// returned nil error means "sent", never "delivered".
type Handle struct {
	client *Client
	topic  string

	mu          sync.RWMutex
	handlers    map[string][]func(json.RawMessage)
	presenceFns []func(PresenceState)
	closed      bool
}

func newHandle(c *Client, topic string) *Handle {
	return &Handle{
		client:   c,
		topic:    topic,
		handlers: make(map[string][]func(json.RawMessage)),
	}
}

func (h *Handle) Topic() string { return h.topic }

// Broadcast sends an event to every other current subscriber of the
// topic. The sender never receives its own broadcast.
func (h *Handle) Broadcast(event string, payload any) error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return ErrClientClosed
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("channel: marshal payload: %w", err)
	}
	return h.client.write(Envelope{
		Op:      OpBroadcast,
		Topic:   h.topic,
		Event:   event,
		Payload: raw,
	})
}

// On registers a handler for an event. Handlers run sequentially on
// the client's read loop, in arrival order.
func (h *Handle) On(event string, fn func(payload json.RawMessage)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = append(h.handlers[event], fn)
}

// Track publishes this connection's presence payload; every
// subscriber (this one included) gets a fresh full roster snapshot.
func (h *Handle) Track(payload any) error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return ErrClientClosed
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("channel: marshal presence: %w", err)
	}
	return h.client.write(Envelope{Op: OpTrack, Topic: h.topic, Payload: raw})
}

// Untrack removes this connection from the roster without leaving the
// topic.
func (h *Handle) Untrack() error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return ErrClientClosed
	}
	return h.client.write(Envelope{Op: OpUntrack, Topic: h.topic})
}

// OnPresenceSync registers a full-snapshot callback fired on any
// roster change.
func (h *Handle) OnPresenceSync(fn func(PresenceState)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presenceFns = append(h.presenceFns, fn)
}

// Close unsubscribes and detaches every handler. Idempotent.
func (h *Handle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.handlers = make(map[string][]func(json.RawMessage))
	h.presenceFns = nil
	h.mu.Unlock()

	_ = h.client.write(Envelope{Op: OpUnsubscribe, Topic: h.topic})
	h.client.dropHandle(h.topic)
}

// markClosed is Close without the unsubscribe frame, for when the
// client itself is going away.
func (h *Handle) markClosed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.handlers = make(map[string][]func(json.RawMessage))
	h.presenceFns = nil
}

func (h *Handle) deliver(event string, payload json.RawMessage) {
	h.mu.RLock()
	fns := make([]func(json.RawMessage), len(h.handlers[event]))
	copy(fns, h.handlers[event])
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(payload)
	}
}

func (h *Handle) deliverPresence(state PresenceState) {
	h.mu.RLock()
	fns := make([]func(PresenceState), len(h.presenceFns))
	copy(fns, h.presenceFns)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(state)
	}
}

func unmarshalPresence(raw json.RawMessage, state *PresenceState) error {
	if len(raw) == 0 {
		*state = PresenceState{}
		return nil
	}
	return json.Unmarshal(raw, state)
}
