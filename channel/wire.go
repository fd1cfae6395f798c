// Package channel implements the room-scoped broadcast + presence
// transport: a client that multiplexes per-topic handles over one
// websocket, and the wire envelope it shares with the channeld server.
//
// Delivery is fire-and-forget and at-most-once. Nothing is ordered
// relative to other senders and nothing is retried; the only membership
// repair mechanism is the full presence snapshot pushed on every
// roster change.
package channel

import (
	"encoding/json"
	"fmt"
)

// Op is the closed set of operations carried by an Envelope. Inbound
// frames are decoded into this set before any dispatch logic runs;
// unknown ops are dropped at the boundary.
type Op string

const (
	// Client → server.
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
	OpBroadcast   Op = "broadcast"
	OpTrack       Op = "track"
	OpUntrack     Op = "untrack"
	OpPing        Op = "ping"

	// Server → client.
	OpPong          Op = "pong"
	OpPresenceState Op = "presence_state"
)

// Envelope is the single frame shape on the wire.
// Broadcast frames carry Topic, Event and Payload; presence frames
// carry Topic and a PresenceState payload.
type Envelope struct {
	Op      Op              `json:"op"`
	Topic   string          `json:"topic,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PresenceState is a full roster snapshot: tracked payload keyed by
// ephemeral connection ref. Refs are not stable across reconnects.
type PresenceState map[string]json.RawMessage

var validOps = map[Op]struct{}{
	OpSubscribe:     {},
	OpUnsubscribe:   {},
	OpBroadcast:     {},
	OpTrack:         {},
	OpUntrack:       {},
	OpPing:          {},
	OpPong:          {},
	OpPresenceState: {},
}

// DecodeEnvelope parses a raw frame and rejects anything outside the
// closed op set.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if _, ok := validOps[env.Op]; !ok {
		return Envelope{}, fmt.Errorf("unknown op %q", env.Op)
	}
	return env, nil
}

// EncodeEnvelope marshals an envelope for the wire.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}
