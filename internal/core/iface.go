package core

import (
	"encoding/json"

	"github.com/avilov/codemesh/internal/domain"
)

// Frame is a raw encoded envelope.
type Frame []byte

// ConnRef is the ephemeral identifier of one websocket connection.
// Presence rosters are keyed by ConnRef, not participant id, so a
// reconnect shows up as a new entry.
type ConnRef string

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Subscriber binds a participant identity and its transport endpoint.
// This is what a topic stores and fans out to.
type Subscriber interface {
	Meta() *domain.Participant
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure to the adapter.
// Dropped subscribers missed the frame; delivery is at-most-once and
// nothing is retried.
type PublishResult struct {
	SentTo  int
	Dropped []ConnRef
}

// TopicService is the core-facing API of one broadcast topic.
// It owns the subscriber set and presence roster but never touches
// transport resources.
type TopicService interface {
	Name() domain.Topic
	SubscriberCount() int

	Subscribe(ref ConnRef, sub Subscriber)
	// Unsubscribe removes the connection and reports whether it was
	// tracked in presence, so the caller knows a resync is due.
	Unsubscribe(ref ConnRef) (hadPresence bool)

	// Broadcast fans out to every subscriber except the sender.
	Broadcast(from ConnRef, data Frame) PublishResult
	// Fanout delivers to every subscriber including the originator;
	// used for presence snapshots.
	Fanout(data Frame) PublishResult

	// Track stores the presence payload for a subscribed connection.
	// Returns false when the connection is not subscribed.
	Track(ref ConnRef, payload json.RawMessage) bool
	Untrack(ref ConnRef) bool
	PresenceSnapshot() map[ConnRef]json.RawMessage
}

type TopicInfo struct {
	Name        domain.Topic `json:"name"`
	Subscribers int          `json:"subscriber_count"`
}

type TopicManager interface {
	GetOrCreate(name domain.Topic) TopicService
	Get(name domain.Topic) (TopicService, bool)
	List() []TopicInfo
	Stop(name domain.Topic)
}
