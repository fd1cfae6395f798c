package collab

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const chatEvent = "chat"

// ChatMessage exists only in memory for the session. Nothing survives
// a reconnect.
type ChatMessage struct {
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRelay broadcasts unpersisted chat over the room topic.
type ChatRelay struct {
	identity Identity
	topic    Topic
	clock    clockwork.Clock
	log      zerolog.Logger

	mu        sync.Mutex
	history   []ChatMessage
	observers []func(ChatMessage)
	disposed  bool
}

func NewChatRelay(topic Topic, identity Identity, clock clockwork.Clock, logger zerolog.Logger) *ChatRelay {
	cr := &ChatRelay{
		identity: identity,
		topic:    topic,
		clock:    clock,
		log:      logger,
	}
	topic.On(chatEvent, cr.onInbound)
	return cr
}

// Send broadcasts a message and appends it locally; the transport
// never echoes a broadcast back to its sender.
func (cr *ChatRelay) Send(text string) ChatMessage {
	msg := ChatMessage{
		SenderID:  cr.identity.ParticipantID,
		Text:      text,
		Timestamp: cr.clock.Now(),
	}
	cr.append(msg)
	if err := cr.topic.Broadcast(chatEvent, msg); err != nil {
		cr.log.Debug().Err(err).Str("module", "collab.chat").Msg("chat broadcast failed")
	}
	return msg
}

func (cr *ChatRelay) onInbound(raw json.RawMessage) {
	var msg ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		cr.log.Warn().Err(err).Str("module", "collab.chat").Msg("bad chat message")
		return
	}
	if msg.SenderID == cr.identity.ParticipantID {
		return
	}
	cr.append(msg)
}

func (cr *ChatRelay) append(msg ChatMessage) {
	cr.mu.Lock()
	if cr.disposed {
		cr.mu.Unlock()
		return
	}
	cr.history = append(cr.history, msg)
	observers := make([]func(ChatMessage), len(cr.observers))
	copy(observers, cr.observers)
	cr.mu.Unlock()

	for _, fn := range observers {
		fn(msg)
	}
}

func (cr *ChatRelay) History() []ChatMessage {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	out := make([]ChatMessage, len(cr.history))
	copy(out, cr.history)
	return out
}

func (cr *ChatRelay) OnMessage(fn func(ChatMessage)) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.observers = append(cr.observers, fn)
}

// Dispose detaches observers; history is dropped with the session.
func (cr *ChatRelay) Dispose() {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.disposed = true
	cr.observers = nil
}
