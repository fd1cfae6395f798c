package collab

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func TestChatSendReachesOthersNotSelf(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	alice := NewChatRelay(bus.join(t), Identity{ParticipantID: "alice"}, clock, zerolog.Nop())
	bob := NewChatRelay(bus.join(t), Identity{ParticipantID: "bob"}, clock, zerolog.Nop())

	got := make(chan ChatMessage, 1)
	bob.OnMessage(func(m ChatMessage) { got <- m })

	sent := alice.Send("ship it")
	if sent.SenderID != "alice" || !sent.Timestamp.Equal(clock.Now()) {
		t.Fatalf("sent = %+v", sent)
	}

	select {
	case m := <-got:
		if m.Text != "ship it" || m.SenderID != "alice" {
			t.Fatalf("bob got %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bob never received the message")
	}

	// Sender history has exactly the local append, no echo duplicate.
	if h := alice.History(); len(h) != 1 {
		t.Fatalf("alice history = %d entries, want 1", len(h))
	}
	if h := bob.History(); len(h) != 1 {
		t.Fatalf("bob history = %d entries, want 1", len(h))
	}
}

func TestChatIgnoresOwnEcho(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	topic := bus.join(t)
	alice := NewChatRelay(topic, Identity{ParticipantID: "alice"}, clock, zerolog.Nop())

	raw, _ := json.Marshal(ChatMessage{SenderID: "alice", Text: "echo", Timestamp: clock.Now()})
	topic.deliver(chatEvent, raw)

	if h := alice.History(); len(h) != 0 {
		t.Fatalf("history = %+v, own echo must be dropped", h)
	}
}

func TestChatHistoryIsSessionLocal(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	alice := NewChatRelay(bus.join(t), Identity{ParticipantID: "alice"}, clock, zerolog.Nop())
	alice.Send("first")

	// A later joiner starts with an empty history; nothing is replayed.
	carol := NewChatRelay(bus.join(t), Identity{ParticipantID: "carol"}, clock, zerolog.Nop())
	if h := carol.History(); len(h) != 0 {
		t.Fatalf("late joiner history = %+v, want empty", h)
	}

	alice.Send("second")
	if h := carol.History(); len(h) != 1 || h[0].Text != "second" {
		t.Fatalf("carol history = %+v", h)
	}
	if h := alice.History(); len(h) != 2 {
		t.Fatalf("alice history = %d entries", len(h))
	}
}

func TestChatDisposeStopsDelivery(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	alice := NewChatRelay(bus.join(t), Identity{ParticipantID: "alice"}, clock, zerolog.Nop())
	bob := NewChatRelay(bus.join(t), Identity{ParticipantID: "bob"}, clock, zerolog.Nop())

	bob.Dispose()
	alice.Send("into the void")
	if h := bob.History(); len(h) != 0 {
		t.Fatalf("disposed relay appended %+v", h)
	}
}
