package hub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/avilov/codemesh/internal/core"
	"github.com/avilov/codemesh/internal/domain"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func bindConn(t *testing.T, h *Hub, ref string) {
	t.Helper()
	p, err := domain.NewParticipant(ref, "")
	if err != nil {
		t.Fatalf("NewParticipant: %v", err)
	}
	h.Registry.Bind(core.ConnRef(ref), core.NewSubscriber(p, nopConn{}), nil)
}

func newHub() *Hub {
	return New(NewTopicManager(), NewRegistry(), nil)
}

func TestTopicManagerGetOrCreateIsStable(t *testing.T) {
	m := NewTopicManager()
	a := m.GetOrCreate(domain.CollabRoomTopic("r1"))
	b := m.GetOrCreate(domain.CollabRoomTopic("r1"))
	if a != b {
		t.Fatalf("GetOrCreate returned distinct instances for the same topic")
	}
	if _, ok := m.Get(domain.CollabRoomTopic("r2")); ok {
		t.Errorf("Get returned a topic that was never created")
	}
}

func TestSubscribeRequiresBoundConnection(t *testing.T) {
	h := newHub()
	if _, ok := h.Subscribe(context.Background(), "ghost", domain.CollabRoomTopic("r1")); ok {
		t.Fatalf("Subscribe accepted an unbound connection")
	}
}

func TestUnsubscribeStopsEmptyTopic(t *testing.T) {
	h := newHub()
	ctx := context.Background()
	bindConn(t, h, "conn-a")

	name := domain.TimerTopic("sub-1")
	if _, ok := h.Subscribe(ctx, "conn-a", name); !ok {
		t.Fatalf("Subscribe failed")
	}
	if got := len(h.Topics.List()); got != 1 {
		t.Fatalf("List has %d topics, want 1", got)
	}

	h.Unsubscribe(ctx, "conn-a", name)
	if _, ok := h.Topics.Get(name); ok {
		t.Errorf("empty topic was not stopped")
	}
}

func TestDropConnectionReportsResyncTopics(t *testing.T) {
	h := newHub()
	ctx := context.Background()
	bindConn(t, h, "conn-a")
	bindConn(t, h, "conn-b")

	call := domain.CallTopic("r1")
	room := domain.CollabRoomTopic("r1")
	for _, ref := range []core.ConnRef{"conn-a", "conn-b"} {
		h.Subscribe(ctx, ref, call)
		h.Subscribe(ctx, ref, room)
	}

	// Only the call topic carries presence for conn-a.
	topic, _ := h.Topics.Get(call)
	topic.Track("conn-a", json.RawMessage(`{"id":"alice"}`))

	resync := h.DropConnection(ctx, "conn-a")
	if len(resync) != 1 || resync[0].Name() != call {
		t.Fatalf("resync topics = %v, want just the call topic", resync)
	}
	if _, ok := h.Registry.Session("conn-a"); ok {
		t.Errorf("dropped connection still bound")
	}
	if topic.SubscriberCount() != 1 {
		t.Errorf("call topic subscriber count = %d, want 1", topic.SubscriberCount())
	}
}
