package collab

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/avilov/codemesh/channel"
)

// topicBus is an in-memory stand-in for one broadcast topic: a
// broadcast reaches every endpoint except its sender, and every track
// fans a full presence snapshot out to everyone, sender included.
type topicBus struct {
	mu        sync.Mutex
	endpoints []*fakeTopic
	presence  channel.PresenceState
	nextRef   int
}

func newTopicBus() *topicBus {
	return &topicBus{presence: channel.PresenceState{}}
}

func (b *topicBus) join(t *testing.T) *fakeTopic {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	ft := &fakeTopic{
		bus:      b,
		ref:      string(rune('a' + b.nextRef)),
		handlers: make(map[string][]func(json.RawMessage)),
	}
	b.nextRef++
	b.endpoints = append(b.endpoints, ft)
	return ft
}

type fakeTopic struct {
	bus *topicBus
	ref string

	mu          sync.Mutex
	handlers    map[string][]func(json.RawMessage)
	presenceFns []func(channel.PresenceState)
	sent        []json.RawMessage
	closed      bool
}

func (f *fakeTopic) Broadcast(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, raw)
	f.mu.Unlock()

	f.bus.mu.Lock()
	peers := make([]*fakeTopic, len(f.bus.endpoints))
	copy(peers, f.bus.endpoints)
	f.bus.mu.Unlock()
	for _, p := range peers {
		if p == f {
			continue
		}
		p.deliver(event, raw)
	}
	return nil
}

func (f *fakeTopic) On(event string, fn func(payload json.RawMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], fn)
}

func (f *fakeTopic) Track(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.bus.mu.Lock()
	f.bus.presence[f.ref] = raw
	state := make(channel.PresenceState, len(f.bus.presence))
	for k, v := range f.bus.presence {
		state[k] = v
	}
	peers := make([]*fakeTopic, len(f.bus.endpoints))
	copy(peers, f.bus.endpoints)
	f.bus.mu.Unlock()

	for _, p := range peers {
		p.deliverPresence(state)
	}
	return nil
}

func (f *fakeTopic) OnPresenceSync(fn func(channel.PresenceState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presenceFns = append(f.presenceFns, fn)
}

func (f *fakeTopic) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTopic) deliver(event string, raw json.RawMessage) {
	f.mu.Lock()
	fns := append([]func(json.RawMessage){}, f.handlers[event]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(raw)
	}
}

func (f *fakeTopic) deliverPresence(state channel.PresenceState) {
	f.mu.Lock()
	fns := append([]func(channel.PresenceState){}, f.presenceFns...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func (f *fakeTopic) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
