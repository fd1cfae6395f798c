package core

import (
	"encoding/json"
	"sync"

	"github.com/avilov/codemesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// topicImpl is a threadsafe in-memory topic.
// It never closes adapter-owned resources.
type topicImpl struct {
	name domain.Topic

	mu       sync.RWMutex
	byRef    map[ConnRef]Subscriber
	presence map[ConnRef]json.RawMessage
}

func NewTopicService(name domain.Topic) TopicService {
	return &topicImpl{
		name:     name,
		byRef:    make(map[ConnRef]Subscriber),
		presence: make(map[ConnRef]json.RawMessage),
	}
}

func (t *topicImpl) Name() domain.Topic { return t.name }

func (t *topicImpl) SubscriberCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byRef)
}

func (t *topicImpl) Subscribe(ref ConnRef, sub Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byRef[ref] = sub
	log.Debug().Str("module", "core.topic").Str("topic", string(t.name)).Str("ref", string(ref)).Msg("subscribed")
}

func (t *topicImpl) Unsubscribe(ref ConnRef) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, hadPresence := t.presence[ref]
	delete(t.presence, ref)
	delete(t.byRef, ref)
	log.Debug().Str("module", "core.topic").Str("topic", string(t.name)).Str("ref", string(ref)).Msg("unsubscribed")
	return hadPresence
}

func (t *topicImpl) Broadcast(from ConnRef, data Frame) PublishResult {
	return t.publish(&from, data)
}

func (t *topicImpl) Fanout(data Frame) PublishResult {
	return t.publish(nil, data)
}

func (t *topicImpl) publish(exclude *ConnRef, data Frame) PublishResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := PublishResult{}
	for ref, sub := range t.byRef {
		if exclude != nil && ref == *exclude {
			continue
		}
		if err := sub.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, ref)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.topic").Str("topic", string(t.name)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("publish result")
	return res
}

func (t *topicImpl) Track(ref ConnRef, payload json.RawMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byRef[ref]; !ok {
		return false
	}
	t.presence[ref] = payload
	return true
}

func (t *topicImpl) Untrack(ref ConnRef) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.presence[ref]; !ok {
		return false
	}
	delete(t.presence, ref)
	return true
}

func (t *topicImpl) PresenceSnapshot() map[ConnRef]json.RawMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[ConnRef]json.RawMessage, len(t.presence))
	for ref, p := range t.presence {
		out[ref] = p
	}
	return out
}
