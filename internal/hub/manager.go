// Package hub wires topics, connection registry and the optional room
// directory into the server-side transport core.
package hub

import (
	"sync"

	"github.com/avilov/codemesh/internal/core"
	"github.com/avilov/codemesh/internal/domain"
)

type TopicManagerImpl struct {
	mu     sync.RWMutex
	topics map[domain.Topic]core.TopicService
}

func NewTopicManager() core.TopicManager {
	return &TopicManagerImpl{topics: make(map[domain.Topic]core.TopicService)}
}

func (m *TopicManagerImpl) GetOrCreate(name domain.Topic) core.TopicService {
	m.mu.RLock()
	topic, ok := m.topics[name]
	m.mu.RUnlock()
	if ok {
		return topic
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if topic, ok = m.topics[name]; ok {
		return topic
	}
	topic = core.NewTopicService(name)
	m.topics[name] = topic
	return topic
}

func (m *TopicManagerImpl) Get(name domain.Topic) (core.TopicService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	topic, ok := m.topics[name]
	return topic, ok
}

func (m *TopicManagerImpl) List() []core.TopicInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.TopicInfo, 0, len(m.topics))
	for name, t := range m.topics {
		out = append(out, core.TopicInfo{Name: name, Subscribers: t.SubscriberCount()})
	}
	return out
}

func (m *TopicManagerImpl) Stop(name domain.Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.topics, name)
}
