package hub

import (
	"context"
	"sync"

	"github.com/avilov/codemesh/internal/core"
	"github.com/avilov/codemesh/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Session core.Subscriber
	Topics  map[domain.Topic]struct{}
	Cancel  context.CancelFunc
}

// Registry maps live connections to their identity, session and
// subscribed topics. It is the single source of truth for "what does
// this connection need cleaned up on disconnect".
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnRef]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.ConnRef]*connEntry)}
}

func (r *Registry) Bind(ref core.ConnRef, sess core.Subscriber, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[ref] = &connEntry{
		Session: sess,
		Topics:  make(map[domain.Topic]struct{}),
		Cancel:  cancel,
	}
	log.Info().Str("module", "hub.registry").Str("ref", string(ref)).Str("participant", string(sess.Meta().ID)).Msg("bound connection")
}

func (r *Registry) Session(ref core.ConnRef) (core.Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[ref]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) AddTopic(ref core.ConnRef, name domain.Topic) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[ref]
	if !ok {
		return false
	}
	e.Topics[name] = struct{}{}
	return true
}

func (r *Registry) RemoveTopic(ref core.ConnRef, name domain.Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[ref]; ok {
		delete(e.Topics, name)
	}
}

func (r *Registry) TopicsOf(ref core.ConnRef) []domain.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[ref]
	if !ok {
		return nil
	}
	out := make([]domain.Topic, 0, len(e.Topics))
	for name := range e.Topics {
		out = append(out, name)
	}
	return out
}

func (r *Registry) Unbind(ref core.ConnRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, ref)
	log.Info().Str("module", "hub.registry").Str("ref", string(ref)).Msg("unbound connection")
}

func (r *Registry) Cancel(ref core.ConnRef) bool {
	r.mu.RLock()
	e, ok := r.conns[ref]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
