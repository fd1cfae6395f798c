package hub

import (
	"context"

	"github.com/avilov/codemesh/internal/core"
	"github.com/avilov/codemesh/internal/directory"
	"github.com/avilov/codemesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// Hub coordinates the topic manager, the connection registry and the
// room directory. The websocket adapter drives it; the hub never
// touches transport framing.
type Hub struct {
	Topics    core.TopicManager
	Registry  *Registry
	Directory directory.Directory
}

func New(topics core.TopicManager, registry *Registry, dir directory.Directory) *Hub {
	if dir == nil {
		dir = directory.Nop{}
	}
	return &Hub{Topics: topics, Registry: registry, Directory: dir}
}

// Subscribe attaches a bound connection to a topic.
func (h *Hub) Subscribe(ctx context.Context, ref core.ConnRef, name domain.Topic) (core.TopicService, bool) {
	sess, ok := h.Registry.Session(ref)
	if !ok {
		return nil, false
	}
	topic := h.Topics.GetOrCreate(name)
	topic.Subscribe(ref, sess)
	h.Registry.AddTopic(ref, name)
	h.Directory.Join(ctx, string(name), string(sess.Meta().ID))
	return topic, true
}

// Unsubscribe detaches a connection from one topic. It reports whether
// the connection was tracked there, so the caller knows a presence
// resync is due before the topic is possibly stopped.
func (h *Hub) Unsubscribe(ctx context.Context, ref core.ConnRef, name domain.Topic) (core.TopicService, bool) {
	topic, ok := h.Topics.Get(name)
	if !ok {
		return nil, false
	}
	hadPresence := topic.Unsubscribe(ref)
	h.Registry.RemoveTopic(ref, name)
	if sess, ok := h.Registry.Session(ref); ok {
		h.Directory.Leave(ctx, string(name), string(sess.Meta().ID))
	}
	if topic.SubscriberCount() == 0 {
		h.Topics.Stop(name)
		log.Debug().Str("module", "hub").Str("topic", string(name)).Msg("stopped empty topic")
	}
	return topic, hadPresence
}

// DropConnection tears down everything a closed connection held and
// returns the topics that still need a presence resync.
func (h *Hub) DropConnection(ctx context.Context, ref core.ConnRef) []core.TopicService {
	var resync []core.TopicService
	for _, name := range h.Registry.TopicsOf(ref) {
		if topic, hadPresence := h.Unsubscribe(ctx, ref, name); hadPresence && topic.SubscriberCount() > 0 {
			resync = append(resync, topic)
		}
	}
	h.Registry.Unbind(ref)
	return resync
}
