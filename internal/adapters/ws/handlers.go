package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avilov/codemesh/channel"
	"github.com/avilov/codemesh/internal/core"
	"github.com/avilov/codemesh/internal/domain"
)

// handleFrame decodes one inbound frame into the closed op set and
// dispatches it. Anything malformed or unknown is logged and dropped;
// the transport makes no promises to the sender.
func (ctl *Controller) handleFrame(ctx context.Context, ref core.ConnRef, c *wsConn, data []byte) {
	env, err := channel.DecodeEnvelope(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("ref", string(ref)).Msg("bad frame")
		return
	}

	switch env.Op {
	case channel.OpSubscribe:
		ctl.handleSubscribe(ctx, ref, c, env)
	case channel.OpUnsubscribe:
		ctl.handleUnsubscribe(ctx, ref, env)
	case channel.OpBroadcast:
		ctl.handleBroadcast(ref, env, data)
	case channel.OpTrack:
		ctl.handleTrack(ref, env)
	case channel.OpUntrack:
		ctl.handleUntrack(ref, env)
	case channel.OpPing:
		ctl.sendEnvelope(c, channel.Envelope{Op: channel.OpPong})
	default:
		log.Warn().Str("module", "ws").Str("op", string(env.Op)).Msg("op not valid from client")
	}
}

func (ctl *Controller) handleSubscribe(ctx context.Context, ref core.ConnRef, c *wsConn, env channel.Envelope) {
	name := domain.Topic(env.Topic)
	if !name.Valid() {
		log.Warn().Str("module", "ws").Str("topic", env.Topic).Msg("invalid topic")
		return
	}
	topic, ok := ctl.Hub.Subscribe(ctx, ref, name)
	if !ok {
		return
	}
	// Late joiners get the current roster immediately instead of
	// waiting for the next track/untrack.
	if snap := topic.PresenceSnapshot(); len(snap) > 0 {
		ctl.sendEnvelope(c, presenceEnvelope(topic.Name(), snap))
	}
}

func (ctl *Controller) handleUnsubscribe(ctx context.Context, ref core.ConnRef, env channel.Envelope) {
	topic, hadPresence := ctl.Hub.Unsubscribe(ctx, ref, domain.Topic(env.Topic))
	if hadPresence && topic.SubscriberCount() > 0 {
		ctl.resyncPresence(topic)
	}
}

// handleBroadcast relays the original frame verbatim to every other
// subscriber. Payloads are opaque here; decoding message kinds is the
// receiver's business.
func (ctl *Controller) handleBroadcast(ref core.ConnRef, env channel.Envelope, raw []byte) {
	topic, ok := ctl.Hub.Topics.Get(domain.Topic(env.Topic))
	if !ok {
		return
	}
	topic.Broadcast(ref, core.Frame(raw))
}

func (ctl *Controller) handleTrack(ref core.ConnRef, env channel.Envelope) {
	topic, ok := ctl.Hub.Topics.Get(domain.Topic(env.Topic))
	if !ok {
		return
	}
	if topic.Track(ref, env.Payload) {
		ctl.resyncPresence(topic)
	}
}

func (ctl *Controller) handleUntrack(ref core.ConnRef, env channel.Envelope) {
	topic, ok := ctl.Hub.Topics.Get(domain.Topic(env.Topic))
	if !ok {
		return
	}
	if topic.Untrack(ref) {
		ctl.resyncPresence(topic)
	}
}

// resyncPresence pushes the full roster snapshot to every subscriber,
// the tracker included. Full snapshots on every change are what lets
// receivers survive missed frames.
func (ctl *Controller) resyncPresence(topic core.TopicService) {
	frame, err := channel.EncodeEnvelope(presenceEnvelope(topic.Name(), topic.PresenceSnapshot()))
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("encode presence state")
		return
	}
	topic.Fanout(core.Frame(frame))
}

func presenceEnvelope(name domain.Topic, snap map[core.ConnRef]json.RawMessage) channel.Envelope {
	state := make(channel.PresenceState, len(snap))
	for ref, payload := range snap {
		state[string(ref)] = payload
	}
	raw, err := json.Marshal(state)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("marshal presence state")
	}
	return channel.Envelope{
		Op:      channel.OpPresenceState,
		Topic:   string(name),
		Payload: raw,
	}
}

func (ctl *Controller) sendEnvelope(c *wsConn, env channel.Envelope) {
	b, err := channel.EncodeEnvelope(env)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("sendEnvelope encode")
		return
	}
	_ = c.TrySend(core.Frame(b))
}
