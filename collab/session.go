package collab

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/avilov/codemesh/channel"
	"github.com/avilov/codemesh/collab/call"
	"github.com/avilov/codemesh/collab/call/media"
	"github.com/avilov/codemesh/internal/domain"
)

// Session wires the engines of one participant over one channel
// client. Each feature joins its own topic; disposing a feature closes
// only that topic, disposing the session closes everything.
type Session struct {
	client   *channel.Client
	identity Identity
	clock    clockwork.Clock
	log      zerolog.Logger
}

type SessionOption func(*Session)

func WithClock(clock clockwork.Clock) SessionOption {
	return func(s *Session) { s.clock = clock }
}

func WithSessionLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = logger }
}

func NewSession(client *channel.Client, identity Identity, opts ...SessionOption) *Session {
	s := &Session{
		client:   client,
		identity: identity,
		clock:    clockwork.NewRealClock(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Identity() Identity { return s.identity }

// RoomSession is one joined review room: document sync, chat and the
// presence roster over a single room topic.
type RoomSession struct {
	Code     *CodeSync
	Chat     *ChatRelay
	Presence *Roster

	handle *channel.Handle
}

// JoinRoom opens the room topic, announces presence and starts the
// code and chat engines.
func (s *Session) JoinRoom(roomID string) (*RoomSession, error) {
	handle, err := s.client.Open(string(domain.CollabRoomTopic(roomID)))
	if err != nil {
		return nil, fmt.Errorf("collab: join room %s: %w", roomID, err)
	}

	rs := &RoomSession{
		Code:     NewCodeSync(handle, s.identity, s.clock, s.log),
		Chat:     NewChatRelay(handle, s.identity, s.clock, s.log),
		Presence: newRoster(handle, s.log),
		handle:   handle,
	}
	if err := handle.Track(PresenceEntry{ID: s.identity.ParticipantID, Color: s.identity.Color}); err != nil {
		s.log.Warn().Err(err).Str("module", "collab.session").Str("room", roomID).Msg("presence track failed")
	}
	return rs, nil
}

// Dispose stops the engines and leaves the room topic. Idempotent.
func (rs *RoomSession) Dispose() {
	rs.Code.Dispose()
	rs.Chat.Dispose()
	rs.handle.Close()
}

// TimerSession is one joined countdown topic.
type TimerSession struct {
	Timer *TimerReplicator

	handle *channel.Handle
}

// JoinTimer opens the countdown topic for a submission. The owner runs
// the authoritative countdown; everyone else mirrors it.
func (s *Session) JoinTimer(submissionID string, owner bool) (*TimerSession, error) {
	handle, err := s.client.Open(string(domain.TimerTopic(submissionID)))
	if err != nil {
		return nil, fmt.Errorf("collab: join timer %s: %w", submissionID, err)
	}
	return &TimerSession{
		Timer:  NewTimerReplicator(handle, s.identity, owner, s.clock, s.log),
		handle: handle,
	}, nil
}

func (ts *TimerSession) Dispose() {
	ts.Timer.Dispose()
	ts.handle.Close()
}

// CallSession is one joined call: the mesh over the room's signaling
// topic.
type CallSession struct {
	Mesh *call.Mesh

	handle *channel.Handle
}

// JoinCall opens the signaling topic and joins the mesh. Media failure
// closes the topic again and surfaces the error so the caller can
// disable the call feature.
func (s *Session) JoinCall(roomID string, source media.Source, factory call.LinkFactory, withVideo bool) (*CallSession, error) {
	handle, err := s.client.Open(string(domain.CallTopic(roomID)))
	if err != nil {
		return nil, fmt.Errorf("collab: join call %s: %w", roomID, err)
	}
	mesh := call.NewMesh(handle, s.identity.ParticipantID, source, factory, s.log)
	if err := mesh.Join(withVideo); err != nil {
		handle.Close()
		return nil, fmt.Errorf("collab: join call %s: %w", roomID, err)
	}
	return &CallSession{Mesh: mesh, handle: handle}, nil
}

// Dispose leaves the mesh and the signaling topic. Idempotent.
func (cs *CallSession) Dispose() {
	cs.Mesh.Dispose()
}

// Dispose closes the underlying client; every open handle becomes
// inert.
func (s *Session) Dispose() {
	s.client.Close()
}
