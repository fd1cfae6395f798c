package call

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/avilov/codemesh/collab/call/media"
)

// Signaler is the slice of the channel contract the mesh consumes.
type Signaler interface {
	Broadcast(event string, payload any) error
	On(event string, fn func(payload json.RawMessage))
	Close()
}

// peer is one remote participant: its exclusively-owned link and the
// remote stream populated incrementally from it.
type peer struct {
	id     string
	link   Link
	tracks []RemoteTrack
}

// Mesh runs the per-peer signaling state machine for a full-mesh call.
// Only existing members offer to a new joiner, so each unordered pair
// negotiates exactly once, provided the announce is delivered; there
// is no confirmation or retry if it is not.
type Mesh struct {
	selfID  string
	sig     Signaler
	source  media.Source
	newLink LinkFactory
	log     zerolog.Logger

	mu        sync.Mutex
	peers     map[string]*peer
	audio     webrtc.TrackLocal
	video     webrtc.TrackLocal
	joined    bool
	observers []func()
}

func NewMesh(sig Signaler, selfID string, source media.Source, factory LinkFactory, logger zerolog.Logger) *Mesh {
	m := &Mesh{
		selfID:  selfID,
		sig:     sig,
		source:  source,
		newLink: factory,
		log:     logger,
		peers:   make(map[string]*peer),
	}
	sig.On(signalEvent, m.onSignal)
	return m
}

// Join acquires local media and announces once. Audio failure aborts
// the join so the caller can disable the call feature; video failure
// degrades to audio-only.
func (m *Mesh) Join(withVideo bool) error {
	m.mu.Lock()
	if m.joined {
		m.mu.Unlock()
		return nil
	}
	audio, err := m.source.AudioTrack()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("call: join: %w", err)
	}
	m.audio = audio
	if withVideo {
		if video, err := m.source.VideoTrack(); err != nil {
			m.log.Warn().Err(err).Str("module", "call.mesh").Msg("video unavailable, continuing audio-only")
		} else {
			m.video = video
		}
	}
	m.joined = true
	m.mu.Unlock()

	// Announce outside the lock: the resulting offers re-enter onSignal.
	m.send(Signal{Kind: KindAnnounce, From: m.selfID})
	return nil
}

func (m *Mesh) Joined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joined
}

// Peers returns the ids of remote participants with an active link.
func (m *Mesh) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.peers))
	for id := range m.peers {
		out = append(out, id)
	}
	return out
}

// RemoteTracks returns the remote stream for one peer.
func (m *Mesh) RemoteTracks(peerID string) []RemoteTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peerID]
	if !ok {
		return nil
	}
	out := make([]RemoteTrack, len(p.tracks))
	copy(out, p.tracks)
	return out
}

// LocalTracks returns the local preview tracks.
func (m *Mesh) LocalTracks() []webrtc.TrackLocal {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []webrtc.TrackLocal
	if m.audio != nil {
		out = append(out, m.audio)
	}
	if m.video != nil {
		out = append(out, m.video)
	}
	return out
}

// OnPeersChanged fires after any peer or remote track change.
func (m *Mesh) OnPeersChanged(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// EnableVideo acquires a video track mid-call and adds it to every
// existing link; adding the track implicitly triggers renegotiation.
func (m *Mesh) EnableVideo() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.joined {
		return fmt.Errorf("call: not joined")
	}
	if m.video != nil {
		return nil
	}
	video, err := m.source.VideoTrack()
	if err != nil {
		return fmt.Errorf("call: enable video: %w", err)
	}
	m.video = video
	for id, p := range m.peers {
		if err := p.link.AddTrack(video); err != nil {
			m.log.Warn().Err(err).Str("module", "call.mesh").Str("peer", id).Msg("add video track failed")
		}
	}
	return nil
}

// DisableVideo removes the local video track from every link without
// any signaling message; peers tolerate a track disappearing.
func (m *Mesh) DisableVideo() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.video == nil {
		return
	}
	id := m.video.ID()
	for peerID, p := range m.peers {
		if err := p.link.RemoveTrack(id); err != nil {
			m.log.Warn().Err(err).Str("module", "call.mesh").Str("peer", peerID).Msg("remove video track failed")
		}
	}
	m.video = nil
}

// Leave closes every link, drops local media and broadcasts a single
// leave so peers tear down proactively. Idempotent.
func (m *Mesh) Leave() {
	m.mu.Lock()
	if !m.joined {
		m.mu.Unlock()
		return
	}
	m.joined = false
	peers := m.peers
	m.peers = make(map[string]*peer)
	m.audio = nil
	m.video = nil
	m.mu.Unlock()

	for _, p := range peers {
		p.link.Close()
	}
	m.send(Signal{Kind: KindLeave, From: m.selfID})
	m.notify()
}

// Dispose is Leave plus handler detachment via the signaler.
func (m *Mesh) Dispose() {
	m.Leave()
	m.sig.Close()
}

func (m *Mesh) onSignal(raw json.RawMessage) {
	s, err := DecodeSignal(raw)
	if err != nil {
		m.log.Warn().Err(err).Str("module", "call.mesh").Msg("dropping bad signal")
		return
	}
	if s.From == m.selfID {
		return
	}

	switch s.Kind {
	case KindAnnounce:
		m.handleAnnounce(s.From)
	case KindOffer:
		if s.To == m.selfID {
			m.handleOffer(s)
		}
	case KindAnswer:
		if s.To == m.selfID {
			m.handleAnswer(s)
		}
	case KindICE:
		if s.To == m.selfID {
			m.handleICE(s)
		}
	case KindLeave:
		m.removePeer(s.From)
	}
}

// handleAnnounce runs on every already-joined participant: create the
// link, pre-load local media, offer. The new joiner itself never
// offers, which yields exactly one exchange per unordered pair.
func (m *Mesh) handleAnnounce(from string) {
	m.mu.Lock()
	if !m.joined {
		m.mu.Unlock()
		return
	}
	if _, ok := m.peers[from]; ok {
		// At most one link per ordered pair.
		m.mu.Unlock()
		return
	}
	p, err := m.addPeerLocked(from)
	if err != nil {
		m.mu.Unlock()
		m.log.Error().Err(err).Str("module", "call.mesh").Str("peer", from).Msg("link create failed")
		return
	}
	m.mu.Unlock()

	offer, err := p.link.CreateOffer()
	if err != nil {
		m.log.Warn().Err(err).Str("module", "call.mesh").Str("peer", from).Msg("offer failed")
		return
	}
	m.send(Signal{Kind: KindOffer, From: m.selfID, To: from, SDP: &offer})
	m.notify()
}

func (m *Mesh) handleOffer(s Signal) {
	m.mu.Lock()
	if !m.joined {
		m.mu.Unlock()
		return
	}
	p, ok := m.peers[s.From]
	if !ok {
		var err error
		if p, err = m.addPeerLocked(s.From); err != nil {
			m.mu.Unlock()
			m.log.Error().Err(err).Str("module", "call.mesh").Str("peer", s.From).Msg("link create failed")
			return
		}
	}
	m.mu.Unlock()

	answer, err := p.link.AcceptOffer(*s.SDP)
	if err != nil {
		// Negotiation failure is swallowed; the connection may stall.
		m.log.Warn().Err(err).Str("module", "call.mesh").Str("peer", s.From).Msg("accept offer failed")
		return
	}
	m.send(Signal{Kind: KindAnswer, From: m.selfID, To: s.From, SDP: &answer})
	m.notify()
}

func (m *Mesh) handleAnswer(s Signal) {
	m.mu.Lock()
	p, ok := m.peers[s.From]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := p.link.AcceptAnswer(*s.SDP); err != nil {
		m.log.Warn().Err(err).Str("module", "call.mesh").Str("peer", s.From).Msg("accept answer failed")
	}
}

func (m *Mesh) handleICE(s Signal) {
	m.mu.Lock()
	p, ok := m.peers[s.From]
	m.mu.Unlock()
	if !ok {
		return
	}
	// A nil candidate marks end-of-candidates.
	if s.Candidate == nil {
		return
	}
	if err := p.link.AddICECandidate(*s.Candidate); err != nil {
		m.log.Debug().Err(err).Str("module", "call.mesh").Str("peer", s.From).Msg("add candidate failed")
	}
}

// addPeerLocked creates and wires the link for a remote participant,
// pre-loading the local tracks. Caller holds m.mu.
func (m *Mesh) addPeerLocked(remoteID string) (*peer, error) {
	link, err := m.newLink(remoteID)
	if err != nil {
		return nil, err
	}
	p := &peer{id: remoteID, link: link}

	link.OnICECandidate(func(cand *webrtc.ICECandidateInit) {
		m.send(Signal{Kind: KindICE, From: m.selfID, To: remoteID, Candidate: cand})
	})
	link.OnTrack(func(t RemoteTrack) {
		m.mu.Lock()
		if cur, ok := m.peers[remoteID]; ok {
			cur.tracks = append(cur.tracks, t)
		}
		m.mu.Unlock()
		m.notify()
	})
	link.OnStateChange(func(state LinkState) {
		if state.Terminal() {
			m.removePeer(remoteID)
		}
	})

	if m.audio != nil {
		if err := link.AddTrack(m.audio); err != nil {
			m.log.Warn().Err(err).Str("module", "call.mesh").Str("peer", remoteID).Msg("add audio track failed")
		}
	}
	if m.video != nil {
		if err := link.AddTrack(m.video); err != nil {
			m.log.Warn().Err(err).Str("module", "call.mesh").Str("peer", remoteID).Msg("add video track failed")
		}
	}

	m.peers[remoteID] = p
	return p, nil
}

// removePeer tears one peer down: close the link, drop the remote
// stream, remove the tile. Safe to call twice.
func (m *Mesh) removePeer(id string) {
	m.mu.Lock()
	p, ok := m.peers[id]
	if ok {
		delete(m.peers, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	p.link.Close()
	m.log.Info().Str("module", "call.mesh").Str("peer", id).Msg("peer removed")
	m.notify()
}

func (m *Mesh) send(s Signal) {
	if err := m.sig.Broadcast(signalEvent, s); err != nil {
		// Best-effort; a dropped signal is never retried.
		m.log.Debug().Err(err).Str("module", "call.mesh").Str("kind", string(s.Kind)).Msg("signal broadcast failed")
	}
}

func (m *Mesh) notify() {
	m.mu.Lock()
	observers := make([]func(), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}
