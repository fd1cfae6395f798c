package call

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func DefaultRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// PionFactory builds links backed by pion peer connections.
func PionFactory(cfg webrtc.Configuration) LinkFactory {
	return func(remoteID string) (Link, error) {
		return newPionLink(cfg, remoteID)
	}
}

type pionLink struct {
	pc       *webrtc.PeerConnection
	remoteID string

	mu      sync.Mutex
	senders map[string]*webrtc.RTPSender
	onICE   func(*webrtc.ICECandidateInit)
	onTrack func(RemoteTrack)
	onState func(LinkState)
}

func newPionLink(cfg webrtc.Configuration, remoteID string) (*pionLink, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("call: new peer connection: %w", err)
	}
	l := &pionLink{
		pc:       pc,
		remoteID: remoteID,
		senders:  make(map[string]*webrtc.RTPSender),
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		fn := l.iceFn()
		if fn == nil {
			return
		}
		if cand == nil {
			fn(nil)
			return
		}
		ci := cand.ToJSON()
		fn(&ci)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "call.pion").
			Str("remote", l.remoteID).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		if fn := l.trackFn(); fn != nil {
			fn(RemoteTrack{ID: track.ID(), Kind: track.Kind().String(), StreamID: track.StreamID()})
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "call.pion").Str("remote", l.remoteID).Str("state", s.String()).Msg("peer state")
		if fn := l.stateFn(); fn != nil {
			fn(mapPeerState(s))
		}
	})

	return l, nil
}

func mapPeerState(s webrtc.PeerConnectionState) LinkState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return LinkStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return LinkStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return LinkStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return LinkStateFailed
	case webrtc.PeerConnectionStateClosed:
		return LinkStateClosed
	}
	return LinkStateNew
}

func (l *pionLink) iceFn() func(*webrtc.ICECandidateInit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.onICE
}

func (l *pionLink) trackFn() func(RemoteTrack) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.onTrack
}

func (l *pionLink) stateFn() func(LinkState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.onState
}

func (l *pionLink) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("call: create offer: %w", err)
	}
	// Trickle ICE: set local and let candidates flow as discovered,
	// no GatheringCompletePromise.
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("call: set local offer: %w", err)
	}
	return offer, nil
}

func (l *pionLink) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("call: set remote offer: %w", err)
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("call: create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("call: set local answer: %w", err)
	}
	return answer, nil
}

func (l *pionLink) AcceptAnswer(answer webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("call: set remote answer: %w", err)
	}
	return nil
}

func (l *pionLink) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(candidate)
}

func (l *pionLink) AddTrack(track webrtc.TrackLocal) error {
	sender, err := l.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("call: add track: %w", err)
	}
	l.mu.Lock()
	l.senders[track.ID()] = sender
	l.mu.Unlock()
	return nil
}

func (l *pionLink) RemoveTrack(trackID string) error {
	l.mu.Lock()
	sender, ok := l.senders[trackID]
	delete(l.senders, trackID)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if err := l.pc.RemoveTrack(sender); err != nil {
		return fmt.Errorf("call: remove track: %w", err)
	}
	return nil
}

func (l *pionLink) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onICE = fn
}

func (l *pionLink) OnTrack(fn func(RemoteTrack)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTrack = fn
}

func (l *pionLink) OnStateChange(fn func(LinkState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onState = fn
}

func (l *pionLink) Close() {
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "call.pion").Str("remote", l.remoteID).Msg("close error")
	}
}
