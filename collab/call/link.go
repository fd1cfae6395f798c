package call

import "github.com/pion/webrtc/v4"

// LinkState mirrors the peer connection lifecycle. A terminal state is
// the authoritative teardown signal for the peer; nothing is retried.
type LinkState int

const (
	LinkStateNew LinkState = iota
	LinkStateConnecting
	LinkStateConnected
	LinkStateDisconnected
	LinkStateFailed
	LinkStateClosed
)

func (s LinkState) Terminal() bool {
	switch s {
	case LinkStateDisconnected, LinkStateFailed, LinkStateClosed:
		return true
	}
	return false
}

func (s LinkState) String() string {
	switch s {
	case LinkStateNew:
		return "new"
	case LinkStateConnecting:
		return "connecting"
	case LinkStateConnected:
		return "connected"
	case LinkStateDisconnected:
		return "disconnected"
	case LinkStateFailed:
		return "failed"
	case LinkStateClosed:
		return "closed"
	}
	return "unknown"
}

// RemoteTrack describes one track of a peer's remote stream. The
// stream is populated incrementally and owned by exactly one link.
type RemoteTrack struct {
	ID       string
	Kind     string
	StreamID string
}

// Link is one peer connection, exclusively owned by the local mesh.
// The production implementation is pionLink; tests use fakes.
type Link interface {
	// CreateOffer generates an offer and sets it as the local
	// description, without waiting for candidate gathering (trickle).
	CreateOffer() (webrtc.SessionDescription, error)
	// AcceptOffer applies a remote offer and returns the answer,
	// already set as the local description.
	AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// AcceptAnswer applies a remote answer.
	AcceptAnswer(answer webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	AddTrack(track webrtc.TrackLocal) error
	RemoveTrack(trackID string) error

	// OnICECandidate fires for each locally discovered candidate;
	// nil marks end-of-candidates.
	OnICECandidate(fn func(*webrtc.ICECandidateInit))
	OnTrack(fn func(RemoteTrack))
	OnStateChange(fn func(LinkState))

	Close()
}

// LinkFactory creates the link for a remote participant.
type LinkFactory func(remoteID string) (Link, error)
