// Package call implements full-mesh audio/video call signaling over a
// room broadcast topic. The topic carries only signaling; media flows
// peer to peer. Delivery is best-effort with no retry: a dropped
// announce means a pair that never connects, which is an accepted
// ceiling of the protocol.
package call

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

const signalEvent = "signal"

// Kind tags the closed set of signaling messages. Inbound payloads are
// decoded into this sum type at the channel boundary before any
// dispatch logic runs.
type Kind string

const (
	KindAnnounce Kind = "announce"
	KindOffer    Kind = "offer"
	KindAnswer   Kind = "answer"
	KindICE      Kind = "ice"
	KindLeave    Kind = "leave"
)

// Signal is one signaling message. Offer/answer carry a session
// description and a target; ice carries a candidate where nil marks
// end-of-candidates.
type Signal struct {
	Kind      Kind                       `json:"kind"`
	From      string                     `json:"from"`
	To        string                     `json:"to,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sessionDescription,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate"`
}

func DecodeSignal(raw json.RawMessage) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(raw, &s); err != nil {
		return Signal{}, fmt.Errorf("call: decode signal: %w", err)
	}
	if s.From == "" {
		return Signal{}, fmt.Errorf("call: signal without sender")
	}
	switch s.Kind {
	case KindAnnounce, KindLeave:
	case KindOffer, KindAnswer:
		if s.To == "" || s.SDP == nil {
			return Signal{}, fmt.Errorf("call: %s without target or description", s.Kind)
		}
	case KindICE:
		if s.To == "" {
			return Signal{}, fmt.Errorf("call: ice without target")
		}
	default:
		return Signal{}, fmt.Errorf("call: unknown signal kind %q", s.Kind)
	}
	return s, nil
}
