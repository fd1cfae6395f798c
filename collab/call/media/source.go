// Package media is the capture boundary: it hands out local tracks and
// nothing else. Callers treat acquisition failure as "call feature
// unavailable" and carry on.
package media

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

var ErrUnavailable = errors.New("media: capture unavailable")

// Source acquires local capture tracks. Audio is mandatory for a call;
// video is optional and may fail independently.
type Source interface {
	AudioTrack() (webrtc.TrackLocal, error)
	VideoTrack() (webrtc.TrackLocal, error)
}

// SampleSource produces static sample tracks fed by the application
// (headless capture, file playback, tests). One stream id groups both
// tracks.
type SampleSource struct {
	streamID string
}

func NewSampleSource() *SampleSource {
	return &SampleSource{streamID: "mesh-" + uuid.NewString()}
}

func (s *SampleSource) AudioTrack() (webrtc.TrackLocal, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", s.streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("media: audio track: %w", err)
	}
	return track, nil
}

func (s *SampleSource) VideoTrack() (webrtc.TrackLocal, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", s.streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("media: video track: %w", err)
	}
	return track, nil
}
