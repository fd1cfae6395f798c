// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxParticipantIDLen = 36
	MaxColorLen         = 16
)

var (
	ErrParticipantIDEmpty   = errors.New("participant id empty")
	ErrParticipantIDTooLong = errors.New("participant id too long")
)

type ParticipantID string

// Participant is the already-authenticated identity a connection
// presents. The transport never mints or verifies identities beyond
// guest fallback; it carries what the identity boundary handed over.
type Participant struct {
	ID    ParticipantID `json:"id"`
	Color string        `json:"color,omitempty"`
}

func NewParticipant(id, color string) (*Participant, error) {
	if len(id) == 0 {
		return nil, ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return nil, ErrParticipantIDTooLong
	}
	if len(color) > MaxColorLen {
		color = color[:MaxColorLen]
	}
	return &Participant{ID: ParticipantID(id), Color: color}, nil
}

// NewGuestParticipant mints a throwaway identity for connections that
// arrive without a token.
func NewGuestParticipant(color string) *Participant {
	return &Participant{ID: ParticipantID(uuid.NewString()), Color: color}
}
