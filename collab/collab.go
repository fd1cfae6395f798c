// Package collab implements the client-side collaboration engines of
// a review room: code & cursor replication, ephemeral chat, the shared
// countdown timer and the presence roster. Everything runs over a
// room-scoped broadcast topic; state is last-write-wins and lives only
// for the session.
package collab

import (
	"encoding/json"

	"github.com/avilov/codemesh/channel"
)

// Identity is the already-authenticated participant this session acts
// as. The engines never authenticate; they compare sender ids against
// this one to suppress self-echo.
type Identity struct {
	ParticipantID string
	Color         string
}

// Topic is the slice of the channel contract the engines consume.
// *channel.Handle satisfies it; tests plug in an in-memory bus.
type Topic interface {
	Broadcast(event string, payload any) error
	On(event string, fn func(payload json.RawMessage))
	Track(payload any) error
	OnPresenceSync(fn func(channel.PresenceState))
	Close()
}
