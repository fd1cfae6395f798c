package collab

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/avilov/codemesh/channel"
)

// PresenceEntry is one participant on the roster. The roster is keyed
// by ephemeral connection ref, so the same participant reconnecting
// appears as a new entry.
type PresenceEntry struct {
	ID    string `json:"id"`
	Color string `json:"color,omitempty"`
}

// Roster mirrors the topic's presence state: a full snapshot replaces
// the whole roster on every change, which is also the only repair
// mechanism for missed messages.
type Roster struct {
	log zerolog.Logger

	mu        sync.Mutex
	entries   map[string]PresenceEntry
	observers []func([]PresenceEntry)
}

func newRoster(topic Topic, logger zerolog.Logger) *Roster {
	r := &Roster{
		log:     logger,
		entries: make(map[string]PresenceEntry),
	}
	topic.OnPresenceSync(r.apply)
	return r
}

func (r *Roster) apply(state channel.PresenceState) {
	entries := make(map[string]PresenceEntry, len(state))
	for ref, raw := range state {
		var e PresenceEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			r.log.Warn().Err(err).Str("module", "collab.presence").Msg("bad presence entry")
			continue
		}
		entries[ref] = e
	}

	r.mu.Lock()
	r.entries = entries
	observers := make([]func([]PresenceEntry), len(r.observers))
	copy(observers, r.observers)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

func (r *Roster) Entries() []PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Roster) snapshotLocked() []PresenceEntry {
	out := make([]PresenceEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

func (r *Roster) OnChange(fn func([]PresenceEntry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}
