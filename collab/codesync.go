package collab

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	codeChangeEvent = "code-change"

	// Local edits are coalesced for this long before one full
	// snapshot goes out.
	codeDebounce = 50 * time.Millisecond
)

// CursorPos is a caret position in the shared document.
type CursorPos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// CodeChange is the replicated unit: always the full document text,
// never a diff. A delayed stale snapshot can overwrite newer local
// edits; that trade-off is part of the protocol.
type CodeChange struct {
	Code        string     `json:"code"`
	Cursor      *CursorPos `json:"cursorPosition,omitempty"`
	SenderID    string     `json:"senderId"`
	SenderColor string     `json:"senderColor,omitempty"`
}

// CursorMarker is an ephemeral overlay marker for one remote
// participant's caret.
type CursorMarker struct {
	Pos   CursorPos
	Color string
}

// CodeSync replicates the document and remote cursors over one room
// topic, last-write-wins.
type CodeSync struct {
	identity Identity
	topic    Topic
	clock    clockwork.Clock
	log      zerolog.Logger

	mu          sync.Mutex
	code        string
	localCursor *CursorPos
	cursors     map[string]CursorMarker
	pending     clockwork.Timer
	observers   []func(CodeChange)
	disposed    bool
}

func NewCodeSync(topic Topic, identity Identity, clock clockwork.Clock, logger zerolog.Logger) *CodeSync {
	cs := &CodeSync{
		identity: identity,
		topic:    topic,
		clock:    clock,
		log:      logger,
		cursors:  make(map[string]CursorMarker),
	}
	topic.On(codeChangeEvent, cs.onRemoteChange)
	return cs
}

// SetLocalCode records a local edit and schedules a debounced
// broadcast of the full snapshot.
func (cs *CodeSync) SetLocalCode(code string, cursor *CursorPos) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.disposed {
		return
	}
	cs.code = code
	cs.localCursor = cursor
	if cs.pending != nil {
		cs.pending.Stop()
	}
	cs.pending = cs.clock.AfterFunc(codeDebounce, cs.flush)
}

func (cs *CodeSync) flush() {
	cs.mu.Lock()
	if cs.disposed {
		cs.mu.Unlock()
		return
	}
	change := CodeChange{
		Code:        cs.code,
		Cursor:      cs.localCursor,
		SenderID:    cs.identity.ParticipantID,
		SenderColor: cs.identity.Color,
	}
	cs.pending = nil
	cs.mu.Unlock()

	if err := cs.topic.Broadcast(codeChangeEvent, change); err != nil {
		// Dropped snapshots heal on the next successful broadcast.
		cs.log.Debug().Err(err).Str("module", "collab.codesync").Msg("snapshot broadcast failed")
	}
}

func (cs *CodeSync) onRemoteChange(raw json.RawMessage) {
	var change CodeChange
	if err := json.Unmarshal(raw, &change); err != nil {
		cs.log.Warn().Err(err).Str("module", "collab.codesync").Msg("bad code change")
		return
	}
	if change.SenderID == cs.identity.ParticipantID {
		return
	}

	cs.mu.Lock()
	if cs.disposed {
		cs.mu.Unlock()
		return
	}
	cs.code = change.Code
	if change.Cursor != nil {
		cs.cursors[change.SenderID] = CursorMarker{Pos: *change.Cursor, Color: change.SenderColor}
	}
	observers := make([]func(CodeChange), len(cs.observers))
	copy(observers, cs.observers)
	cs.mu.Unlock()

	for _, fn := range observers {
		fn(change)
	}
}

// OnChange registers an observer fired for every applied remote
// snapshot.
func (cs *CodeSync) OnChange(fn func(CodeChange)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.observers = append(cs.observers, fn)
}

// Snapshot returns the current document and remote cursor markers.
func (cs *CodeSync) Snapshot() (string, map[string]CursorMarker) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cursors := make(map[string]CursorMarker, len(cs.cursors))
	for id, m := range cs.cursors {
		cursors[id] = m
	}
	return cs.code, cursors
}

// Dispose cancels any pending broadcast and detaches the engine.
// Idempotent.
func (cs *CodeSync) Dispose() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.disposed {
		return
	}
	cs.disposed = true
	if cs.pending != nil {
		cs.pending.Stop()
		cs.pending = nil
	}
	cs.observers = nil
}
