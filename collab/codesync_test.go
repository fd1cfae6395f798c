package collab

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func waitChange(t *testing.T, ch <-chan CodeChange) CodeChange {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for code change")
		return CodeChange{}
	}
}

func changeChan(cs *CodeSync) <-chan CodeChange {
	ch := make(chan CodeChange, 16)
	cs.OnChange(func(c CodeChange) { ch <- c })
	return ch
}

func TestDebounceCoalescesEdits(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	editorTopic := bus.join(t)
	editor := NewCodeSync(editorTopic, Identity{ParticipantID: "p1", Color: "#f00"}, clock, zerolog.Nop())
	viewer := NewCodeSync(bus.join(t), Identity{ParticipantID: "p2"}, clock, zerolog.Nop())
	got := changeChan(viewer)

	// Three keystrokes inside the debounce window collapse into one
	// full snapshot.
	editor.SetLocalCode("f", nil)
	editor.SetLocalCode("fu", nil)
	editor.SetLocalCode("func main() {}", &CursorPos{Line: 0, Column: 14})
	clock.Advance(60 * time.Millisecond)

	change := waitChange(t, got)
	if change.Code != "func main() {}" {
		t.Fatalf("code = %q", change.Code)
	}
	if change.SenderID != "p1" || change.SenderColor != "#f00" {
		t.Fatalf("sender = %s/%s", change.SenderID, change.SenderColor)
	}
	if editorTopic.sentCount() != 1 {
		t.Fatalf("broadcasts = %d, want 1 coalesced snapshot", editorTopic.sentCount())
	}

	code, _ := viewer.Snapshot()
	if code != "func main() {}" {
		t.Fatalf("viewer code = %q", code)
	}
}

func TestLastWriterWins(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	s1 := NewCodeSync(bus.join(t), Identity{ParticipantID: "s1"}, clock, zerolog.Nop())
	s2 := NewCodeSync(bus.join(t), Identity{ParticipantID: "s2"}, clock, zerolog.Nop())
	viewer := NewCodeSync(bus.join(t), Identity{ParticipantID: "viewer"}, clock, zerolog.Nop())
	got := changeChan(viewer)

	s1.SetLocalCode("version one", nil)
	clock.Advance(60 * time.Millisecond)
	waitChange(t, got)

	s2.SetLocalCode("version two", nil)
	clock.Advance(60 * time.Millisecond)
	waitChange(t, got)

	code, _ := viewer.Snapshot()
	if code != "version two" {
		t.Fatalf("code = %q, want the later snapshot", code)
	}
	// The earlier writer converged on the later snapshot too.
	code, _ = s1.Snapshot()
	if code != "version two" {
		t.Fatalf("s1 code = %q, want the later snapshot", code)
	}
}

func TestRemoteCursorBecomesMarker(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	editor := NewCodeSync(bus.join(t), Identity{ParticipantID: "p1", Color: "#0f0"}, clock, zerolog.Nop())
	viewer := NewCodeSync(bus.join(t), Identity{ParticipantID: "p2"}, clock, zerolog.Nop())
	got := changeChan(viewer)

	editor.SetLocalCode("def f():\n    pass", &CursorPos{Line: 1, Column: 8})
	clock.Advance(60 * time.Millisecond)
	waitChange(t, got)

	code, cursors := viewer.Snapshot()
	if code != "def f():\n    pass" {
		t.Fatalf("code = %q", code)
	}
	marker, ok := cursors["p1"]
	if !ok {
		t.Fatalf("cursors = %v, want marker for p1", cursors)
	}
	if marker.Pos != (CursorPos{Line: 1, Column: 8}) || marker.Color != "#0f0" {
		t.Fatalf("marker = %+v", marker)
	}
	// The editor holds no marker for itself.
	_, editorCursors := editor.Snapshot()
	if len(editorCursors) != 0 {
		t.Fatalf("editor cursors = %v", editorCursors)
	}
}

func TestOwnSnapshotEchoIsIgnored(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	topic := bus.join(t)
	cs := NewCodeSync(topic, Identity{ParticipantID: "p1"}, clock, zerolog.Nop())
	cs.SetLocalCode("local truth", nil)

	raw, _ := json.Marshal(CodeChange{Code: "stale echo", SenderID: "p1"})
	topic.deliver(codeChangeEvent, raw)

	code, _ := cs.Snapshot()
	if code != "local truth" {
		t.Fatalf("code = %q, own echo must not overwrite", code)
	}
}

func TestDisposeCancelsPendingSnapshot(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	topic := bus.join(t)
	cs := NewCodeSync(topic, Identity{ParticipantID: "p1"}, clock, zerolog.Nop())

	cs.SetLocalCode("never sent", nil)
	cs.Dispose()
	cs.Dispose()
	clock.Advance(time.Second)

	if topic.sentCount() != 0 {
		t.Fatalf("broadcasts = %d after dispose", topic.sentCount())
	}
	// Edits after dispose are dropped.
	cs.SetLocalCode("still never sent", nil)
	clock.Advance(time.Second)
	if topic.sentCount() != 0 {
		t.Fatal("disposed engine broadcast an edit")
	}
}
