package collab

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func stateChan(tr *TimerReplicator) <-chan TimerState {
	ch := make(chan TimerState, 16)
	tr.OnState(func(s TimerState) { ch <- s })
	return ch
}

func waitTimerState(t *testing.T, ch <-chan TimerState) TimerState {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for timer state")
		return TimerState{}
	}
}

func TestCountdownTicksToZeroAndGoesIdle(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	owner := NewTimerReplicator(bus.join(t), Identity{ParticipantID: "owner"}, true, clock, zerolog.Nop())
	mirror := NewTimerReplicator(bus.join(t), Identity{ParticipantID: "mirror"}, false, clock, zerolog.Nop())
	states := stateChan(mirror)

	if err := owner.Start(5); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s := waitTimerState(t, states); s != (TimerState{SecondsLeft: 5, Status: TimerRunning}) {
		t.Fatalf("initial state = %+v", s)
	}

	clock.BlockUntil(1)
	for want := 4; want >= 0; want-- {
		clock.Advance(time.Second)
		s := waitTimerState(t, states)
		if s.SecondsLeft != want {
			t.Fatalf("seconds = %d, want %d", s.SecondsLeft, want)
		}
		// The final tick is broadcast as zero and idle, never negative.
		wantStatus := TimerRunning
		if want == 0 {
			wantStatus = TimerIdle
		}
		if s.Status != wantStatus {
			t.Fatalf("at %d: status = %s, want %s", want, s.Status, wantStatus)
		}
	}

	// Nothing follows the terminal broadcast.
	clock.Advance(5 * time.Second)
	select {
	case s := <-states:
		t.Fatalf("unexpected state after finish: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
	if s := owner.State(); s != (TimerState{SecondsLeft: 0, Status: TimerIdle}) {
		t.Fatalf("owner state = %+v", s)
	}
}

func TestUrgencyIsDerivedFromValue(t *testing.T) {
	if (TimerState{SecondsLeft: 31, Status: TimerRunning}).Urgent() {
		t.Fatal("31s should not be urgent")
	}
	if !(TimerState{SecondsLeft: 30, Status: TimerRunning}).Urgent() {
		t.Fatal("30s should be urgent")
	}
	if (TimerState{SecondsLeft: 10, Status: TimerPaused}).Urgent() {
		t.Fatal("paused timer is never urgent")
	}
}

func TestPauseResume(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	owner := NewTimerReplicator(bus.join(t), Identity{ParticipantID: "owner"}, true, clock, zerolog.Nop())
	mirror := NewTimerReplicator(bus.join(t), Identity{ParticipantID: "mirror"}, false, clock, zerolog.Nop())
	states := stateChan(mirror)

	if err := owner.Start(10); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitTimerState(t, states)
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	if s := waitTimerState(t, states); s.SecondsLeft != 9 {
		t.Fatalf("seconds = %d, want 9", s.SecondsLeft)
	}

	if err := owner.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if s := waitTimerState(t, states); s != (TimerState{SecondsLeft: 9, Status: TimerPaused}) {
		t.Fatalf("paused state = %+v", s)
	}

	// Time passing while paused changes nothing.
	clock.Advance(30 * time.Second)
	select {
	case s := <-states:
		t.Fatalf("state %+v while paused", s)
	case <-time.After(50 * time.Millisecond):
	}

	if err := owner.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if s := waitTimerState(t, states); s != (TimerState{SecondsLeft: 9, Status: TimerRunning}) {
		t.Fatalf("resumed state = %+v", s)
	}
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	if s := waitTimerState(t, states); s.SecondsLeft != 8 {
		t.Fatalf("seconds = %d, want 8", s.SecondsLeft)
	}
}

func TestResetForcesIdleFromAnyState(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	owner := NewTimerReplicator(bus.join(t), Identity{ParticipantID: "owner"}, true, clock, zerolog.Nop())
	mirror := NewTimerReplicator(bus.join(t), Identity{ParticipantID: "mirror"}, false, clock, zerolog.Nop())
	states := stateChan(mirror)

	if err := owner.Start(20); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitTimerState(t, states)

	if err := owner.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s := waitTimerState(t, states); s != (TimerState{SecondsLeft: 0, Status: TimerIdle}) {
		t.Fatalf("reset state = %+v", s)
	}

	// Reset leaves the timer startable again.
	if err := owner.Start(3); err != nil {
		t.Fatalf("restart after reset: %v", err)
	}
}

func TestOnlyOwnerMutates(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	mirror := NewTimerReplicator(bus.join(t), Identity{ParticipantID: "mirror"}, false, clock, zerolog.Nop())

	if err := mirror.Start(10); !errors.Is(err, ErrNotTimerOwner) {
		t.Fatalf("start: %v", err)
	}
	if err := mirror.Pause(); !errors.Is(err, ErrNotTimerOwner) {
		t.Fatalf("pause: %v", err)
	}
	if err := mirror.Resume(); !errors.Is(err, ErrNotTimerOwner) {
		t.Fatalf("resume: %v", err)
	}
	if err := mirror.Reset(); !errors.Is(err, ErrNotTimerOwner) {
		t.Fatalf("reset: %v", err)
	}
}

func TestStartValidation(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	owner := NewTimerReplicator(bus.join(t), Identity{ParticipantID: "owner"}, true, clock, zerolog.Nop())

	if err := owner.Start(0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("start 0: %v", err)
	}
	if err := owner.Start(-5); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("start -5: %v", err)
	}
	if err := owner.Start(10); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := owner.Start(10); !errors.Is(err, ErrTimerNotIdle) {
		t.Fatalf("double start: %v", err)
	}
	if err := owner.Resume(); !errors.Is(err, ErrTimerNotPaused) {
		t.Fatalf("resume while running: %v", err)
	}
}

func TestMirrorAppliesRemoteStateIdempotently(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	mirrorTopic := bus.join(t)
	mirror := NewTimerReplicator(mirrorTopic, Identity{ParticipantID: "mirror"}, false, clock, zerolog.Nop())

	raw, _ := json.Marshal(timerPayload{
		TimerState: TimerState{SecondsLeft: 180, Status: TimerRunning},
		SenderID:   "owner",
	})
	mirrorTopic.deliver(timerEvent, raw)
	first := mirror.State()
	if first != (TimerState{SecondsLeft: 180, Status: TimerRunning}) {
		t.Fatalf("state after first apply = %+v", first)
	}

	// A redelivered tick lands on the same value; applying twice is
	// indistinguishable from applying once.
	mirrorTopic.deliver(timerEvent, raw)
	if s := mirror.State(); s != first {
		t.Fatalf("state after redelivery = %+v, want %+v", s, first)
	}
}

func TestOwnerIgnoresRemoteStateAndMirrorClampsNegative(t *testing.T) {
	bus := newTopicBus()
	clock := clockwork.NewFakeClock()

	ownerTopic := bus.join(t)
	owner := NewTimerReplicator(ownerTopic, Identity{ParticipantID: "owner"}, true, clock, zerolog.Nop())

	raw, _ := json.Marshal(timerPayload{
		TimerState: TimerState{SecondsLeft: 999, Status: TimerRunning},
		SenderID:   "impostor",
	})
	ownerTopic.deliver(timerEvent, raw)
	if s := owner.State(); s.Status != TimerIdle {
		t.Fatalf("owner state = %+v, remote state must not apply", s)
	}

	mirrorTopic := bus.join(t)
	mirror := NewTimerReplicator(mirrorTopic, Identity{ParticipantID: "mirror"}, false, clock, zerolog.Nop())
	raw, _ = json.Marshal(timerPayload{
		TimerState: TimerState{SecondsLeft: -3, Status: TimerRunning},
		SenderID:   "owner",
	})
	mirrorTopic.deliver(timerEvent, raw)
	if s := mirror.State(); s.SecondsLeft != 0 {
		t.Fatalf("mirror seconds = %d, want clamped to 0", s.SecondsLeft)
	}
}
