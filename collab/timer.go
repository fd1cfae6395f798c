package collab

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const timerEvent = "timer-state"

// urgentThreshold marks the point where viewers style the countdown as
// urgent. Derived purely from the numeric value, never a flag on the
// wire.
const urgentThreshold = 30

var (
	ErrNotTimerOwner   = errors.New("collab: not the timer owner")
	ErrInvalidDuration = errors.New("collab: duration must be positive")
	ErrTimerNotIdle    = errors.New("collab: timer is not idle")
	ErrTimerNotRunning = errors.New("collab: timer is not running")
	ErrTimerNotPaused  = errors.New("collab: timer is not paused")
)

type TimerStatus string

const (
	TimerIdle    TimerStatus = "idle"
	TimerRunning TimerStatus = "running"
	TimerPaused  TimerStatus = "paused"
)

type TimerState struct {
	SecondsLeft int         `json:"secondsLeft"`
	Status      TimerStatus `json:"status"`
}

func (s TimerState) Urgent() bool {
	return s.Status == TimerRunning && s.SecondsLeft <= urgentThreshold
}

type timerPayload struct {
	TimerState
	SenderID string `json:"senderId"`
}

// TimerReplicator mirrors one submission's countdown. Exactly one
// participant owns it: the owner ticks locally once per second and
// re-broadcasts every tick, so late joiners converge within one tick.
// Everyone else is a passive mirror with no local countdown. If the
// owner disconnects, mirrors freeze at the last received value; there
// is no lease or failover.
type TimerReplicator struct {
	identity Identity
	topic    Topic
	owner    bool
	clock    clockwork.Clock
	log      zerolog.Logger

	mu        sync.Mutex
	state     TimerState
	stopTick  chan struct{}
	observers []func(TimerState)
	disposed  bool
}

func NewTimerReplicator(topic Topic, identity Identity, owner bool, clock clockwork.Clock, logger zerolog.Logger) *TimerReplicator {
	tr := &TimerReplicator{
		identity: identity,
		topic:    topic,
		owner:    owner,
		clock:    clock,
		log:      logger,
		state:    TimerState{Status: TimerIdle},
	}
	topic.On(timerEvent, tr.onRemote)
	return tr
}

func (tr *TimerReplicator) Owner() bool { return tr.owner }

func (tr *TimerReplicator) State() TimerState {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.state
}

func (tr *TimerReplicator) OnState(fn func(TimerState)) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.observers = append(tr.observers, fn)
}

// Start moves Idle -> Running and begins ticking.
func (tr *TimerReplicator) Start(seconds int) error {
	if !tr.owner {
		return ErrNotTimerOwner
	}
	if seconds <= 0 {
		return ErrInvalidDuration
	}
	tr.mu.Lock()
	if tr.disposed || tr.state.Status != TimerIdle {
		tr.mu.Unlock()
		return ErrTimerNotIdle
	}
	tr.state = TimerState{SecondsLeft: seconds, Status: TimerRunning}
	stop := make(chan struct{})
	tr.stopTick = stop
	state := tr.state
	tr.mu.Unlock()

	tr.publish(state)
	go tr.tickLoop(stop)
	return nil
}

// Pause moves Running -> Paused at the current value.
func (tr *TimerReplicator) Pause() error {
	if !tr.owner {
		return ErrNotTimerOwner
	}
	tr.mu.Lock()
	if tr.state.Status != TimerRunning {
		tr.mu.Unlock()
		return ErrTimerNotRunning
	}
	tr.stopTickLocked()
	tr.state.Status = TimerPaused
	state := tr.state
	tr.mu.Unlock()

	tr.publish(state)
	return nil
}

// Resume moves Paused -> Running from the stored value.
func (tr *TimerReplicator) Resume() error {
	if !tr.owner {
		return ErrNotTimerOwner
	}
	tr.mu.Lock()
	if tr.state.Status != TimerPaused {
		tr.mu.Unlock()
		return ErrTimerNotPaused
	}
	if tr.state.SecondsLeft <= 0 {
		tr.state = TimerState{Status: TimerIdle}
		tr.mu.Unlock()
		return ErrInvalidDuration
	}
	tr.state.Status = TimerRunning
	stop := make(chan struct{})
	tr.stopTick = stop
	state := tr.state
	tr.mu.Unlock()

	tr.publish(state)
	go tr.tickLoop(stop)
	return nil
}

// Reset forces Idle from any state.
func (tr *TimerReplicator) Reset() error {
	if !tr.owner {
		return ErrNotTimerOwner
	}
	tr.mu.Lock()
	tr.stopTickLocked()
	tr.state = TimerState{Status: TimerIdle}
	state := tr.state
	tr.mu.Unlock()

	tr.publish(state)
	return nil
}

func (tr *TimerReplicator) tickLoop(stop chan struct{}) {
	ticker := tr.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if done := tr.tick(); done {
				return
			}
		}
	}
}

// tick decrements once and reports whether the countdown finished.
// The tick reaching zero is broadcast as {0, idle}; nothing follows it.
func (tr *TimerReplicator) tick() bool {
	tr.mu.Lock()
	if tr.state.Status != TimerRunning {
		tr.mu.Unlock()
		return true
	}
	tr.state.SecondsLeft--
	done := tr.state.SecondsLeft <= 0
	if done {
		tr.state = TimerState{SecondsLeft: 0, Status: TimerIdle}
		tr.stopTick = nil
	}
	state := tr.state
	tr.mu.Unlock()

	tr.publish(state)
	return done
}

func (tr *TimerReplicator) stopTickLocked() {
	if tr.stopTick != nil {
		close(tr.stopTick)
		tr.stopTick = nil
	}
}

func (tr *TimerReplicator) publish(state TimerState) {
	tr.notify(state)
	payload := timerPayload{TimerState: state, SenderID: tr.identity.ParticipantID}
	if err := tr.topic.Broadcast(timerEvent, payload); err != nil {
		// Mirrors converge on the next tick.
		tr.log.Debug().Err(err).Str("module", "collab.timer").Msg("timer broadcast failed")
	}
}

func (tr *TimerReplicator) onRemote(raw json.RawMessage) {
	var p timerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		tr.log.Warn().Err(err).Str("module", "collab.timer").Msg("bad timer state")
		return
	}
	if p.SenderID == tr.identity.ParticipantID {
		return
	}
	// Only the owner mutates; an owner never applies remote state.
	if tr.owner {
		return
	}
	if p.SecondsLeft < 0 {
		p.SecondsLeft = 0
	}

	tr.mu.Lock()
	if tr.disposed {
		tr.mu.Unlock()
		return
	}
	tr.state = p.TimerState
	tr.mu.Unlock()

	tr.notify(p.TimerState)
}

func (tr *TimerReplicator) notify(state TimerState) {
	tr.mu.Lock()
	observers := make([]func(TimerState), len(tr.observers))
	copy(observers, tr.observers)
	tr.mu.Unlock()
	for _, fn := range observers {
		fn(state)
	}
}

// Dispose stops any local ticking and detaches observers. Idempotent.
func (tr *TimerReplicator) Dispose() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.disposed {
		return
	}
	tr.disposed = true
	tr.stopTickLocked()
	tr.observers = nil
}
