package room

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pigparty/pigparty/internal/game"
)

// TurnTimer holds at most one pending deadline for a room: the idle-turn
// limit while a game runs, or the automatic rematch after one ends. Each
// deadline is armed against the room version it was computed from; the
// fire callback carries that version so the coordinator can reject a fire
// that lost the race against a player's own action.
type TurnTimer struct {
	clock clockwork.Clock
	fire  func(version int64, cmd game.CommandType)

	mu     sync.Mutex
	timer  clockwork.Timer
	cancel chan struct{}
}

// NewTurnTimer creates a timer that invokes fire when a deadline expires.
// fire runs on the timer goroutine and must not block indefinitely.
func NewTurnTimer(clock clockwork.Clock, fire func(version int64, cmd game.CommandType)) *TurnTimer {
	return &TurnTimer{clock: clock, fire: fire}
}

// Arm replaces any pending deadline with one that submits cmd for the
// given version. A deadline already in the past fires immediately.
func (t *TurnTimer) Arm(version int64, cmd game.CommandType, deadline time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()

	d := deadline.Sub(t.clock.Now())
	if d < 0 {
		d = 0
	}
	timer := t.clock.NewTimer(d)
	cancel := make(chan struct{})
	t.timer = timer
	t.cancel = cancel

	go func() {
		select {
		case <-timer.Chan():
			t.fire(version, cmd)
		case <-cancel:
			stopAndDrainTimer(timer)
		}
	}()
}

// Stop cancels the pending deadline, if any.
func (t *TurnTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *TurnTimer) stopLocked() {
	if t.cancel != nil {
		close(t.cancel)
		t.cancel = nil
		t.timer = nil
	}
}

// stopAndDrainTimer stops a timer and drains its channel so the waiting
// goroutine does not leak a buffered fire.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
