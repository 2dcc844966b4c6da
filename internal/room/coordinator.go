package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/pigparty/pigparty/internal/game"
	"github.com/pigparty/pigparty/internal/models"
	"github.com/pigparty/pigparty/internal/storage"
)

// Result is the single definitive outcome of a submitted command: the
// committed snapshot and event, or the rejection. There is never a
// partial effect.
type Result struct {
	Room  *models.Room
	Event *game.Event
	Err   error
}

// rematchDelay is how long a finished game sits before restarting on its
// own, matching the original client's post-win countdown.
const rematchDelay = 5 * time.Second

type envelope struct {
	cmd      game.Command
	snapshot bool
	reply    chan Result
}

// Coordinator owns one room. All commands, from players and from the turn
// timer alike, funnel through its inbox and are applied strictly one at a
// time: validate against the targeted version, run the state machine,
// commit, then rearm the timer, as one atomic step. The in-memory room
// never runs ahead of durable state.
type Coordinator struct {
	roomID  string
	machine *game.Machine
	adapter storage.Adapter
	clock   clockwork.Clock
	timer   *TurnTimer

	commitRetries int
	commitBackoff time.Duration

	room *models.Room

	inbox     chan envelope
	done      chan struct{}
	closeOnce sync.Once

	// onEmpty is invoked once, from the coordinator goroutine, when the
	// last player leaves.
	onEmpty func(roomID string)
}

func newCoordinator(roomState *models.Room, machine *game.Machine, adapter storage.Adapter, clock clockwork.Clock, retries int, backoff time.Duration, onEmpty func(string)) *Coordinator {
	c := &Coordinator{
		roomID:        roomState.ID,
		machine:       machine,
		adapter:       adapter,
		clock:         clock,
		commitRetries: retries,
		commitBackoff: backoff,
		room:          roomState,
		inbox:         make(chan envelope, 64),
		done:          make(chan struct{}),
		onEmpty:       onEmpty,
	}
	c.timer = NewTurnTimer(clock, c.submitDeadline)
	go c.loop()
	// A room loaded mid-game resumes its idle deadline.
	c.rearmTimer()
	return c
}

// Submit queues one command and blocks until it has been applied and
// committed, or rejected.
func (c *Coordinator) Submit(ctx context.Context, cmd game.Command) Result {
	return c.send(ctx, envelope{cmd: cmd, reply: make(chan Result, 1)})
}

// Snapshot returns the current committed room state.
func (c *Coordinator) Snapshot(ctx context.Context) (*models.Room, error) {
	res := c.send(ctx, envelope{snapshot: true, reply: make(chan Result, 1)})
	return res.Room, res.Err
}

func (c *Coordinator) send(ctx context.Context, env envelope) Result {
	select {
	case c.inbox <- env:
	case <-c.done:
		return Result{Err: ErrCoordinatorClosed}
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
	select {
	case res := <-env.reply:
		return res
	case <-c.done:
		// Closing races the enqueue: the envelope may have slipped into the
		// inbox after the final drain, in which case no reply ever comes. A
		// reply that was already sent still wins; the reply channel is
		// buffered, so the loop never blocks on it.
		select {
		case res := <-env.reply:
			return res
		default:
			return Result{Err: ErrCoordinatorClosed}
		}
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

// Close shuts the coordinator down. Queued commands are rejected with
// ErrCoordinatorClosed.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Coordinator) loop() {
	for {
		select {
		case <-c.done:
			c.timer.Stop()
			c.drain()
			return
		case env := <-c.inbox:
			res := c.handle(env)
			env.reply <- res
			if res.Err == nil && !env.snapshot && len(c.room.Players) == 0 {
				log.Info().Str("room_id", c.roomID).Msg("room empty, shutting down")
				c.timer.Stop()
				if c.onEmpty != nil {
					c.onEmpty(c.roomID)
				}
				c.Close()
			}
		}
	}
}

func (c *Coordinator) drain() {
	for {
		select {
		case env := <-c.inbox:
			env.reply <- Result{Err: ErrCoordinatorClosed}
		default:
			return
		}
	}
}

func (c *Coordinator) handle(env envelope) Result {
	if env.snapshot {
		return Result{Room: c.room.Clone()}
	}
	cmd := env.cmd

	if cmd.ExpectedVersion > 0 && cmd.ExpectedVersion != c.room.Version {
		return Result{Err: fmt.Errorf("%w: command targets version %d, room is at %d",
			ErrStaleVersion, cmd.ExpectedVersion, c.room.Version)}
	}

	now := c.clock.Now()
	next, evt, err := c.machine.Apply(c.room, cmd, now)
	if err != nil {
		return Result{Room: c.room.Clone(), Err: err}
	}

	next.Version = c.room.Version + 1
	if err := c.commit(next); err != nil {
		return Result{Err: err}
	}
	c.room = next
	c.rearmTimer()

	log.Debug().
		Str("room_id", c.roomID).
		Str("command", string(cmd.Type)).
		Str("event", string(evt.Type)).
		Int64("version", next.Version).
		Msg("command applied")

	return Result{Room: next.Clone(), Event: evt}
}

// commit writes the new state through the adapter, retrying transient
// failures with linear backoff. A version conflict means another writer
// moved the durable state and is not retried.
func (c *Coordinator) commit(next *models.Room) error {
	var err error
	for attempt := 0; attempt <= c.commitRetries; attempt++ {
		if attempt > 0 && c.commitBackoff > 0 {
			c.clock.Sleep(c.commitBackoff * time.Duration(attempt))
		}
		err = c.adapter.Commit(context.Background(), c.roomID, c.room.Version, next)
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrVersionConflict) {
			return fmt.Errorf("%w: durable state moved past version %d", ErrStaleVersion, c.room.Version)
		}
		log.Warn().
			Err(err).
			Str("room_id", c.roomID).
			Int("attempt", attempt+1).
			Msg("room commit failed")
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

// rearmTimer replaces the pending deadline after every commit. The
// deadline is tagged with the new version, so a fire that races a player
// action arrives stale and is rejected. A running game carries the
// idle-turn limit; a finished one carries the automatic rematch.
func (c *Coordinator) rearmTimer() {
	gs := c.room.GameState
	switch gs.Phase {
	case models.PhasePlaying:
		c.timer.Arm(c.room.Version, game.CmdTimeout, gs.LastActionTime.Add(c.room.Settings.TurnTimeLimit()))
	case models.PhaseEnded:
		c.timer.Arm(c.room.Version, game.CmdStartGame, gs.LastActionTime.Add(rematchDelay))
	default:
		c.timer.Stop()
	}
}

// submitDeadline is the timer's fire callback. A timeout banks whatever
// the idle player accumulated, exactly as if they had called TakeScore;
// a rematch restarts the finished game in place.
func (c *Coordinator) submitDeadline(version int64, cmdType game.CommandType) {
	env := envelope{
		cmd:   game.Command{Type: cmdType, ExpectedVersion: version},
		reply: make(chan Result, 1),
	}
	select {
	case c.inbox <- env:
	case <-c.done:
		return
	}
	var res Result
	select {
	case res = <-env.reply:
	case <-c.done:
		return
	}
	switch {
	case res.Err == nil:
		log.Info().
			Str("room_id", c.roomID).
			Str("command", string(cmdType)).
			Int64("version", version).
			Msg("deadline resolved")
	case errors.Is(res.Err, ErrStaleVersion), errors.Is(res.Err, ErrCoordinatorClosed):
		// The player acted first, or the room went away. Nothing to do.
	case errors.Is(res.Err, game.ErrNotEnoughPlayers):
		// A rematch with too few remaining players is simply skipped.
	default:
		log.Warn().Err(res.Err).Str("room_id", c.roomID).Str("command", string(cmdType)).Msg("deadline command failed")
	}
}
