package room

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigparty/pigparty/internal/dice"
	"github.com/pigparty/pigparty/internal/game"
	"github.com/pigparty/pigparty/internal/models"
	"github.com/pigparty/pigparty/internal/storage"
)

func scripted(rolls ...[2]int) dice.Roller {
	i := 0
	return dice.RollerFunc(func() (int, int) {
		r := rolls[i%len(rolls)]
		i++
		return r[0], r[1]
	})
}

func testRegistry(adapter storage.Adapter, clock clockwork.Clock, roller dice.Roller) *Registry {
	return NewRegistry(adapter, roller,
		WithClock(clock),
		WithCodeFunc(func() string { return "GAME" }),
		WithCommitRetry(2, 0),
	)
}

// startedGame seats Alice ("a", host) and Bob ("b") and starts the game.
// Alice holds turn order 1, so she is up first.
func startedGame(t *testing.T, reg *Registry) *Coordinator {
	t.Helper()
	ctx := context.Background()

	created, err := reg.CreateRoom(ctx, "a", "Alice")
	require.NoError(t, err)

	res := reg.Submit(ctx, created.ID, game.Command{Type: game.CmdJoin, ActorID: "b", PlayerName: "Bob"})
	require.NoError(t, res.Err)

	res = reg.Submit(ctx, created.ID, game.Command{Type: game.CmdStartGame, ActorID: "a"})
	require.NoError(t, res.Err)

	coord, err := reg.Get(ctx, created.ID)
	require.NoError(t, err)
	return coord
}

func TestCommandsCommitThroughAdapter(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	reg := testRegistry(mem, clockwork.NewFakeClock(), scripted([2]int{3, 4}, [2]int{2, 2}))
	defer reg.Close()

	coord := startedGame(t, reg)

	res := coord.Submit(ctx, game.Command{Type: game.CmdRoll, ActorID: "a"})
	require.NoError(t, res.Err)
	assert.Equal(t, game.EventDiceRolled, res.Event.Type)
	assert.Equal(t, 7, res.Room.GameState.AccumulatedScore)

	res = coord.Submit(ctx, game.Command{Type: game.CmdRoll, ActorID: "a"})
	require.NoError(t, res.Err)
	assert.Equal(t, 11, res.Room.GameState.AccumulatedScore)

	res = coord.Submit(ctx, game.Command{Type: game.CmdTakeScore, ActorID: "a"})
	require.NoError(t, res.Err)
	assert.Equal(t, game.EventScoreTaken, res.Event.Type)
	assert.Equal(t, 11, res.Room.Players["a"].Score)
	assert.Equal(t, "b", res.Room.GameState.CurrentPlayerID)

	// create, join, start, roll, roll, take
	assert.Equal(t, int64(6), res.Room.Version)

	stored, err := mem.Get(ctx, "GAME")
	require.NoError(t, err)
	assert.Equal(t, res.Room.Version, stored.Version)
	assert.Equal(t, 11, stored.Players["a"].Score)
	assert.NoError(t, stored.Validate())
}

func TestStaleCommandRejected(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(storage.NewMemory(), clockwork.NewFakeClock(), scripted([2]int{3, 4}))
	defer reg.Close()

	coord := startedGame(t, reg)
	snap, err := coord.Snapshot(ctx)
	require.NoError(t, err)

	res := coord.Submit(ctx, game.Command{
		Type:            game.CmdRoll,
		ActorID:         "a",
		ExpectedVersion: snap.Version - 1,
	})
	assert.ErrorIs(t, res.Err, ErrStaleVersion)

	after, err := coord.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, after.Version, "a rejected command leaves no trace")
}

func TestTimeoutBanksIdleTurn(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	reg := testRegistry(storage.NewMemory(), fc, scripted([2]int{3, 4}))
	defer reg.Close()

	coord := startedGame(t, reg)
	res := coord.Submit(ctx, game.Command{Type: game.CmdRoll, ActorID: "a"})
	require.NoError(t, res.Err)
	require.Equal(t, 7, res.Room.GameState.AccumulatedScore)

	fc.Advance(21 * time.Second)

	require.Eventually(t, func() bool {
		snap, err := coord.Snapshot(ctx)
		if err != nil {
			return false
		}
		return snap.Players["a"].Score == 7 && snap.GameState.CurrentPlayerID == "b"
	}, time.Second, 5*time.Millisecond, "timeout banks the accumulated points and passes the turn")

	snap, err := coord.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.GameState.AccumulatedScore)
	assert.Equal(t, models.PhasePlaying, snap.GameState.Phase)
}

func TestStaleTimeoutIgnored(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(storage.NewMemory(), clockwork.NewFakeClock(), scripted([2]int{3, 4}))
	defer reg.Close()

	coord := startedGame(t, reg)
	res := coord.Submit(ctx, game.Command{Type: game.CmdRoll, ActorID: "a"})
	require.NoError(t, res.Err)
	before := res.Room

	// A timeout armed before the roll targets the old version.
	stale := coord.Submit(ctx, game.Command{Type: game.CmdTimeout, ExpectedVersion: before.Version - 1})
	assert.ErrorIs(t, stale.Err, ErrStaleVersion)

	after, err := coord.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 7, after.GameState.AccumulatedScore)
	assert.Equal(t, 0, after.Players["a"].Score)
}

// flakyAdapter fails the next n commits before delegating.
type flakyAdapter struct {
	storage.Adapter
	mu       sync.Mutex
	failures int
}

func (f *flakyAdapter) fail(n int) {
	f.mu.Lock()
	f.failures = n
	f.mu.Unlock()
}

func (f *flakyAdapter) Commit(ctx context.Context, roomID string, expectedVersion int64, r *models.Room) error {
	f.mu.Lock()
	failing := f.failures > 0
	if failing {
		f.failures--
	}
	f.mu.Unlock()
	if failing {
		return errors.New("storage offline")
	}
	return f.Adapter.Commit(ctx, roomID, expectedVersion, r)
}

func TestPersistenceFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyAdapter{Adapter: storage.NewMemory()}
	reg := testRegistry(flaky, clockwork.NewFakeClock(), scripted([2]int{3, 4}, [2]int{2, 2}))
	defer reg.Close()

	coord := startedGame(t, reg)
	snap, err := coord.Snapshot(ctx)
	require.NoError(t, err)

	flaky.fail(10) // more than the retry budget
	res := coord.Submit(ctx, game.Command{Type: game.CmdRoll, ActorID: "a"})
	assert.ErrorIs(t, res.Err, ErrPersistence)

	flaky.fail(0)
	after, err := coord.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, after.Version, "a failed commit must not advance the room")
	assert.Equal(t, 0, after.GameState.AccumulatedScore)
}

func TestCommitRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyAdapter{Adapter: storage.NewMemory()}
	reg := testRegistry(flaky, clockwork.NewFakeClock(), scripted([2]int{3, 4}))
	defer reg.Close()

	coord := startedGame(t, reg)

	flaky.fail(2) // within the retry budget
	res := coord.Submit(ctx, game.Command{Type: game.CmdRoll, ActorID: "a"})
	require.NoError(t, res.Err)
	assert.Equal(t, 7, res.Room.GameState.AccumulatedScore)
}

func TestConcurrentSubmissionsSerialize(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	reg := testRegistry(mem, clockwork.NewRealClock(), dice.NewRollerWithSource(rand.NewSource(7)))
	defer reg.Close()

	coord := startedGame(t, reg)
	start, err := coord.Snapshot(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for g := 0; g < 10; g++ {
		actor := "a"
		if g%2 == 1 {
			actor = "b"
		}
		wg.Add(1)
		go func(actor string) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				res := coord.Submit(ctx, game.Command{Type: game.CmdRoll, ActorID: actor})
				if res.Err == nil {
					mu.Lock()
					applied++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, res.Err, game.ErrNotYourTurn)
				}
			}
		}(actor)
	}
	wg.Wait()

	final, err := coord.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, start.Version+int64(applied), final.Version,
		"every accepted command advances the version exactly once")
	assert.NoError(t, final.Validate())

	stored, err := mem.Get(ctx, "GAME")
	require.NoError(t, err)
	assert.Equal(t, final.Version, stored.Version)
}

func TestSubmitAfterCloseAlwaysResolves(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(storage.NewMemory(), clockwork.NewFakeClock(), scripted([2]int{3, 4}))
	defer reg.Close()

	coord := startedGame(t, reg)
	coord.Close()

	// The loop goroutine drains the inbox once and exits; a later submit
	// can still win the race into the buffered inbox, so the reply wait
	// itself must observe the shutdown. Repeat to exercise the race.
	for i := 0; i < 500; i++ {
		res := coord.Submit(ctx, game.Command{Type: game.CmdRoll, ActorID: "a"})
		assert.ErrorIs(t, res.Err, ErrCoordinatorClosed)
	}

	_, err := coord.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrCoordinatorClosed)
}

func TestRematchStartsAutomatically(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	reg := NewRegistry(storage.NewMemory(), scripted([2]int{6, 6}),
		WithClock(fc),
		WithCodeFunc(func() string { return "GAME" }),
		WithCommitRetry(2, 0),
		WithDefaults(models.Settings{MaxPlayers: 6, TargetScore: 10, TurnTimeLimitSec: 20}),
	)
	defer reg.Close()

	coord := startedGame(t, reg)

	res := coord.Submit(ctx, game.Command{Type: game.CmdRoll, ActorID: "a"})
	require.NoError(t, res.Err)
	res = coord.Submit(ctx, game.Command{Type: game.CmdTakeScore, ActorID: "a"})
	require.NoError(t, res.Err)
	require.Equal(t, models.PhaseEnded, res.Room.GameState.Phase)
	require.Equal(t, "a", res.Room.GameState.Winner)
	endedVersion := res.Room.Version

	fc.Advance(6 * time.Second)

	require.Eventually(t, func() bool {
		snap, err := coord.Snapshot(ctx)
		if err != nil {
			return false
		}
		return snap.GameState.Phase == models.PhasePlaying
	}, time.Second, 5*time.Millisecond, "a finished game restarts on its own")

	snap, err := coord.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.GameState.Winner)
	assert.Equal(t, 0, snap.Players["a"].Score, "scores reset for the rematch")
	assert.Equal(t, "a", snap.GameState.CurrentPlayerID)
	assert.Equal(t, endedVersion+1, snap.Version)
}

func TestEmptyRoomShutsDown(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	reg := testRegistry(mem, clockwork.NewFakeClock(), scripted([2]int{3, 4}))
	defer reg.Close()

	created, err := reg.CreateRoom(ctx, "a", "Alice")
	require.NoError(t, err)

	res := reg.Submit(ctx, created.ID, game.Command{Type: game.CmdLeave, ActorID: "a"})
	require.NoError(t, res.Err)
	assert.Empty(t, res.Room.Players)

	require.Eventually(t, func() bool {
		_, err := mem.Get(ctx, created.ID)
		return errors.Is(err, storage.ErrNotFound)
	}, time.Second, 5*time.Millisecond, "the stored record is deleted")

	require.Eventually(t, func() bool {
		_, err := reg.Get(ctx, created.ID)
		return errors.Is(err, ErrRoomNotFound)
	}, time.Second, 5*time.Millisecond, "the registry no longer knows the room")
}
