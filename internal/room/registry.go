package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/pigparty/pigparty/internal/dice"
	"github.com/pigparty/pigparty/internal/game"
	"github.com/pigparty/pigparty/internal/models"
	"github.com/pigparty/pigparty/internal/roomcode"
	"github.com/pigparty/pigparty/internal/storage"
)

const createCodeAttempts = 5

// Registry locates or creates the coordinator for a room code. Rooms not
// resident in memory are loaded from the adapter, so a registry can pick
// up rooms committed by an earlier process.
type Registry struct {
	adapter  storage.Adapter
	machine  *game.Machine
	clock    clockwork.Clock
	defaults models.Settings
	codeFn   func() string

	commitRetries int
	commitBackoff time.Duration

	mu    sync.Mutex
	rooms map[string]*Coordinator
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock substitutes the clock; tests pass a fake.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithDefaults sets the settings applied to newly created rooms.
func WithDefaults(settings models.Settings) Option {
	return func(r *Registry) { r.defaults = settings }
}

// WithCodeFunc substitutes the room-code generator.
func WithCodeFunc(fn func() string) Option {
	return func(r *Registry) { r.codeFn = fn }
}

// WithCommitRetry sets how many times a failed commit is retried and the
// backoff between attempts.
func WithCommitRetry(retries int, backoff time.Duration) Option {
	return func(r *Registry) {
		r.commitRetries = retries
		r.commitBackoff = backoff
	}
}

// NewRegistry creates a registry applying commands through a machine built
// on the given roller.
func NewRegistry(adapter storage.Adapter, roller dice.Roller, opts ...Option) *Registry {
	r := &Registry{
		adapter:       adapter,
		machine:       game.NewMachine(roller),
		clock:         clockwork.NewRealClock(),
		defaults:      models.DefaultSettings(),
		codeFn:        roomcode.Generate,
		commitRetries: 3,
		commitBackoff: 100 * time.Millisecond,
		rooms:         make(map[string]*Coordinator),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateRoom creates a room with the host seated as its first player and
// returns the committed snapshot. Code collisions are retried with fresh
// codes.
func (r *Registry) CreateRoom(ctx context.Context, hostID, hostName string) (*models.Room, error) {
	var lastErr error
	for attempt := 0; attempt < createCodeAttempts; attempt++ {
		code := r.codeFn()
		newRoom, err := models.NewRoom(code, r.defaults, r.clock.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to build room: %w", err)
		}
		newRoom.LastTurnOrder = 1
		newRoom.Players[hostID] = &models.Player{
			ID:        hostID,
			Name:      hostName,
			Status:    models.PlayerStatusActive,
			TurnOrder: 1,
		}

		if err := r.adapter.Commit(ctx, code, 0, newRoom); err != nil {
			if errors.Is(err, storage.ErrVersionConflict) {
				lastErr = err
				continue // code already taken
			}
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}

		r.mu.Lock()
		r.rooms[code] = newCoordinator(newRoom, r.machine, r.adapter, r.clock, r.commitRetries, r.commitBackoff, r.dropRoom)
		r.mu.Unlock()

		log.Info().Str("room_id", code).Str("host_id", hostID).Msg("room created")
		return newRoom.Clone(), nil
	}
	return nil, fmt.Errorf("failed to allocate a room code after %d attempts: %w", createCodeAttempts, lastErr)
}

// Get returns the coordinator for a room code, loading the room from
// storage if it is not resident.
func (r *Registry) Get(ctx context.Context, code string) (*Coordinator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if coord, ok := r.rooms[code]; ok {
		return coord, nil
	}

	loaded, err := r.adapter.Get(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	coord := newCoordinator(loaded, r.machine, r.adapter, r.clock, r.commitRetries, r.commitBackoff, r.dropRoom)
	r.rooms[code] = coord
	log.Info().Str("room_id", code).Int64("version", loaded.Version).Msg("room loaded from storage")
	return coord, nil
}

// Submit routes one command to the room's coordinator.
func (r *Registry) Submit(ctx context.Context, code string, cmd game.Command) Result {
	coord, err := r.Get(ctx, code)
	if err != nil {
		return Result{Err: err}
	}
	return coord.Submit(ctx, cmd)
}

// Close shuts down every resident coordinator.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for code, coord := range r.rooms {
		coord.Close()
		delete(r.rooms, code)
	}
}

// dropRoom runs when a room's last player leaves: the coordinator goes
// away and the stored record is deleted.
func (r *Registry) dropRoom(code string) {
	r.mu.Lock()
	delete(r.rooms, code)
	r.mu.Unlock()

	if err := r.adapter.Delete(context.Background(), code); err != nil {
		log.Warn().Err(err).Str("room_id", code).Msg("failed to delete empty room")
	}
}
