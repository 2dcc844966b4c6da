package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigparty/pigparty/internal/models"
)

func storedRoom(t *testing.T, version int64) *models.Room {
	t.Helper()
	r, err := models.NewRoom("MNOP", models.DefaultSettings(), time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	r.Version = version
	return r
}

func TestMemoryCommitAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "MNOP")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Commit(ctx, "MNOP", 0, storedRoom(t, 1)))

	got, err := m.Get(ctx, "MNOP")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	// Mutating the returned copy must not touch the stored state.
	got.GameState.AccumulatedScore = 99
	again, err := m.Get(ctx, "MNOP")
	require.NoError(t, err)
	assert.Equal(t, 0, again.GameState.AccumulatedScore)
}

func TestMemoryOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	assert.ErrorIs(t, m.Commit(ctx, "MNOP", 5, storedRoom(t, 6)), ErrVersionConflict,
		"committing against a missing room requires expected version 0")

	require.NoError(t, m.Commit(ctx, "MNOP", 0, storedRoom(t, 1)))
	assert.ErrorIs(t, m.Commit(ctx, "MNOP", 0, storedRoom(t, 1)), ErrVersionConflict,
		"create collides with an existing room")

	require.NoError(t, m.Commit(ctx, "MNOP", 1, storedRoom(t, 2)))
	assert.ErrorIs(t, m.Commit(ctx, "MNOP", 1, storedRoom(t, 2)), ErrVersionConflict,
		"the durable version has moved past the expectation")
}

func TestMemorySubscribe(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var seen []int64
	cancel, err := m.Subscribe(ctx, "MNOP", func(r *models.Room) {
		seen = append(seen, r.Version)
	})
	require.NoError(t, err)

	require.NoError(t, m.Commit(ctx, "MNOP", 0, storedRoom(t, 1)))
	require.NoError(t, m.Commit(ctx, "MNOP", 1, storedRoom(t, 2)))
	assert.Equal(t, []int64{1, 2}, seen)

	cancel()
	require.NoError(t, m.Commit(ctx, "MNOP", 2, storedRoom(t, 3)))
	assert.Equal(t, []int64{1, 2}, seen, "no delivery after cancel")
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Commit(ctx, "MNOP", 0, storedRoom(t, 1)))
	require.NoError(t, m.Delete(ctx, "MNOP"))
	_, err := m.Get(ctx, "MNOP")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, m.Delete(ctx, "MNOP"), "deleting a missing room is not an error")
}
