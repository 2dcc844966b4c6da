package storage

import (
	"context"
	"errors"

	"github.com/pigparty/pigparty/internal/models"
)

var (
	// ErrNotFound is returned when a room does not exist in storage.
	ErrNotFound = errors.New("room not found in storage")
	// ErrVersionConflict is returned when the durable version has moved
	// past the expected one; the caller must refetch before retrying.
	ErrVersionConflict = errors.New("room version conflict")
	// ErrSubscribeUnsupported is returned by adapters that need a
	// broadcast layer (see NATSBroadcaster) to deliver snapshots.
	ErrSubscribeUnsupported = errors.New("adapter does not support subscriptions")
)

// Adapter is the durable storage and change-broadcast collaborator for
// room state. Commits are atomic and optimistically concurrent: a commit
// whose expected version no longer matches the durable version fails with
// ErrVersionConflict and writes nothing.
//
// Snapshot delivery is at-least-once with no ordering guarantee beyond the
// monotonic room version; subscribers must discard snapshots older than
// one they have already seen.
type Adapter interface {
	// Get returns the durable room state, or ErrNotFound.
	Get(ctx context.Context, roomID string) (*models.Room, error)

	// Commit durably writes room, which must carry its new version.
	// expectedVersion is the version the writer observed; zero means the
	// room must not exist yet.
	Commit(ctx context.Context, roomID string, expectedVersion int64, room *models.Room) error

	// Delete removes the room. Deleting a missing room is not an error.
	Delete(ctx context.Context, roomID string) error

	// Subscribe registers fn to receive a snapshot on every committed
	// change to the room. The returned cancel func stops delivery.
	Subscribe(ctx context.Context, roomID string, fn func(*models.Room)) (func(), error)
}
