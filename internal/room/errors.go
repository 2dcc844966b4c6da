package room

import "errors"

var (
	// ErrStaleVersion rejects a command validated against a version the
	// room has moved past. The caller may refetch and retry.
	ErrStaleVersion = errors.New("stale room version")
	// ErrRoomNotFound is returned when no room exists for a code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrPersistence is returned after commit retries are exhausted; the
	// command had no effect.
	ErrPersistence = errors.New("persistence failure")
	// ErrCoordinatorClosed is returned for commands submitted to a room
	// that has shut down.
	ErrCoordinatorClosed = errors.New("room coordinator closed")
)
