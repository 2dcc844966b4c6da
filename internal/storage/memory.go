package storage

import (
	"context"
	"sync"

	"github.com/pigparty/pigparty/internal/models"
)

// Memory is an in-process Adapter for tests and single-node development.
// Snapshots are delivered synchronously in the committing goroutine, so
// subscribers must not block.
type Memory struct {
	mu        sync.RWMutex
	rooms     map[string]*models.Room
	subs      map[string]map[int64]func(*models.Room)
	nextSubID int64
}

// NewMemory creates an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[string]*models.Room),
		subs:  make(map[string]map[int64]func(*models.Room)),
	}
}

func (m *Memory) Get(ctx context.Context, roomID string) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return room.Clone(), nil
}

func (m *Memory) Commit(ctx context.Context, roomID string, expectedVersion int64, room *models.Room) error {
	m.mu.Lock()
	existing, ok := m.rooms[roomID]
	switch {
	case !ok && expectedVersion != 0:
		m.mu.Unlock()
		return ErrVersionConflict
	case ok && existing.Version != expectedVersion:
		m.mu.Unlock()
		return ErrVersionConflict
	}
	stored := room.Clone()
	m.rooms[roomID] = stored

	fns := make([]func(*models.Room), 0, len(m.subs[roomID]))
	for _, fn := range m.subs[roomID] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(stored.Clone())
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, roomID string, fn func(*models.Room)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSubID++
	id := m.nextSubID
	if m.subs[roomID] == nil {
		m.subs[roomID] = make(map[int64]func(*models.Room))
	}
	m.subs[roomID][id] = fn

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[roomID], id)
		if len(m.subs[roomID]) == 0 {
			delete(m.subs, roomID)
		}
	}
	return cancel, nil
}
