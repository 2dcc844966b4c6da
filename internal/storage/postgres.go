package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pigparty/pigparty/internal/models"
)

// Postgres stores each room as a jsonb document guarded by a version
// column. It does not broadcast changes; wrap it in a NATSBroadcaster to
// get Subscribe.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres adapter on an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const roomsSchema = `
CREATE TABLE IF NOT EXISTS rooms (
    code       TEXT PRIMARY KEY,
    doc        JSONB NOT NULL,
    version    BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the rooms table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, roomsSchema); err != nil {
		return fmt.Errorf("failed to ensure rooms schema: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, roomID string) (*models.Room, error) {
	var doc []byte
	var version int64
	err := p.pool.QueryRow(ctx, `SELECT doc, version FROM rooms WHERE code = $1`, roomID).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	var room models.Room
	if err := json.Unmarshal(doc, &room); err != nil {
		return nil, fmt.Errorf("failed to decode room document: %w", err)
	}
	room.Version = version
	return &room, nil
}

func (p *Postgres) Commit(ctx context.Context, roomID string, expectedVersion int64, room *models.Room) error {
	doc, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to encode room document: %w", err)
	}

	if expectedVersion == 0 {
		tag, err := p.pool.Exec(ctx,
			`INSERT INTO rooms (code, doc, version) VALUES ($1, $2, $3) ON CONFLICT (code) DO NOTHING`,
			roomID, doc, room.Version)
		if err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
		return nil
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE rooms SET doc = $2, version = $3, updated_at = now() WHERE code = $1 AND version = $4`,
		roomID, doc, room.Version, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, roomID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM rooms WHERE code = $1`, roomID); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}

func (p *Postgres) Subscribe(ctx context.Context, roomID string, fn func(*models.Room)) (func(), error) {
	return nil, ErrSubscribeUnsupported
}
