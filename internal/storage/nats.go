package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/pigparty/pigparty/internal/models"
)

const subjectPrefix = "rooms"

// NATSBroadcaster layers snapshot fan-out over another adapter. Every
// successful commit is published on rooms.<code> so gateways on any node
// see the change. Publishing is best effort: a subscriber that misses a
// snapshot catches up from the next one, or from Get on reconnect.
type NATSBroadcaster struct {
	inner Adapter
	conn  *nats.Conn
}

// NewNATSBroadcaster wraps inner with NATS-based broadcast.
func NewNATSBroadcaster(inner Adapter, conn *nats.Conn) *NATSBroadcaster {
	return &NATSBroadcaster{inner: inner, conn: conn}
}

func subjectFor(roomID string) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, roomID)
}

func (b *NATSBroadcaster) Get(ctx context.Context, roomID string) (*models.Room, error) {
	return b.inner.Get(ctx, roomID)
}

func (b *NATSBroadcaster) Commit(ctx context.Context, roomID string, expectedVersion int64, room *models.Room) error {
	if err := b.inner.Commit(ctx, roomID, expectedVersion, room); err != nil {
		return err
	}

	data, err := json.Marshal(room)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to encode snapshot for broadcast")
		return nil
	}
	if err := b.conn.Publish(subjectFor(roomID), data); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("failed to publish room snapshot")
	}
	return nil
}

func (b *NATSBroadcaster) Delete(ctx context.Context, roomID string) error {
	return b.inner.Delete(ctx, roomID)
}

func (b *NATSBroadcaster) Subscribe(ctx context.Context, roomID string, fn func(*models.Room)) (func(), error) {
	sub, err := b.conn.Subscribe(subjectFor(roomID), func(msg *nats.Msg) {
		var room models.Room
		if err := json.Unmarshal(msg.Data, &room); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("dropping undecodable room snapshot")
			return
		}
		fn(&room)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to room snapshots: %w", err)
	}

	cancel := func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("failed to unsubscribe from room snapshots")
		}
	}
	return cancel, nil
}
