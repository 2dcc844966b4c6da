package gateway

import (
	"github.com/pigparty/pigparty/internal/game"
	"github.com/pigparty/pigparty/internal/models"
)

// ClientMessage is what a websocket client sends to act in its room.
type ClientMessage struct {
	Type string `json:"type"` // "start_game" | "roll" | "take_score" | "leave"
}

// ServerMessage is what the gateway pushes to websocket clients.
type ServerMessage struct {
	Type    string       `json:"type"` // "snapshot" | "event" | "error"
	Version int64        `json:"version,omitempty"`
	Room    *models.Room `json:"room,omitempty"`
	Event   *game.Event  `json:"event,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func snapshotMessage(room *models.Room) ServerMessage {
	return ServerMessage{Type: "snapshot", Version: room.Version, Room: room}
}

func eventMessage(evt *game.Event, version int64) ServerMessage {
	return ServerMessage{Type: "event", Version: version, Event: evt}
}

func errorMessage(err error) ServerMessage {
	return ServerMessage{Type: "error", Error: err.Error()}
}
