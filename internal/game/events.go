package game

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what a committed transition did.
type EventType string

const (
	EventGameStarted        EventType = "GameStarted"
	EventDiceRolled         EventType = "DiceRolled"
	EventScoreTaken         EventType = "ScoreTaken"
	EventGameEnded          EventType = "GameEnded"
	EventPlayerJoined       EventType = "PlayerJoined"
	EventPlayerLeft         EventType = "PlayerLeft"
	EventPlayerDisconnected EventType = "PlayerDisconnected"
	EventPlayerReconnected  EventType = "PlayerReconnected"
	EventTurnTimedOut       EventType = "TurnTimedOut"
)

// Event describes one committed transition. Fields that don't apply to the
// event type are left zero.
type Event struct {
	ID           uuid.UUID `json:"id"`
	Type         EventType `json:"type"`
	RoomID       string    `json:"room_id"`
	PlayerID     string    `json:"player_id,omitempty"`
	Dice         []int     `json:"dice,omitempty"`
	Busted       bool      `json:"busted,omitempty"`
	Points       int       `json:"points,omitempty"`
	NextPlayerID string    `json:"next_player_id,omitempty"`
	Winner       string    `json:"winner,omitempty"`
	At           time.Time `json:"at"`
}

func newEvent(t EventType, roomID string, at time.Time) *Event {
	return &Event{
		ID:     uuid.New(),
		Type:   t,
		RoomID: roomID,
		At:     at,
	}
}
