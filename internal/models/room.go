package models

import (
	"fmt"
	"sort"
	"time"
)

// PlayerStatus defines a player's participation state.
type PlayerStatus string

const (
	PlayerStatusActive       PlayerStatus = "active"
	PlayerStatusWaiting      PlayerStatus = "waiting"
	PlayerStatusDisconnected PlayerStatus = "disconnected"
)

// GamePhase defines the lifecycle stage of a room.
type GamePhase string

const (
	PhaseWaiting GamePhase = "waiting"
	PhasePlaying GamePhase = "playing"
	PhaseEnded   GamePhase = "ended"
)

// Player is one seat in a room. TurnOrder is assigned at join time and
// never changes or gets reused, even after the player is removed.
type Player struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Score     int          `json:"score"`
	Status    PlayerStatus `json:"status"`
	TurnOrder int          `json:"turn_order"`
}

// GameState holds the per-turn state shared by everyone in the room.
// CurrentPlayerID and Winner are empty outside the phases that define them.
type GameState struct {
	Phase            GamePhase `json:"phase"`
	CurrentPlayerID  string    `json:"current_player_id,omitempty"`
	AccumulatedScore int       `json:"accumulated_score"`
	DiceValues       []int     `json:"dice_values,omitempty"`
	LastActionTime   time.Time `json:"last_action_time"`
	Winner           string    `json:"winner,omitempty"`
}

// Settings holds per-room configuration.
type Settings struct {
	MaxPlayers       int `json:"max_players"`
	TargetScore      int `json:"target_score"`
	TurnTimeLimitSec int `json:"turn_time_limit_sec"`
}

// DefaultSettings returns the room defaults: six seats, race to 100,
// 20 seconds per turn.
func DefaultSettings() Settings {
	return Settings{
		MaxPlayers:       6,
		TargetScore:      100,
		TurnTimeLimitSec: 20,
	}
}

// TurnTimeLimit returns the idle-turn deadline as a duration.
func (s Settings) TurnTimeLimit() time.Duration {
	return time.Duration(s.TurnTimeLimitSec) * time.Second
}

// Validate checks settings bounds.
func (s Settings) Validate() error {
	if s.MaxPlayers < 2 {
		return fmt.Errorf("max_players must be at least 2, got %d", s.MaxPlayers)
	}
	if s.TargetScore <= 0 {
		return fmt.Errorf("target_score must be positive, got %d", s.TargetScore)
	}
	if s.TurnTimeLimitSec <= 0 {
		return fmt.Errorf("turn_time_limit_sec must be positive, got %d", s.TurnTimeLimitSec)
	}
	return nil
}

// Room is the authoritative record for one game room. It is exclusively
// owned by the room's coordinator; nothing else mutates it.
//
// LastTurnOrder tracks the highest turn order ever assigned so orders are
// never reused after a player is removed.
type Room struct {
	ID            string             `json:"id"`
	Players       map[string]*Player `json:"players"`
	GameState     GameState          `json:"game_state"`
	Settings      Settings           `json:"settings"`
	Version       int64              `json:"version"`
	LastTurnOrder int                `json:"last_turn_order"`
}

// NewRoom creates an empty room in the waiting phase.
func NewRoom(code string, settings Settings, now time.Time) (*Room, error) {
	if len(code) != 4 {
		return nil, fmt.Errorf("room code must be 4 letters, got %q", code)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &Room{
		ID:      code,
		Players: make(map[string]*Player),
		GameState: GameState{
			Phase:          PhaseWaiting,
			LastActionTime: now,
		},
		Settings: settings,
		Version:  1,
	}, nil
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	players := make(map[string]*Player, len(r.Players))
	for id, p := range r.Players {
		cp := *p
		players[id] = &cp
	}
	next := *r
	next.Players = players
	if r.GameState.DiceValues != nil {
		next.GameState.DiceValues = append([]int(nil), r.GameState.DiceValues...)
	}
	return &next
}

// Player looks up a player by id.
func (r *Room) Player(id string) (*Player, bool) {
	p, ok := r.Players[id]
	return p, ok
}

// ActivePlayers returns the players in the turn rotation, ordered by turn order.
func (r *Room) ActivePlayers() []*Player {
	var out []*Player
	for _, p := range r.Players {
		if p.Status == PlayerStatusActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TurnOrder < out[j].TurnOrder })
	return out
}

// EligibleCount counts players that would take part in a started game.
func (r *Room) EligibleCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Status == PlayerStatusActive || p.Status == PlayerStatusWaiting {
			n++
		}
	}
	return n
}

// Validate checks the room invariants. The coordinator relies on every
// committed transition leaving these intact.
func (r *Room) Validate() error {
	orders := make(map[int]string, len(r.Players))
	for id, p := range r.Players {
		if p.ID != id {
			return fmt.Errorf("player map key %q does not match player id %q", id, p.ID)
		}
		if p.Score < 0 {
			return fmt.Errorf("player %s has negative score %d", id, p.Score)
		}
		if p.TurnOrder <= 0 {
			return fmt.Errorf("player %s has non-positive turn order %d", id, p.TurnOrder)
		}
		if p.TurnOrder > r.LastTurnOrder {
			return fmt.Errorf("player %s turn order %d exceeds last assigned %d", id, p.TurnOrder, r.LastTurnOrder)
		}
		if other, taken := orders[p.TurnOrder]; taken {
			return fmt.Errorf("players %s and %s share turn order %d", other, id, p.TurnOrder)
		}
		orders[p.TurnOrder] = id
	}

	gs := r.GameState
	if gs.AccumulatedScore < 0 {
		return fmt.Errorf("negative accumulated score %d", gs.AccumulatedScore)
	}
	switch n := len(gs.DiceValues); n {
	case 0:
	case 2:
		for _, d := range gs.DiceValues {
			if d < 1 || d > 6 {
				return fmt.Errorf("die value %d out of range", d)
			}
			if d == 1 && gs.AccumulatedScore != 0 {
				return fmt.Errorf("bust roll with accumulated score %d", gs.AccumulatedScore)
			}
		}
	default:
		return fmt.Errorf("dice_values must hold 0 or 2 dice, got %d", n)
	}

	switch gs.Phase {
	case PhaseWaiting:
		if gs.Winner != "" {
			return fmt.Errorf("waiting room has winner %s", gs.Winner)
		}
	case PhasePlaying:
		if gs.Winner != "" {
			return fmt.Errorf("playing room has winner %s", gs.Winner)
		}
		cur, ok := r.Players[gs.CurrentPlayerID]
		if !ok {
			return fmt.Errorf("current player %q not in room", gs.CurrentPlayerID)
		}
		if cur.Status != PlayerStatusActive {
			return fmt.Errorf("current player %s has status %s", cur.ID, cur.Status)
		}
	case PhaseEnded:
		if gs.Winner == "" {
			return fmt.Errorf("ended room has no winner")
		}
		w, ok := r.Players[gs.Winner]
		if !ok {
			return fmt.Errorf("winner %q not in room", gs.Winner)
		}
		if w.Score < r.Settings.TargetScore {
			return fmt.Errorf("winner %s has score %d below target %d", w.ID, w.Score, r.Settings.TargetScore)
		}
	default:
		return fmt.Errorf("unknown phase %q", gs.Phase)
	}
	return nil
}
