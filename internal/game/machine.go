package game

import (
	"time"

	"github.com/pigparty/pigparty/internal/dice"
	"github.com/pigparty/pigparty/internal/models"
)

// Machine is the transition function over (room, command). It never mutates
// the room it is given; Apply returns a fresh copy with the transition
// applied, or the rejection error and no state change. Aside from the
// injected dice roller it is pure.
type Machine struct {
	roller dice.Roller
}

// NewMachine creates a state machine drawing rolls from the given roller.
func NewMachine(roller dice.Roller) *Machine {
	return &Machine{roller: roller}
}

// Apply computes the next room state for one command.
func (m *Machine) Apply(room *models.Room, cmd Command, now time.Time) (*models.Room, *Event, error) {
	next := room.Clone()
	switch cmd.Type {
	case CmdStartGame:
		return m.startGame(next, now)
	case CmdRoll:
		return m.roll(next, cmd.ActorID, now)
	case CmdTakeScore:
		return m.takeScore(next, cmd.ActorID, EventScoreTaken, now)
	case CmdTimeout:
		// The timer banks on behalf of whoever holds the turn, even when
		// nothing is accumulated; an idle player simply passes with no gain.
		if next.GameState.Phase != models.PhasePlaying {
			return nil, nil, ErrWrongPhase
		}
		return m.takeScore(next, next.GameState.CurrentPlayerID, EventTurnTimedOut, now)
	case CmdJoin:
		return m.join(next, cmd.ActorID, cmd.PlayerName, now)
	case CmdLeave:
		return m.leave(next, cmd.ActorID, now)
	case CmdDisconnect:
		return m.disconnect(next, cmd.ActorID, now)
	case CmdReconnect:
		return m.reconnect(next, cmd.ActorID, now)
	default:
		return nil, nil, ErrUnsupportedCommand
	}
}

func (m *Machine) startGame(room *models.Room, now time.Time) (*models.Room, *Event, error) {
	// A finished game may be restarted in place; a running one may not.
	if room.GameState.Phase == models.PhasePlaying {
		return nil, nil, ErrWrongPhase
	}
	if room.EligibleCount() < 2 {
		return nil, nil, ErrNotEnoughPlayers
	}

	for _, p := range room.Players {
		p.Score = 0
		if p.Status == models.PlayerStatusWaiting {
			p.Status = models.PlayerStatusActive
		}
	}

	first := room.ActivePlayers()[0]
	room.GameState = models.GameState{
		Phase:           models.PhasePlaying,
		CurrentPlayerID: first.ID,
		LastActionTime:  now,
	}

	evt := newEvent(EventGameStarted, room.ID, now)
	evt.NextPlayerID = first.ID
	return room, evt, nil
}

func (m *Machine) roll(room *models.Room, actorID string, now time.Time) (*models.Room, *Event, error) {
	gs := &room.GameState
	if gs.Phase != models.PhasePlaying {
		return nil, nil, ErrWrongPhase
	}
	if actorID != gs.CurrentPlayerID {
		return nil, nil, ErrNotYourTurn
	}

	d1, d2 := m.roller.Roll()
	gs.DiceValues = []int{d1, d2}
	gs.LastActionTime = now

	evt := newEvent(EventDiceRolled, room.ID, now)
	evt.PlayerID = actorID
	evt.Dice = []int{d1, d2}

	if dice.IsBust(d1, d2) {
		cur := room.Players[actorID]
		gs.AccumulatedScore = 0
		gs.CurrentPlayerID = nextActivePlayer(room, cur.TurnOrder)
		evt.Busted = true
		evt.NextPlayerID = gs.CurrentPlayerID
		return room, evt, nil
	}

	gs.AccumulatedScore += dice.ScoreOf(d1, d2)
	evt.Points = dice.ScoreOf(d1, d2)
	evt.NextPlayerID = actorID
	return room, evt, nil
}

func (m *Machine) takeScore(room *models.Room, actorID string, eventType EventType, now time.Time) (*models.Room, *Event, error) {
	gs := &room.GameState
	if gs.Phase != models.PhasePlaying {
		return nil, nil, ErrWrongPhase
	}
	if actorID != gs.CurrentPlayerID {
		return nil, nil, ErrNotYourTurn
	}

	cur := room.Players[actorID]
	points := gs.AccumulatedScore
	cur.Score += points
	gs.AccumulatedScore = 0
	gs.DiceValues = nil
	gs.LastActionTime = now

	if cur.Score >= room.Settings.TargetScore {
		gs.Phase = models.PhaseEnded
		gs.Winner = actorID
		gs.CurrentPlayerID = ""

		evt := newEvent(EventGameEnded, room.ID, now)
		evt.PlayerID = actorID
		evt.Points = points
		evt.Winner = actorID
		return room, evt, nil
	}

	gs.CurrentPlayerID = nextActivePlayer(room, cur.TurnOrder)

	evt := newEvent(eventType, room.ID, now)
	evt.PlayerID = actorID
	evt.Points = points
	evt.NextPlayerID = gs.CurrentPlayerID
	return room, evt, nil
}

func (m *Machine) join(room *models.Room, playerID, name string, now time.Time) (*models.Room, *Event, error) {
	if _, ok := room.Player(playerID); ok {
		// A join for a known id is a reactivation, never a second seat.
		return m.reconnect(room, playerID, now)
	}
	if len(room.Players) >= room.Settings.MaxPlayers {
		return nil, nil, ErrRoomFull
	}

	room.LastTurnOrder++
	status := models.PlayerStatusActive
	if room.GameState.Phase == models.PhasePlaying {
		status = models.PlayerStatusWaiting
	}
	room.Players[playerID] = &models.Player{
		ID:        playerID,
		Name:      name,
		Status:    status,
		TurnOrder: room.LastTurnOrder,
	}

	evt := newEvent(EventPlayerJoined, room.ID, now)
	evt.PlayerID = playerID
	return room, evt, nil
}

func (m *Machine) leave(room *models.Room, playerID string, now time.Time) (*models.Room, *Event, error) {
	p, ok := room.Player(playerID)
	if !ok {
		return nil, nil, ErrUnknownPlayer
	}
	delete(room.Players, playerID)

	evt := newEvent(EventPlayerLeft, room.ID, now)
	evt.PlayerID = playerID
	m.advancePastDeparted(room, p, evt, now)
	return room, evt, nil
}

func (m *Machine) disconnect(room *models.Room, playerID string, now time.Time) (*models.Room, *Event, error) {
	p, ok := room.Player(playerID)
	if !ok {
		return nil, nil, ErrUnknownPlayer
	}
	p.Status = models.PlayerStatusDisconnected

	evt := newEvent(EventPlayerDisconnected, room.ID, now)
	evt.PlayerID = playerID
	m.advancePastDeparted(room, p, evt, now)
	return room, evt, nil
}

// advancePastDeparted hands the turn on when the departed player held it.
// The turn's unbanked points belong to the turn, not the player, so they
// are forfeited. With no active player left the room drops back to waiting.
func (m *Machine) advancePastDeparted(room *models.Room, departed *models.Player, evt *Event, now time.Time) {
	gs := &room.GameState
	if gs.Phase != models.PhasePlaying || gs.CurrentPlayerID != departed.ID {
		return
	}

	gs.AccumulatedScore = 0
	gs.DiceValues = nil
	gs.LastActionTime = now

	nextID := nextActivePlayer(room, departed.TurnOrder)
	if nextID == "" {
		gs.Phase = models.PhaseWaiting
		gs.CurrentPlayerID = ""
		return
	}
	gs.CurrentPlayerID = nextID
	evt.NextPlayerID = nextID
}

func (m *Machine) reconnect(room *models.Room, playerID string, now time.Time) (*models.Room, *Event, error) {
	p, ok := room.Player(playerID)
	if !ok {
		return nil, nil, ErrUnknownPlayer
	}
	if p.Status == models.PlayerStatusDisconnected {
		p.Status = models.PlayerStatusActive
	}

	evt := newEvent(EventPlayerReconnected, room.ID, now)
	evt.PlayerID = playerID
	return room, evt, nil
}
