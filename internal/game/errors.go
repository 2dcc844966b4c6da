package game

import "errors"

var (
	ErrWrongPhase         = errors.New("action not allowed in current phase")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
	ErrRoomFull           = errors.New("room is full")
	ErrUnknownPlayer      = errors.New("unknown player")
	ErrUnsupportedCommand = errors.New("unsupported command")
)
