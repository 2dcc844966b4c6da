package game

// CommandType identifies a room command.
type CommandType string

const (
	CmdStartGame  CommandType = "StartGame"
	CmdRoll       CommandType = "Roll"
	CmdTakeScore  CommandType = "TakeScore"
	CmdJoin       CommandType = "Join"
	CmdLeave      CommandType = "Leave"
	CmdDisconnect CommandType = "Disconnect"
	CmdReconnect  CommandType = "Reconnect"
	CmdTimeout    CommandType = "Timeout"
)

// Command is one submission against a room. ActorID is the player the
// command acts for; Timeout leaves it empty and acts for whoever holds the
// turn. ExpectedVersion pins the command to the room version the submitter
// observed; zero means "apply against whatever is current".
type Command struct {
	Type            CommandType
	ActorID         string
	PlayerName      string // Join only
	ExpectedVersion int64
}
