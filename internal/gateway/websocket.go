package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pigparty/pigparty/internal/game"
	"github.com/pigparty/pigparty/internal/models"
	"github.com/pigparty/pigparty/internal/room"
	"github.com/pigparty/pigparty/internal/roomcode"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

func newPlayerID() string {
	return uuid.New().String()
}

// connection is one websocket client attached to a room.
type connection struct {
	id       string
	playerID string
	roomID   string
	ws       *websocket.Conn
	send     chan ServerMessage

	mu          sync.Mutex
	lastVersion int64
	left        bool
}

// push queues a message for the client; a client too slow to drain its
// queue is dropped rather than allowed to stall the broadcaster.
func (c *connection) push(msg ServerMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		log.Warn().Str("conn_id", c.id).Str("room_id", c.roomID).Msg("dropping slow websocket client")
		c.ws.Close()
		return false
	}
}

// pushSnapshot applies the monotonic-version filter the at-least-once
// broadcast contract requires of subscribers.
func (c *connection) pushSnapshot(snap *models.Room) {
	c.mu.Lock()
	if snap.Version <= c.lastVersion {
		c.mu.Unlock()
		return
	}
	c.lastVersion = snap.Version
	c.mu.Unlock()
	c.push(snapshotMessage(snap))
}

func (c *connection) markLeft() {
	c.mu.Lock()
	c.left = true
	c.mu.Unlock()
}

func (c *connection) hasLeft() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.left
}

// handleWebsocket joins (or reconnects) the player to the room and streams
// snapshots until the connection drops. A dropped connection submits a
// Disconnect command for its player, the best-effort equivalent of the
// original client's on-disconnect patch, routed through the coordinator so
// invariants hold.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	playerID := r.URL.Query().Get("player_id")
	name := r.URL.Query().Get("name")
	if playerID == "" {
		playerID = newPlayerID()
	}
	if name == "" {
		name = roomcode.GuestName()
	}

	coord, err := s.registry.Get(r.Context(), code)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	res := coord.Submit(r.Context(), game.Command{
		Type:       game.CmdJoin,
		ActorID:    playerID,
		PlayerName: name,
	})
	if res.Err != nil {
		writeError(w, statusFor(res.Err), res.Err)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("room_id", code).Msg("websocket upgrade failed")
		return
	}

	conn := &connection{
		id:       uuid.New().String(),
		playerID: playerID,
		roomID:   code,
		ws:       ws,
		send:     make(chan ServerMessage, 32),
	}
	conn.pushSnapshot(res.Room)

	cancelSub, err := s.adapter.Subscribe(r.Context(), code, conn.pushSnapshot)
	if err != nil {
		log.Error().Err(err).Str("room_id", code).Msg("failed to subscribe to room snapshots")
		ws.Close()
		return
	}

	log.Info().
		Str("conn_id", conn.id).
		Str("room_id", code).
		Str("player_id", playerID).
		Msg("websocket client connected")

	onDrop := s.registerDisconnectAction(coord, conn)
	go s.writePump(conn)
	go s.readPump(conn, coord, cancelSub, onDrop)
}

func (s *Server) readPump(conn *connection, coord *room.Coordinator, cancelSub, onDrop func()) {
	// conn.send is never closed: the subscription callback may race a
	// shutdown, and a closed websocket already unblocks the write pump.
	defer func() {
		cancelSub()
		conn.ws.Close()
		onDrop()
	}()

	conn.ws.SetReadLimit(maxMessageSize)
	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn_id", conn.id).Msg("websocket read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.push(errorMessage(err))
			continue
		}

		cmd, err := commandFor(msg, conn.playerID)
		if err != nil {
			conn.push(errorMessage(err))
			continue
		}

		res := coord.Submit(context.Background(), cmd)
		if res.Err != nil {
			// Rejections are reported only to the initiating client.
			conn.push(errorMessage(res.Err))
			continue
		}
		if cmd.Type == game.CmdLeave {
			conn.markLeft()
			return
		}
		conn.push(eventMessage(res.Event, res.Room.Version))
	}
}

func (s *Server) writePump(conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case msg := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// registerDisconnectAction returns the trigger fired when the player's
// socket drops without an explicit leave: a Disconnect command routed
// through the coordinator, so the demotion obeys the same serialization
// as every other transition. The player record survives for reconnection.
func (s *Server) registerDisconnectAction(coord *room.Coordinator, conn *connection) func() {
	return func() {
		if conn.hasLeft() {
			return
		}
		res := coord.Submit(context.Background(), game.Command{
			Type:    game.CmdDisconnect,
			ActorID: conn.playerID,
		})
		if res.Err != nil {
			log.Warn().
				Err(res.Err).
				Str("room_id", conn.roomID).
				Str("player_id", conn.playerID).
				Msg("failed to mark player disconnected")
			return
		}
		log.Info().
			Str("room_id", conn.roomID).
			Str("player_id", conn.playerID).
			Msg("player disconnected")
	}
}

func commandFor(msg ClientMessage, playerID string) (game.Command, error) {
	switch msg.Type {
	case "start_game":
		return game.Command{Type: game.CmdStartGame, ActorID: playerID}, nil
	case "roll":
		return game.Command{Type: game.CmdRoll, ActorID: playerID}, nil
	case "take_score":
		return game.Command{Type: game.CmdTakeScore, ActorID: playerID}, nil
	case "leave":
		return game.Command{Type: game.CmdLeave, ActorID: playerID}, nil
	default:
		return game.Command{}, game.ErrUnsupportedCommand
	}
}
