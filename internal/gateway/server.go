package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pigparty/pigparty/internal/game"
	"github.com/pigparty/pigparty/internal/room"
	"github.com/pigparty/pigparty/internal/roomcode"
	"github.com/pigparty/pigparty/internal/storage"
)

// Server is the HTTP and websocket surface over the room registry. It is
// a read-only subscriber plus a command submitter; all rule evaluation
// lives behind the coordinator.
type Server struct {
	registry *room.Registry
	adapter  storage.Adapter
	upgrader websocket.Upgrader
}

// NewServer creates the gateway. The adapter is used only to subscribe to
// committed snapshots.
func NewServer(registry *room.Registry, adapter storage.Adapter) *Server {
	return &Server{
		registry: registry,
		adapter:  adapter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the CORS layer in front.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/rooms", s.handleCreateRoom)
	r.Get("/rooms/{code}", s.handleGetRoom)
	r.Post("/rooms/{code}/join", s.handleJoinRoom)
	r.Get("/rooms/{code}/ws", s.handleWebsocket)
	return r
}

type identifyRequest struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

// fill assigns a generated identity where the client supplied none,
// mirroring the anonymous guest flow of the original client.
func (req *identifyRequest) fill() {
	if req.PlayerID == "" {
		req.PlayerID = newPlayerID()
	}
	if req.Name == "" {
		req.Name = roomcode.GuestName()
	}
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req identifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.fill()

	created, err := s.registry.CreateRoom(r.Context(), req.PlayerID, req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshotMessage(created))
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	coord, err := s.registry.Get(r.Context(), code)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	snap, err := coord.Snapshot(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotMessage(snap))
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req identifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.fill()

	res := s.registry.Submit(r.Context(), code, game.Command{
		Type:       game.CmdJoin,
		ActorID:    req.PlayerID,
		PlayerName: req.Name,
	})
	if res.Err != nil {
		writeError(w, statusFor(res.Err), res.Err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotMessage(res.Room))
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorMessage(err))
}

// statusFor maps the rejection taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, game.ErrUnknownPlayer):
		return http.StatusNotFound
	case errors.Is(err, room.ErrStaleVersion):
		return http.StatusConflict
	case errors.Is(err, game.ErrRoomFull), errors.Is(err, game.ErrNotEnoughPlayers):
		return http.StatusConflict
	case errors.Is(err, game.ErrWrongPhase), errors.Is(err, game.ErrNotYourTurn),
		errors.Is(err, game.ErrUnsupportedCommand):
		return http.StatusBadRequest
	case errors.Is(err, room.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
