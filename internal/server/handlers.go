package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"impostor/internal/db"
	"impostor/internal/game"
	"impostor/internal/identity"
	"impostor/internal/maintenance"
	"impostor/internal/metrics"
	"impostor/internal/rooms"
	"impostor/internal/stream"
)

type Server struct {
	Repo      rooms.Repository
	Lifecycle *game.Lifecycle
	Reveal    *game.Reveal
	Sweeper   *maintenance.Sweeper
	Hub       *stream.Hub
	DB        *db.DB // nil when running on the in-memory store
	Retention time.Duration
	Log       *zap.Logger
}

type nameRequest struct {
	Name string `json:"name"`
}

type allowJoinRequest struct {
	Allow bool `json:"allow"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", rooms.ErrInvalidInput))
		return
	}
	uid, _ := identity.FromRequest(w, r)
	code, err := s.Lifecycle.CreateRoom(r.Context(), uid, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.RoomsCreated.Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"code": code})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	code := roomCode(r)
	room, err := s.Repo.GetRoom(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	players, err := s.Repo.ListPlayers(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":    room,
		"players": players,
	})
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", rooms.ErrInvalidInput))
		return
	}
	uid, _ := identity.FromRequest(w, r)
	if err := s.Lifecycle.JoinRoom(r.Context(), roomCode(r), uid, req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (s *Server) handleStartRound(w http.ResponseWriter, r *http.Request) {
	uid, _ := identity.FromRequest(w, r)
	if err := s.Lifecycle.StartRound(r.Context(), roomCode(r), uid); err != nil {
		writeError(w, err)
		return
	}
	metrics.RoundsDealt.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "dealt"})
}

func (s *Server) handleRestartRound(w http.ResponseWriter, r *http.Request) {
	uid, _ := identity.FromRequest(w, r)
	if err := s.Lifecycle.RestartRound(r.Context(), roomCode(r), uid); err != nil {
		writeError(w, err)
		return
	}
	metrics.RoundsDealt.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "dealt"})
}

func (s *Server) handleAllowJoin(w http.ResponseWriter, r *http.Request) {
	var req allowJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", rooms.ErrInvalidInput))
		return
	}
	uid, _ := identity.FromRequest(w, r)
	if err := s.Lifecycle.ToggleAllowJoin(r.Context(), roomCode(r), uid, req.Allow); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allowJoin": req.Allow})
}

func (s *Server) handleResetToLobby(w http.ResponseWriter, r *http.Request) {
	uid, _ := identity.FromRequest(w, r)
	if err := s.Lifecycle.ResetToLobby(r.Context(), roomCode(r), uid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "lobby"})
}

// handleMarkSeen only ever marks the caller's own record; there is no way
// to acknowledge on another player's behalf.
func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	uid, isNew := identity.FromRequest(w, r)
	if isNew {
		// A brand-new identity cannot be a player in this room.
		writeError(w, fmt.Errorf("player %s: %w", uid, rooms.ErrNotFound))
		return
	}
	if err := s.Reveal.MarkSeen(r.Context(), roomCode(r), uid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"seen": true})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	code := roomCode(r)
	uid, _ := identity.FromRequest(w, r)
	if _, err := s.Repo.GetRoom(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.Log.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	s.Hub.Serve(r.Context(), conn, code, uid)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	hours := int(s.Retention / time.Hour)
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: invalid hours parameter", rooms.ErrInvalidInput))
			return
		}
		hours = n
	}
	deleted, err := s.Sweeper.Sweep(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.RoomsSwept.Add(float64(deleted))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Cleanup completed successfully",
		"roomsDeleted":   deleted,
		"hoursThreshold": hours,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		if err := s.DB.Ping(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "db_error",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func roomCode(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.PathValue("code")))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses. Room-not-found
// keeps its own 404 so clients can tell "no such room" apart from a
// transient store failure.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rooms.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, rooms.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, rooms.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, rooms.ErrJoinClosed),
		errors.Is(err, rooms.ErrRoundInProgress),
		errors.Is(err, rooms.ErrInsufficientPlayers):
		status = http.StatusConflict
	case errors.Is(err, rooms.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, rooms.ErrTransient):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
