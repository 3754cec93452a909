package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vntrieu/roomlink/internal/session"
)

// Validation limits for room endpoints.
const (
	RoomNameMaxLen = 64
	PasswordMaxLen = 128
	MaxRoomSize    = 48
)

// RoomHandler handles room-related HTTP requests. Mutations are forwarded to
// the server; the cached room changes once the server confirms them.
type RoomHandler struct {
	ctrl   Controller
	logger zerolog.Logger
}

// NewRoomHandler creates a new RoomHandler.
func NewRoomHandler(ctrl Controller, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{ctrl: ctrl, logger: logger}
}

// GetRoom handles GET /api/room
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	snap := h.ctrl.Snapshot()
	if !snap.InRoom() {
		http.Error(w, "not in a room", http.StatusNotFound)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, snap.Room)
}

// ListRooms handles GET /api/rooms. ?refresh=true asks the server first.
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		if err := h.ctrl.ListRooms(r.Context()); err != nil {
			writeError(w, r, h.logger, "list rooms", err)
			return
		}
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{"rooms": h.ctrl.Snapshot().Rooms})
}

func validateRoomName(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return "name is required"
	}
	if len(s) > RoomNameMaxLen {
		return fmt.Sprintf("name must be at most %d characters", RoomNameMaxLen)
	}
	return ""
}

func validatePasswordLength(password string) string {
	if len(password) > PasswordMaxLen {
		return fmt.Sprintf("password must be at most %d characters", PasswordMaxLen)
	}
	return ""
}

// CreateRoom handles POST /api/rooms
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if msg := validateRoomName(req.Name); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	if msg := validatePasswordLength(req.Password); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	if req.Size < 0 || req.Size > MaxRoomSize {
		http.Error(w, fmt.Sprintf("size must be between 0 and %d", MaxRoomSize), http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	if err := h.ctrl.CreateRoom(r.Context(), req); err != nil {
		writeError(w, r, h.logger, "create room", err)
		return
	}
	accepted(w, h.logger)
}

type joinRoomBody struct {
	Password string `json:"password"`
}

// JoinRoom handles POST /api/rooms/{roomID}/join
func (h *RoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	var body joinRoomBody
	if r.ContentLength != 0 && !decodeBody(w, r, &body) {
		return
	}
	if msg := validatePasswordLength(body.Password); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	if err := h.ctrl.JoinRoom(r.Context(), roomID, body.Password); err != nil {
		writeError(w, r, h.logger, "join room", err)
		return
	}
	accepted(w, h.logger)
}

// LeaveRoom handles POST /api/room/leave
func (h *RoomHandler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.LeaveRoom(r.Context()); err != nil {
		writeError(w, r, h.logger, "leave room", err)
		return
	}
	accepted(w, h.logger)
}

// DisbandRoom handles POST /api/room/disband (owner or admin only)
func (h *RoomHandler) DisbandRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.DisbandRoom(r.Context()); err != nil {
		writeError(w, r, h.logger, "disband room", err)
		return
	}
	accepted(w, h.logger)
}

// RefreshRoom handles POST /api/room/refresh
func (h *RoomHandler) RefreshRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.RefreshRoom(r.Context()); err != nil {
		writeError(w, r, h.logger, "refresh room", err)
		return
	}
	accepted(w, h.logger)
}

// KickPlayer handles POST /api/room/players/{playerID}/kick
func (h *RoomHandler) KickPlayer(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.KickPlayer(r.Context(), chi.URLParam(r, "playerID")); err != nil {
		writeError(w, r, h.logger, "kick player", err)
		return
	}
	accepted(w, h.logger)
}

type assignRoleBody struct {
	Role string `json:"role"`
}

// AssignRole handles PUT /api/room/players/{playerID}/role
func (h *RoomHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var body assignRoleBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.ctrl.AssignRole(r.Context(), chi.URLParam(r, "playerID"), body.Role); err != nil {
		writeError(w, r, h.logger, "assign role", err)
		return
	}
	accepted(w, h.logger)
}

type assignTeamBody struct {
	Team *int `json:"team"`
}

// AssignTeam handles PUT /api/room/players/{playerID}/team
func (h *RoomHandler) AssignTeam(w http.ResponseWriter, r *http.Request) {
	var body assignTeamBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Team == nil {
		http.Error(w, "team is required", http.StatusBadRequest)
		return
	}
	if err := h.ctrl.AssignTeam(r.Context(), chi.URLParam(r, "playerID"), *body.Team); err != nil {
		writeError(w, r, h.logger, "assign team", err)
		return
	}
	accepted(w, h.logger)
}
