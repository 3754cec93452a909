package handler

import (
	"net/http"

	"github.com/rs/zerolog"
)

// SessionHandler serves connection status and lifecycle requests.
type SessionHandler struct {
	ctrl   Controller
	logger zerolog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(ctrl Controller, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{ctrl: ctrl, logger: logger}
}

// Status handles GET /api/status
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.ctrl.Snapshot())
}

// Connect handles POST /api/connect. It returns once authenticated.
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Connect(r.Context()); err != nil {
		writeError(w, r, h.logger, "connect", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, h.ctrl.Snapshot())
}

// Disconnect handles POST /api/disconnect
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Disconnect(r.Context()); err != nil {
		writeError(w, r, h.logger, "disconnect", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reconnectRequest struct {
	Enabled bool `json:"enabled"`
}

// SetAutoReconnect handles PUT /api/reconnect
func (h *SessionHandler) SetAutoReconnect(w http.ResponseWriter, r *http.Request) {
	var req reconnectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.ctrl.SetAutoReconnect(req.Enabled)
	w.WriteHeader(http.StatusNoContent)
}
