package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/vntrieu/roomlink/internal/command"
)

// CommandHandler sends room commands to other members.
type CommandHandler struct {
	ctrl   Controller
	logger zerolog.Logger
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(ctrl Controller, logger zerolog.Logger) *CommandHandler {
	return &CommandHandler{ctrl: ctrl, logger: logger}
}

type sendCommandBody struct {
	// Type is a command type name ("notify") or number ("1").
	Type    string `json:"type"`
	Command string `json:"command"`
	Targets string `json:"targets"`
}

// Send handles POST /api/commands
func (h *CommandHandler) Send(w http.ResponseWriter, r *http.Request) {
	var body sendCommandBody
	if !decodeBody(w, r, &body) {
		return
	}
	t, err := command.ParseType(body.Type)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msg := command.Message{CommandType: t, Command: body.Command, Targets: body.Targets}
	if err := h.ctrl.SendCommand(r.Context(), msg); err != nil {
		writeError(w, r, h.logger, "send command", err)
		return
	}
	accepted(w, h.logger)
}
