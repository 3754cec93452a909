package handler

import (
	"net/http"

	"github.com/rs/zerolog"
)

// PlayerUpdater changes the locally reported job and profile.
// *session.LocalPlayer implements it.
type PlayerUpdater interface {
	SetJob(job string)
	SetProfile(profile string)
}

// PlayerHandler lets the host report local player changes. The session's
// poll pushes them to the server.
type PlayerHandler struct {
	player PlayerUpdater
	logger zerolog.Logger
}

// NewPlayerHandler creates a PlayerHandler.
func NewPlayerHandler(player PlayerUpdater, logger zerolog.Logger) *PlayerHandler {
	return &PlayerHandler{player: player, logger: logger}
}

type updatePlayerBody struct {
	Job     string `json:"job"`
	Profile string `json:"profile"`
}

// Update handles PUT /api/player
func (h *PlayerHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body updatePlayerBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Job == "" && body.Profile == "" {
		http.Error(w, "job or profile is required", http.StatusBadRequest)
		return
	}
	h.player.SetJob(body.Job)
	h.player.SetProfile(body.Profile)
	w.WriteHeader(http.StatusNoContent)
}
