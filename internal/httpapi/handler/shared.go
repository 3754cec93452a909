package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/vntrieu/roomlink/internal/command"
	"github.com/vntrieu/roomlink/internal/session"
	"github.com/vntrieu/roomlink/internal/websocket"
)

// contextKey type for request context keys (avoids collisions with other packages).
type contextKey string

// SubjectContextKey is the context key for the token subject (set by RequireToken middleware).
const SubjectContextKey contextKey = "subject"

// SubjectFromRequest returns the token subject if the request was authenticated; otherwise empty.
func SubjectFromRequest(r *http.Request) string {
	if s, ok := r.Context().Value(SubjectContextKey).(string); ok {
		return s
	}
	return ""
}

// Controller is the session surface the control API drives. *session.Manager implements it.
type Controller interface {
	Snapshot() session.Snapshot
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SetAutoReconnect(enabled bool)

	RefreshRoom(ctx context.Context) error
	ListRooms(ctx context.Context) error
	CreateRoom(ctx context.Context, req session.CreateRoomRequest) error
	JoinRoom(ctx context.Context, roomID, password string) error
	LeaveRoom(ctx context.Context) error
	DisbandRoom(ctx context.Context) error
	KickPlayer(ctx context.Context, playerID string) error
	AssignRole(ctx context.Context, playerID, role string) error
	AssignTeam(ctx context.Context, playerID string, team int) error
	SendCommand(ctx context.Context, msg command.Message) error
}

// requestID returns the request ID from chi's context for logging.
func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(middleware.RequestIDKey).(string); ok {
		return id
	}
	return ""
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("encode response")
	}
}

func accepted(w http.ResponseWriter, logger zerolog.Logger) {
	writeJSON(w, logger, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps session and connection errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidArgument), errors.Is(err, command.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, session.ErrNotInRoom),
		errors.Is(err, websocket.ErrNotConnected), errors.Is(err, websocket.ErrConnectInProgress),
		errors.Is(err, websocket.ErrInvalidState), errors.Is(err, websocket.ErrConnectAborted):
		return http.StatusConflict
	case errors.Is(err, websocket.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, command.ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, websocket.ErrConnectFailed):
		return http.StatusBadGateway
	case errors.Is(err, websocket.ErrAckTimeout), errors.Is(err, websocket.ErrRequestCancelled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("request_id", requestID(r)).Msg(op + " failed")
		msg = op + " failed"
	} else {
		logger.Debug().Err(err).Str("request_id", requestID(r)).Int("status", status).Msg(op + " refused")
	}
	http.Error(w, msg, status)
}
