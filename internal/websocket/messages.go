package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope wraps every message on the wire.
// Payload is kept raw; consumers decode it into the DTO they expect.
type Envelope struct {
	MsgID   string          `json:"msgId"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v. A missing or null payload leaves v untouched.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Ack is the server's correlated answer to a request envelope.
type Ack struct {
	MsgID   string          `json:"msgId"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Role is the session role granted by the server at authentication.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// PlayerInfo describes the local player as reported by the host.
type PlayerInfo struct {
	Name    string `json:"name"`
	WorldID int    `json:"worldId"`
	Job     string `json:"job,omitempty"`
	Profile string `json:"profile,omitempty"`
}

// AuthRequest is the payload of an auth envelope.
type AuthRequest struct {
	Code   string     `json:"code"`
	Player PlayerInfo `json:"player"`
}

// AuthResult carries the identity assigned by the server.
type AuthResult struct {
	Success  bool   `json:"success"`
	PlayerID string `json:"playerId,omitempty"`
	Role     Role   `json:"role,omitempty"`
	Message  string `json:"message,omitempty"`
}

// HeartbeatPayload is sent on every heartbeat tick.
type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorPayload is the body of a server "error" envelope.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Reserved envelope types.
const (
	TypeAuth         = "auth"
	TypeAuthResult   = "auth_result"
	TypeHeartbeat    = "heartbeat"
	TypeHeartbeatAck = "heartbeat_ack"
	TypeAck          = "ack"
	TypeError        = "error"
)

// Close codes with protocol meaning. Both suppress auto-reconnect.
const (
	CloseSuperseded = 4001 // same account logged in elsewhere
	CloseKicked     = 4002 // removed by an administrator
)

// NewMsgID returns a fresh message id.
func NewMsgID() string {
	return uuid.New().String()
}

// newEnvelope builds an outgoing envelope with a generated id.
func newEnvelope(msgType string, payload interface{}) (Envelope, error) {
	env := Envelope{MsgID: NewMsgID(), Type: msgType}
	if payload == nil {
		return env, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		env.Payload = raw
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = data
	return env, nil
}

// closeReason returns the status text for an authoritative close code.
func closeReason(code int) (string, bool) {
	switch code {
	case CloseSuperseded:
		return "logged in elsewhere", true
	case CloseKicked:
		return "kicked by admin", true
	default:
		return "", false
	}
}
