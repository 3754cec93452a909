package session

import (
	"time"

	"github.com/vntrieu/roomlink/internal/websocket"
)

// Snapshot is an immutable view of the session published once per tick.
// Readers must not modify the slices it holds.
type Snapshot struct {
	State     websocket.State `json:"-"`
	StateName string          `json:"state"`
	Status    string          `json:"status"`
	LastError string          `json:"lastError,omitempty"`
	Notice    string          `json:"notice,omitempty"`

	PlayerID string         `json:"playerId,omitempty"`
	Role     websocket.Role `json:"role,omitempty"`

	Room  *RoomInfo     `json:"room,omitempty"`
	Rooms []RoomSummary `json:"rooms"`

	PendingRequests int       `json:"pendingRequests"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// InRoom reports whether the local player is in a room.
func (s Snapshot) InRoom() bool {
	return s.Room != nil && s.Room.ID != ""
}

// IsOwner reports whether the local player owns the current room.
func (s Snapshot) IsOwner() bool {
	return s.InRoom() && s.PlayerID != "" && s.Room.OwnerID == s.PlayerID
}

// CanManage reports whether the local player may kick, assign or disband.
func (s Snapshot) CanManage() bool {
	return s.IsOwner() || (s.InRoom() && s.Role == websocket.RoleAdmin)
}
