package session

// Room envelope types.
const (
	TypeRoomCreate     = "room_create"
	TypeRoomJoin       = "room_join"
	TypeRoomLeave      = "room_leave"
	TypeRoomKick       = "room_kick"
	TypeRoomAssignRole = "room_assign_role"
	TypeRoomAssignTeam = "room_assign_team"
	TypeRoomDisband    = "room_disband"
	TypeRoomInfo       = "room_info"
	TypeRoomList       = "room_list"

	TypeRoomPlayerJoined = "room_player_joined"
	TypeRoomPlayerLeft   = "room_player_left"
	TypeRoomPlayerKicked = "room_player_kicked"
	TypeRoomRoleChanged  = "room_role_changed"
	TypeRoomTeamChanged  = "room_team_changed"
	TypeRoomOwnerChanged = "room_owner_changed"
	TypeRoomDisbanded    = "room_disbanded"

	TypePlayerUpdate = "player_update"
	TypeAdminNotice  = "admin_notice"
)

// Room roles.
const (
	RoomRoleOwner  = "owner"
	RoomRoleMember = "member"
)

// RoomInfo is the server's view of the room the local player is in.
type RoomInfo struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	OwnerID     string       `json:"ownerId"`
	Size        int          `json:"size"`
	HasPassword bool         `json:"hasPassword"`
	Players     []RoomPlayer `json:"players"`
}

// Player returns the roster entry for playerID.
func (r *RoomInfo) Player(playerID string) (RoomPlayer, bool) {
	if r == nil {
		return RoomPlayer{}, false
	}
	for _, p := range r.Players {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return RoomPlayer{}, false
}

func (r *RoomInfo) clone() *RoomInfo {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = make([]RoomPlayer, len(r.Players))
	for i, p := range r.Players {
		c.Players[i] = p.clone()
	}
	return &c
}

// RoomPlayer is one roster entry.
type RoomPlayer struct {
	PlayerID string            `json:"playerId"`
	Name     string            `json:"name"`
	WorldID  int               `json:"worldId"`
	Team     int               `json:"team"`
	Role     string            `json:"role"`
	Job      string            `json:"job,omitempty"`
	Profile  string            `json:"profile,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (p RoomPlayer) clone() RoomPlayer {
	if p.Metadata != nil {
		md := make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			md[k] = v
		}
		p.Metadata = md
	}
	return p
}

// RoomSummary is one entry of the public room list.
type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OwnerName   string `json:"ownerName"`
	Size        int    `json:"size"`
	PlayerCount int    `json:"playerCount"`
	HasPassword bool   `json:"hasPassword"`
}

// RoomList is the payload of room_list.
type RoomList struct {
	Rooms []RoomSummary `json:"rooms"`
}

// PlayerEvent is the payload of the structural room_* events.
type PlayerEvent struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId,omitempty"`
}

// PlayerUpdate carries the fields of one player that changed. Nil fields are
// left untouched.
type PlayerUpdate struct {
	PlayerID string            `json:"playerId"`
	Job      *string           `json:"job,omitempty"`
	Profile  *string           `json:"profile,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Notice is the payload of admin_notice.
type Notice struct {
	Message string `json:"message"`
}

// CreateRoomRequest is the payload of room_create.
type CreateRoomRequest struct {
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Password string `json:"password,omitempty"`
}

// JoinRoomRequest is the payload of room_join.
type JoinRoomRequest struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password,omitempty"`
}

// RoomTarget addresses a room and optionally one of its players.
type RoomTarget struct {
	RoomID   string `json:"roomId,omitempty"`
	PlayerID string `json:"playerId,omitempty"`
}

// AssignRoleRequest is the payload of room_assign_role.
type AssignRoleRequest struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	Role     string `json:"role"`
}

// AssignTeamRequest is the payload of room_assign_team.
type AssignTeamRequest struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	Team     int    `json:"team"`
}
