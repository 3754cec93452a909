package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vntrieu/roomlink/internal/command"
	"github.com/vntrieu/roomlink/internal/websocket"
)

// The operations below are safe from any goroutine. None of them touches the
// cache directly; results are applied by the next Tick.

// CreateRoom asks the server for a new room owned by the local player.
func (m *Manager) CreateRoom(ctx context.Context, req CreateRoomRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return fmt.Errorf("%w: room name is required", ErrInvalidArgument)
	}
	if req.Size < 0 {
		return fmt.Errorf("%w: room size must not be negative", ErrInvalidArgument)
	}
	ack, err := m.request(ctx, TypeRoomCreate, req)
	if err != nil {
		return err
	}
	m.applyAckRoom(ack)
	return nil
}

// JoinRoom joins roomID, with a password when the room has one.
func (m *Manager) JoinRoom(ctx context.Context, roomID, password string) error {
	if roomID == "" {
		return fmt.Errorf("%w: room id is required", ErrInvalidArgument)
	}
	ack, err := m.request(ctx, TypeRoomJoin, JoinRoomRequest{RoomID: roomID, Password: password})
	if err != nil {
		return err
	}
	m.applyAckRoom(ack)
	return nil
}

// LeaveRoom leaves the current room.
func (m *Manager) LeaveRoom(ctx context.Context) error {
	snap, err := m.inRoom()
	if err != nil {
		return err
	}
	if _, err := m.request(ctx, TypeRoomLeave, RoomTarget{RoomID: snap.Room.ID}); err != nil {
		return err
	}
	m.post(func() { m.applyRoom(nil) })
	return nil
}

// KickPlayer removes playerID from the current room.
func (m *Manager) KickPlayer(ctx context.Context, playerID string) error {
	snap, err := m.manageable(playerID)
	if err != nil {
		return err
	}
	_, err = m.request(ctx, TypeRoomKick, RoomTarget{RoomID: snap.Room.ID, PlayerID: playerID})
	return err
}

// AssignRole sets the room role of playerID.
func (m *Manager) AssignRole(ctx context.Context, playerID, role string) error {
	snap, err := m.manageable(playerID)
	if err != nil {
		return err
	}
	if role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidArgument)
	}
	_, err = m.request(ctx, TypeRoomAssignRole, AssignRoleRequest{RoomID: snap.Room.ID, PlayerID: playerID, Role: role})
	return err
}

// AssignTeam moves playerID to team.
func (m *Manager) AssignTeam(ctx context.Context, playerID string, team int) error {
	snap, err := m.manageable(playerID)
	if err != nil {
		return err
	}
	if team < 0 {
		return fmt.Errorf("%w: team must not be negative", ErrInvalidArgument)
	}
	_, err = m.request(ctx, TypeRoomAssignTeam, AssignTeamRequest{RoomID: snap.Room.ID, PlayerID: playerID, Team: team})
	return err
}

// DisbandRoom closes the current room for every member.
func (m *Manager) DisbandRoom(ctx context.Context) error {
	snap, err := m.inRoom()
	if err != nil {
		return err
	}
	if !snap.CanManage() {
		return ErrNotPermitted
	}
	if _, err := m.request(ctx, TypeRoomDisband, RoomTarget{RoomID: snap.Room.ID}); err != nil {
		return err
	}
	m.post(func() { m.applyRoom(nil) })
	return nil
}

// RefreshRoom fetches the current room from the server.
func (m *Manager) RefreshRoom(ctx context.Context) error {
	roomID := ""
	if snap := m.Snapshot(); snap.InRoom() {
		roomID = snap.Room.ID
	}
	return m.fetchRoom(ctx, roomID)
}

// ListRooms fetches the public room list.
func (m *Manager) ListRooms(ctx context.Context) error {
	ack, err := m.request(ctx, TypeRoomList, nil)
	if err != nil {
		return err
	}
	if len(ack.Data) == 0 {
		// The server answers with a room_list push instead.
		return nil
	}
	var list RoomList
	if err := json.Unmarshal(ack.Data, &list); err != nil {
		return fmt.Errorf("decode room list: %w", err)
	}
	m.post(func() { m.rooms = list.Rooms })
	return nil
}

// SendCommand issues a command to the members matched by msg.Targets in the
// current room.
func (m *Manager) SendCommand(ctx context.Context, msg command.Message) error {
	snap, err := m.inRoom()
	if err != nil {
		return err
	}
	if msg.RoomID == "" {
		msg.RoomID = snap.Room.ID
	}
	return m.sender.Send(ctx, msg)
}

func (m *Manager) fetchRoom(ctx context.Context, roomID string) error {
	ack, err := m.request(ctx, TypeRoomInfo, RoomTarget{RoomID: roomID})
	if err != nil {
		return err
	}
	if len(ack.Data) == 0 {
		return nil
	}
	var info RoomInfo
	if err := json.Unmarshal(ack.Data, &info); err != nil {
		return fmt.Errorf("decode room info: %w", err)
	}
	m.post(func() { m.applyRoom(&info) })
	return nil
}

// applyAckRoom applies a room carried by an ack, if any.
func (m *Manager) applyAckRoom(ack *websocket.Ack) {
	if ack == nil || len(ack.Data) == 0 {
		return
	}
	var info RoomInfo
	if err := json.Unmarshal(ack.Data, &info); err != nil || info.ID == "" {
		return
	}
	m.post(func() { m.applyRoom(&info) })
}

func (m *Manager) request(ctx context.Context, msgType string, payload interface{}) (*websocket.Ack, error) {
	if m.conn.State() != websocket.StateAuthenticated {
		return nil, ErrNotAuthenticated
	}
	ack, err := m.conn.SendWithAck(ctx, msgType, payload)
	if err != nil {
		return ack, fmt.Errorf("%s: %w", msgType, err)
	}
	return ack, nil
}

func (m *Manager) inRoom() (Snapshot, error) {
	if m.conn.State() != websocket.StateAuthenticated {
		return Snapshot{}, ErrNotAuthenticated
	}
	snap := m.Snapshot()
	if !snap.InRoom() {
		return Snapshot{}, ErrNotInRoom
	}
	return snap, nil
}

func (m *Manager) manageable(playerID string) (Snapshot, error) {
	snap, err := m.inRoom()
	if err != nil {
		return Snapshot{}, err
	}
	if playerID == "" {
		return Snapshot{}, fmt.Errorf("%w: player id is required", ErrInvalidArgument)
	}
	if !snap.CanManage() {
		return Snapshot{}, ErrNotPermitted
	}
	return snap, nil
}
