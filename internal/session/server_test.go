package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/vntrieu/roomlink/internal/websocket"
)

var upgrader = gorilla.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeServer is a minimal coordination server holding one room.
type fakeServer struct {
	srv      *httptest.Server
	accepted atomic.Int32
	infoReqs atomic.Int32
	received chan websocket.Envelope

	mu    sync.Mutex
	room  RoomInfo
	rooms []RoomSummary
	role  websocket.Role
	conns []*fakeConn
}

type fakeConn struct {
	mu   sync.Mutex
	conn *gorilla.Conn
}

func (c *fakeConn) send(msgType, msgID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(websocket.Envelope{MsgID: msgID, Type: msgType, Payload: data})
}

func (c *fakeConn) ack(msgID string, data interface{}) error {
	ack := websocket.Ack{MsgID: msgID, Success: true}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		ack.Data = raw
	}
	return c.send(websocket.TypeAck, msgID, ack)
}

func (c *fakeConn) closeWith(code int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := gorilla.FormatCloseMessage(code, text)
	return c.conn.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(time.Second))
}

func newFakeServer(t *testing.T, room RoomInfo) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		received: make(chan websocket.Envelope, 64),
		room:     room,
		rooms:    []RoomSummary{{ID: room.ID, Name: room.Name, Size: room.Size, PlayerCount: len(room.Players)}},
		role:     websocket.RoleUser,
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + fs.srv.URL[len("http"):]
}

func (fs *fakeServer) setRoom(room RoomInfo) {
	fs.mu.Lock()
	fs.room = room
	fs.mu.Unlock()
}

func (fs *fakeServer) last() *fakeConn {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.conns) == 0 {
		return nil
	}
	return fs.conns[len(fs.conns)-1]
}

// push sends an unsolicited message on the newest connection.
func (fs *fakeServer) push(t *testing.T, msgType string, payload interface{}) {
	t.Helper()
	c := fs.last()
	if c == nil {
		t.Fatal("no connection to push to")
	}
	if err := c.send(msgType, websocket.NewMsgID(), payload); err != nil {
		t.Fatalf("push %s: %v", msgType, err)
	}
}

func (fs *fakeServer) expect(t *testing.T, msgType string) websocket.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-fs.received:
			if env.Type == msgType {
				return env
			}
		case <-deadline:
			t.Fatalf("server did not receive %q", msgType)
			return websocket.Envelope{}
		}
	}
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fs.accepted.Add(1)
	fc := &fakeConn{conn: conn}
	fs.mu.Lock()
	fs.conns = append(fs.conns, fc)
	fs.mu.Unlock()

	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env websocket.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		select {
		case fs.received <- env:
		default:
		}
		fs.answer(fc, env)
	}
}

func (fs *fakeServer) answer(fc *fakeConn, env websocket.Envelope) {
	fs.mu.Lock()
	room := fs.room
	rooms := fs.rooms
	role := fs.role
	fs.mu.Unlock()

	switch env.Type {
	case websocket.TypeHeartbeat, TypePlayerUpdate:
	case websocket.TypeAuth:
		fc.ack(env.MsgID, websocket.AuthResult{Success: true, PlayerID: "p-1", Role: role})
	case TypeRoomInfo:
		fs.infoReqs.Add(1)
		fc.ack(env.MsgID, room)
	case TypeRoomList:
		fc.ack(env.MsgID, RoomList{Rooms: rooms})
	case TypeRoomCreate:
		var req CreateRoomRequest
		env.Decode(&req)
		created := RoomInfo{ID: "r-new", Name: req.Name, OwnerID: "p-1", Size: req.Size,
			Players: []RoomPlayer{{PlayerID: "p-1", Name: "Alice", Role: RoomRoleOwner}}}
		fs.setRoom(created)
		fc.ack(env.MsgID, created)
	case TypeRoomJoin:
		fc.ack(env.MsgID, room)
	default:
		fc.ack(env.MsgID, nil)
	}
}

func roomWith(owner string, players ...RoomPlayer) RoomInfo {
	return RoomInfo{ID: "r-1", Name: "Savage prog", OwnerID: owner, Size: 8, Players: players}
}

var (
	alice = RoomPlayer{PlayerID: "p-1", Name: "Alice", WorldID: 73, Team: 1, Role: RoomRoleOwner, Job: "WHM"}
	bob   = RoomPlayer{PlayerID: "p-2", Name: "Bob", WorldID: 73, Team: 1, Role: RoomRoleMember, Job: "PLD", Profile: "tank"}
	carol = RoomPlayer{PlayerID: "p-3", Name: "Carol", WorldID: 40, Team: 2, Role: RoomRoleMember}
)
