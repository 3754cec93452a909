package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var testUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serverConn is the server side of one test connection.
type serverConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func (s *serverConn) send(env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(env)
}

func (s *serverConn) push(msgType string, payload interface{}) error {
	env, err := newEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	return s.send(env)
}

func (s *serverConn) ack(msgID string, success bool, errMsg string, data interface{}) error {
	ack := Ack{MsgID: msgID, Success: success, Error: errMsg}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		ack.Data = raw
	}
	return s.push(TypeAck, ack)
}

func (s *serverConn) closeWith(code int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, text)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		return err
	}
	return s.conn.Close()
}

// drop closes the TCP connection without a close frame.
func (s *serverConn) drop() error {
	return s.conn.UnderlyingConn().Close()
}

// testServer is a scripted coordination server.
type testServer struct {
	srv      *httptest.Server
	accepted atomic.Int32
	received chan Envelope
	gate     chan struct{}
	respond  func(sc *serverConn, env Envelope)

	mu    sync.Mutex
	conns []*serverConn
}

// autoAck acks every request; auth acks carry an identity.
func autoAck(sc *serverConn, env Envelope) {
	switch env.Type {
	case TypeHeartbeat:
	case TypeAuth:
		sc.ack(env.MsgID, true, "", AuthResult{Success: true, PlayerID: "p-1", Role: RoleAdmin})
	default:
		sc.ack(env.MsgID, true, "", nil)
	}
}

func newTestServer(t *testing.T, respond func(sc *serverConn, env Envelope)) *testServer {
	t.Helper()
	return startTestServer(t, respond, nil)
}

// newGatedTestServer holds every upgrade until gate is closed.
func newGatedTestServer(t *testing.T, respond func(sc *serverConn, env Envelope), gate chan struct{}) *testServer {
	t.Helper()
	return startTestServer(t, respond, gate)
}

func startTestServer(t *testing.T, respond func(sc *serverConn, env Envelope), gate chan struct{}) *testServer {
	ts := &testServer{
		received: make(chan Envelope, 64),
		respond:  respond,
		gate:     gate,
	}
	ts.srv = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) handle(w http.ResponseWriter, r *http.Request) {
	if ts.gate != nil {
		<-ts.gate
	}
	conn, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ts.accepted.Add(1)
	sc := &serverConn{conn: conn}
	ts.mu.Lock()
	ts.conns = append(ts.conns, sc)
	ts.mu.Unlock()

	defer func() {
		sc.closed.Store(true)
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		select {
		case ts.received <- env:
		default:
		}
		if ts.respond != nil {
			ts.respond(sc, env)
		}
	}
}

func (ts *testServer) url() string {
	return "ws" + ts.srv.URL[len("http"):]
}

func (ts *testServer) last() *serverConn {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.conns) == 0 {
		return nil
	}
	return ts.conns[len(ts.conns)-1]
}

// expect waits for the next envelope of msgType received by the server.
func (ts *testServer) expect(t *testing.T, msgType string) Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-ts.received:
			if env.Type == msgType {
				return env
			}
		case <-deadline:
			t.Fatalf("server did not receive %q", msgType)
			return Envelope{}
		}
	}
}

// stateRecorder collects state changes in order.
type stateRecorder struct {
	mu      sync.Mutex
	changes []StateChange
}

func (r *stateRecorder) observe(ch StateChange) {
	r.mu.Lock()
	r.changes = append(r.changes, ch)
	r.mu.Unlock()
}

func (r *stateRecorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.changes))
	for i, ch := range r.changes {
		out[i] = ch.To
	}
	return out
}

func (r *stateRecorder) lastChange() (StateChange, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		return StateChange{}, false
	}
	return r.changes[len(r.changes)-1], true
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c := NewClient(WithConfig(cfg), WithLogger(zerolog.Nop()))
	t.Cleanup(func() { c.Close() })
	return c
}

func fastConfig() Config {
	return Config{
		ConnectTimeout:    2 * time.Second,
		AuthTimeout:       time.Second,
		RequestTimeout:    time.Second,
		CloseTimeout:      200 * time.Millisecond,
		HeartbeatInterval: time.Hour,
		ShutdownWait:      500 * time.Millisecond,
	}
}
