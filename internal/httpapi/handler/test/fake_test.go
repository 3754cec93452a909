package handler_test

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/vntrieu/roomlink/internal/command"
	"github.com/vntrieu/roomlink/internal/session"
)

// fakeController records calls and returns err from every operation.
type fakeController struct {
	mu    sync.Mutex
	snap  session.Snapshot
	err   error
	calls []string

	autoReconnect *bool
	created       session.CreateRoomRequest
	joined        [2]string
	target        string
	role          string
	team          int
	sent          command.Message
}

func (f *fakeController) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeController) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) Connect(ctx context.Context) error    { return f.record("connect") }
func (f *fakeController) Disconnect(ctx context.Context) error { return f.record("disconnect") }

func (f *fakeController) SetAutoReconnect(enabled bool) {
	f.record("reconnect")
	f.autoReconnect = &enabled
}

func (f *fakeController) RefreshRoom(ctx context.Context) error { return f.record("refresh") }
func (f *fakeController) ListRooms(ctx context.Context) error   { return f.record("list") }

func (f *fakeController) CreateRoom(ctx context.Context, req session.CreateRoomRequest) error {
	f.created = req
	return f.record("create")
}

func (f *fakeController) JoinRoom(ctx context.Context, roomID, password string) error {
	f.joined = [2]string{roomID, password}
	return f.record("join")
}

func (f *fakeController) LeaveRoom(ctx context.Context) error   { return f.record("leave") }
func (f *fakeController) DisbandRoom(ctx context.Context) error { return f.record("disband") }

func (f *fakeController) KickPlayer(ctx context.Context, playerID string) error {
	f.target = playerID
	return f.record("kick")
}

func (f *fakeController) AssignRole(ctx context.Context, playerID, role string) error {
	f.target, f.role = playerID, role
	return f.record("role")
}

func (f *fakeController) AssignTeam(ctx context.Context, playerID string, team int) error {
	f.target, f.team = playerID, team
	return f.record("team")
}

func (f *fakeController) SendCommand(ctx context.Context, msg command.Message) error {
	f.sent = msg
	return f.record("command")
}

// withURLParams attaches chi route params to r.
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// fakePlayer records local player updates.
type fakePlayer struct {
	job, profile string
}

func (p *fakePlayer) SetJob(job string) {
	if job != "" {
		p.job = job
	}
}

func (p *fakePlayer) SetProfile(profile string) {
	if profile != "" {
		p.profile = profile
	}
}
