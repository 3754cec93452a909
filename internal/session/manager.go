package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vntrieu/roomlink/internal/command"
	"github.com/vntrieu/roomlink/internal/metrics"
	"github.com/vntrieu/roomlink/internal/ratelimit"
	"github.com/vntrieu/roomlink/internal/websocket"
)

var (
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrNotInRoom        = errors.New("session: not in a room")
	ErrNotPermitted     = errors.New("session: only the room owner or an admin can do this")
	ErrInvalidArgument  = errors.New("session: invalid argument")
)

// Options configures a Manager.
type Options struct {
	ServerURL         string
	AutoConnect       bool
	AutoReconnect     bool
	ReconnectInterval time.Duration
	PollInterval      time.Duration
	// CommandLimiter throttles outgoing commands per target expression. Nil disables it.
	CommandLimiter ratelimit.Limiter
}

// Manager drives the connection for the host: it connects and authenticates,
// keeps a cache of the current room and turns inbound messages into state
// changes and command dispatches.
//
// Tick must be called from a single goroutine. Everything else is safe for
// concurrent use.
type Manager struct {
	opts     Options
	conn     *websocket.Client
	identity IdentityProvider
	commands *command.Dispatcher
	sender   *command.Sender
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	autoReconnect atomic.Bool
	// userOffline is set by Disconnect and cleared by Connect.
	userOffline atomic.Bool
	startOnce   sync.Once

	lifeMu      sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	reconnector *websocket.Reconnector

	tasksMu sync.Mutex
	tasks   []func()

	snapshot atomic.Pointer[Snapshot]

	// Owned by the tick goroutine.
	room          *RoomInfo
	rooms         []RoomSummary
	notice        string
	resyncPending bool
	lastPoll      time.Time
	lastJob       string
	lastProfile   string
}

// NewManager creates a Manager around conn. Register command handlers on
// Commands() before the first Tick.
func NewManager(conn *websocket.Client, identity IdentityProvider, opts Options, logger zerolog.Logger, m *metrics.Metrics) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	mgr := &Manager{
		opts:     opts,
		conn:     conn,
		identity: identity,
		commands: command.NewDispatcher(logger, m),
		sender:   command.NewSender(conn, opts.CommandLimiter, logger),
		logger:   logger.With().Str("component", "session").Logger(),
		metrics:  m,
	}
	mgr.autoReconnect.Store(opts.AutoReconnect)
	mgr.publish(time.Now())
	return mgr
}

// Commands returns the inbound command dispatcher.
func (m *Manager) Commands() *command.Dispatcher {
	return m.commands
}

// Start creates the session lifetime and wires the reconnection policy.
// Cancelling ctx or calling Close ends it. Only the first call has an effect.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		life, cancel := context.WithCancel(ctx)
		reconnector := websocket.NewReconnector(life, websocket.ReconnectConfig{
			Enabled:  m.reconnectEnabled,
			Interval: m.opts.ReconnectInterval,
			Attempt:  m.reconnect,
		}, m.logger, m.metrics)

		m.lifeMu.Lock()
		m.ctx, m.cancel, m.reconnector = life, cancel, reconnector
		m.lifeMu.Unlock()

		m.conn.OnStateChange(reconnector.Observe)
		m.conn.OnStateChange(m.observe)

		if m.opts.AutoConnect {
			go func() {
				if err := m.Connect(life); err != nil {
					m.logger.Warn().Err(err).Msg("auto-connect failed")
				}
			}()
		}
	})
}

// SetAutoReconnect toggles the reconnection policy at runtime. Disabling it
// also drops an attempt that is already scheduled.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.autoReconnect.Store(enabled)
	if !enabled {
		m.cancelReconnect()
	}
}

// Connect connects, authenticates with the identity provider's code and
// player info, then fetches the current room and the room list.
func (m *Manager) Connect(ctx context.Context) error {
	m.userOffline.Store(false)
	return m.connect(ctx)
}

func (m *Manager) reconnectEnabled() bool {
	return m.autoReconnect.Load() && !m.userOffline.Load()
}

// reconnect is the reconnection policy's attempt. It never overrides a
// Disconnect the host made while the attempt was waiting.
func (m *Manager) reconnect(ctx context.Context) error {
	if !m.reconnectEnabled() {
		return nil
	}
	return m.connect(ctx)
}

func (m *Manager) cancelReconnect() {
	m.lifeMu.RLock()
	r := m.reconnector
	m.lifeMu.RUnlock()
	if r != nil {
		r.Cancel()
	}
}

func (m *Manager) connect(ctx context.Context) error {
	if m.conn.State() == websocket.StateAuthenticated {
		return nil
	}
	if err := m.conn.Connect(ctx, m.opts.ServerURL); err != nil {
		return err
	}
	info := m.identity.PlayerInfo()
	if err := m.conn.Authenticate(ctx, m.identity.ActivationCode(), info); err != nil {
		return err
	}
	m.post(func() {
		m.lastJob, m.lastProfile = info.Job, info.Profile
	})
	m.logger.Info().Str("player", info.Name).Msg("session authenticated")

	if err := m.RefreshRoom(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("initial room fetch failed")
	}
	if err := m.ListRooms(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("initial room list fetch failed")
	}
	return nil
}

// Disconnect closes the connection on purpose; it is not retried, and a
// reconnect scheduled by an earlier drop is dropped.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.userOffline.Store(true)
	m.cancelReconnect()
	return m.conn.Disconnect(ctx)
}

// Close ends the session lifetime and the connection.
func (m *Manager) Close(ctx context.Context) error {
	m.lifeMu.RLock()
	cancel := m.cancel
	m.lifeMu.RUnlock()
	if cancel != nil {
		cancel()
	}
	return m.conn.Disconnect(ctx)
}

// Snapshot returns a copy of the view published by the last Tick.
func (m *Manager) Snapshot() Snapshot {
	snap := *m.snapshot.Load()
	snap.Room = snap.Room.clone()
	snap.Rooms = append([]RoomSummary(nil), snap.Rooms...)
	return snap
}

// Tick runs one host frame: posted tasks, the inbound queue, deferred
// commands, the local-state poll and finally a new snapshot.
func (m *Manager) Tick(now time.Time) {
	m.runTasks()
	m.conn.Inbound().Drain(m.logger, m.handle)
	if m.resyncPending {
		m.resyncPending = false
		m.resync()
	}
	m.commands.Pump()
	if now.Sub(m.lastPoll) >= m.opts.PollInterval {
		m.lastPoll = now
		m.poll()
	}
	m.publish(now)
}

func (m *Manager) lifetime() context.Context {
	m.lifeMu.RLock()
	defer m.lifeMu.RUnlock()
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

// post queues fn for the next Tick.
func (m *Manager) post(fn func()) {
	m.tasksMu.Lock()
	m.tasks = append(m.tasks, fn)
	m.tasksMu.Unlock()
}

func (m *Manager) runTasks() {
	m.tasksMu.Lock()
	tasks := m.tasks
	m.tasks = nil
	m.tasksMu.Unlock()
	for _, fn := range tasks {
		fn()
	}
}

// observe is a state listener; it must not block.
func (m *Manager) observe(change websocket.StateChange) {
	if change.To != websocket.StateDisconnected {
		return
	}
	m.post(func() {
		m.room = nil
		m.rooms = nil
		if change.CloseCode != 0 {
			m.notice = change.Reason
		}
	})
}

// handle applies one inbound message. It runs on the tick goroutine.
func (m *Manager) handle(env websocket.Envelope) error {
	switch env.Type {
	case websocket.TypeAuthResult:
		var res websocket.AuthResult
		if err := env.Decode(&res); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if !res.Success {
			m.notice = "authentication failed: " + res.Message
			m.logger.Warn().Str("message", res.Message).Msg("authentication failed")
		}

	case TypeRoomInfo:
		var info RoomInfo
		if err := env.Decode(&info); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		m.applyRoom(&info)

	case TypeRoomList:
		var list RoomList
		if err := env.Decode(&list); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		m.rooms = list.Rooms

	case TypeRoomPlayerKicked:
		var ev PlayerEvent
		if err := env.Decode(&ev); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if self, _ := m.conn.Identity(); self != "" && ev.PlayerID == self {
			m.room = nil
			m.notice = "kicked from room"
			m.logger.Info().Str("room_id", ev.RoomID).Msg("kicked from room")
			return nil
		}
		m.resyncPending = true

	case TypeRoomPlayerJoined, TypeRoomPlayerLeft, TypeRoomRoleChanged,
		TypeRoomTeamChanged, TypeRoomOwnerChanged:
		m.resyncPending = true

	case TypeRoomDisbanded:
		m.room = nil
		m.resyncPending = false
		m.notice = "room disbanded"
		m.logger.Info().Msg("room disbanded")

	case TypePlayerUpdate:
		var up PlayerUpdate
		if err := env.Decode(&up); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		m.patchPlayer(up)

	case command.MessageType:
		msg, err := command.Decode(env.Payload)
		if err != nil {
			return err
		}
		if m.room != nil && msg.RoomID != "" && msg.RoomID != m.room.ID {
			m.logger.Debug().Str("room_id", msg.RoomID).Msg("command for another room ignored")
			return nil
		}
		m.commands.Dispatch(msg)

	case websocket.TypeError:
		var e websocket.ErrorPayload
		if err := env.Decode(&e); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		m.notice = e.Message
		m.logger.Warn().Str("code", e.Code).Str("message", e.Message).Msg("server error")

	case TypeAdminNotice:
		var n Notice
		if err := env.Decode(&n); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		m.notice = n.Message
		m.logger.Info().Str("message", n.Message).Msg("admin notice")

	default:
		m.logger.Debug().Str("type", env.Type).Msg("unhandled message type")
	}
	return nil
}

// applyRoom replaces the cached room. An info without an id means no room.
func (m *Manager) applyRoom(info *RoomInfo) {
	if info == nil || info.ID == "" {
		m.room = nil
		return
	}
	m.room = info
}

func (m *Manager) patchPlayer(up PlayerUpdate) {
	if m.room == nil {
		return
	}
	for i := range m.room.Players {
		p := &m.room.Players[i]
		if p.PlayerID != up.PlayerID {
			continue
		}
		if up.Job != nil {
			p.Job = *up.Job
		}
		if up.Profile != nil {
			p.Profile = *up.Profile
		}
		if len(up.Metadata) > 0 {
			md := make(map[string]string, len(p.Metadata)+len(up.Metadata))
			for k, v := range p.Metadata {
				md[k] = v
			}
			for k, v := range up.Metadata {
				md[k] = v
			}
			p.Metadata = md
		}
		return
	}
}

// resync refetches the room after structural events. The request runs off the
// tick goroutine; the answer is applied on a later Tick.
func (m *Manager) resync() {
	if m.conn.State() != websocket.StateAuthenticated {
		return
	}
	m.metrics.RoomResync()
	roomID := ""
	if m.room != nil {
		roomID = m.room.ID
	}
	ctx := m.lifetime()
	go func() {
		if err := m.fetchRoom(ctx, roomID); err != nil {
			m.logger.Debug().Err(err).Msg("room resync failed")
		}
	}()
}

// poll pushes player_update when the local job or profile changed.
func (m *Manager) poll() {
	if m.conn.State() != websocket.StateAuthenticated {
		return
	}
	info := m.identity.PlayerInfo()
	if info.Job == m.lastJob && info.Profile == m.lastProfile {
		return
	}
	m.lastJob, m.lastProfile = info.Job, info.Profile

	self, _ := m.conn.Identity()
	job, profile := info.Job, info.Profile
	update := PlayerUpdate{PlayerID: self, Job: &job, Profile: &profile}
	ctx := m.lifetime()
	go func() {
		if err := m.conn.Send(ctx, TypePlayerUpdate, update); err != nil {
			m.logger.Debug().Err(err).Msg("player update failed")
		}
	}()
}

func (m *Manager) publish(now time.Time) {
	state := m.conn.State()
	playerID, role := m.conn.Identity()
	snap := &Snapshot{
		State:           state,
		StateName:       state.String(),
		Status:          m.conn.Status(),
		LastError:       m.conn.LastError(),
		Notice:          m.notice,
		PlayerID:        playerID,
		Role:            role,
		Room:            m.room.clone(),
		Rooms:           make([]RoomSummary, len(m.rooms)),
		PendingRequests: m.conn.PendingRequests(),
		UpdatedAt:       now,
	}
	copy(snap.Rooms, m.rooms)
	m.snapshot.Store(snap)
}
