package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vntrieu/roomlink/internal/metrics"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB

	tracerName = "roomlink/websocket"
)

var (
	ErrNotConnected      = errors.New("websocket: not connected")
	ErrConnectInProgress = errors.New("websocket: connect already in progress")
	ErrConnectFailed     = errors.New("websocket: connect failed")
	ErrConnectAborted    = errors.New("websocket: connect aborted by teardown")
	ErrInvalidState      = errors.New("websocket: invalid state for operation")
	ErrAckTimeout        = errors.New("websocket: ack timeout")
	ErrRequestCancelled  = errors.New("websocket: request cancelled")
	ErrRejected          = errors.New("websocket: rejected by server")
)

// Config holds the client's timing parameters.
type Config struct {
	ConnectTimeout    time.Duration
	AuthTimeout       time.Duration
	RequestTimeout    time.Duration
	CloseTimeout      time.Duration
	HeartbeatInterval time.Duration
	// ShutdownWait bounds how long teardown waits for the loops to stop.
	ShutdownWait   time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    10 * time.Second,
		AuthTimeout:       10 * time.Second,
		RequestTimeout:    10 * time.Second,
		CloseTimeout:      3 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		ShutdownWait:      2 * time.Second,
		WriteWait:         writeWait,
		MaxMessageSize:    maxMessageSize,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = d.AuthTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = d.CloseTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.ShutdownWait <= 0 {
		c.ShutdownWait = d.ShutdownWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	return c
}

// link is one live socket and the loops that serve it.
type link struct {
	gen      uint64
	conn     *websocket.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	readDone chan struct{}
	beatDone chan struct{}
	writeMu  sync.Mutex
}

// Client owns at most one connection to the coordination server and mediates
// all I/O on it through the connection state machine.
type Client struct {
	cfg     Config
	dialer  *websocket.Dialer
	logger  zerolog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	state atomic.Int32

	// teardownMu keeps connect attempts out while a teardown is running.
	teardownMu sync.Mutex

	// mu guards link and gen; every state transition happens under it.
	mu   sync.Mutex
	link *link
	gen  uint64

	listenersMu sync.RWMutex
	listeners   []StateListener

	statusMu  sync.RWMutex
	status    string
	lastError string

	manualDisconnect atomic.Bool
	closeCode        atomic.Int32

	identityMu sync.RWMutex
	playerID   string
	role       Role

	pending *Correlator
	inbound *Queue
}

// Option configures a Client.
type Option func(*Client)

// WithConfig overrides the timing parameters. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(c *Client) {
		c.cfg = cfg.withDefaults()
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "websocket").Logger()
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer replaces the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithDialer replaces the gorilla dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// NewClient creates a disconnected Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		cfg:     DefaultConfig(),
		logger:  zerolog.Nop(),
		tracer:  otel.Tracer(tracerName),
		pending: NewCorrelator(),
		inbound: NewQueue(),
		status:  StateDisconnected.String(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: c.cfg.ConnectTimeout,
		}
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Status returns the human-readable status line.
func (c *Client) Status() string {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// LastError returns the reason of the last transition into Error.
// It is cleared by the next successful connect.
func (c *Client) LastError() string {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.lastError
}

// Identity returns the player id and role assigned at authentication.
func (c *Client) Identity() (string, Role) {
	c.identityMu.RLock()
	defer c.identityMu.RUnlock()
	return c.playerID, c.role
}

// Inbound returns the queue of messages waiting for the tick thread.
func (c *Client) Inbound() *Queue {
	return c.inbound
}

// PendingRequests returns the number of requests waiting for an ack.
func (c *Client) PendingRequests() int {
	return c.pending.Len()
}

// OnStateChange registers a state listener.
func (c *Client) OnStateChange(l StateListener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenersMu.Unlock()
}

// Connect dials serverURL and starts the receive and heartbeat loops.
// It returns nil when already connected and ErrConnectInProgress while
// another connect or authentication is running.
func (c *Client) Connect(ctx context.Context, serverURL string) error {
	c.teardownMu.Lock()
	c.mu.Lock()
	switch c.State() {
	case StateConnected, StateAuthenticated:
		c.mu.Unlock()
		c.teardownMu.Unlock()
		return nil
	case StateConnecting, StateAuthenticating:
		c.mu.Unlock()
		c.teardownMu.Unlock()
		return ErrConnectInProgress
	}
	old := c.link
	c.link = nil
	c.gen++
	gen := c.gen
	c.manualDisconnect.Store(false)
	c.closeCode.Store(0)
	c.transitionLocked(StateConnecting, "connecting to "+serverURL)
	c.mu.Unlock()
	c.teardownMu.Unlock()

	// Leftovers from an Error state.
	if old != nil {
		c.release(old)
	}
	c.pending.CancelAll(ErrRequestCancelled)
	c.clearIdentity()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dialCtx, serverURL, nil)
	if err != nil {
		reason := fmt.Sprintf("connect failed: %v", err)
		if resp != nil {
			reason = fmt.Sprintf("%s (status: %s)", reason, resp.Status)
		}
		c.fail(gen, reason)
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	conn.SetReadLimit(c.cfg.MaxMessageSize)

	linkCtx, linkCancel := context.WithCancel(context.Background())
	l := &link{
		gen:      gen,
		conn:     conn,
		ctx:      linkCtx,
		cancel:   linkCancel,
		readDone: make(chan struct{}),
		beatDone: make(chan struct{}),
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		linkCancel()
		conn.Close()
		return ErrConnectAborted
	}
	c.link = l
	go c.readPump(l)
	go c.heartbeat(l)
	c.transitionLocked(StateConnected, "connected to "+serverURL)
	c.mu.Unlock()

	c.logger.Info().Str("url", serverURL).Msg("connected")
	return nil
}

// Disconnect closes the connection on purpose. The reconnection policy
// ignores the resulting transition. It is safe to call repeatedly.
func (c *Client) Disconnect(ctx context.Context) error {
	c.manualDisconnect.Store(true)

	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l != nil {
		c.closeGracefully(ctx, l)
	}
	c.cleanup(nil, "disconnected")
	return nil
}

// Close is Disconnect without a caller context.
func (c *Client) Close() error {
	return c.Disconnect(context.Background())
}

// Authenticate sends the activation code and player info and waits for the
// server's ack. Only valid while Connected.
func (c *Client) Authenticate(ctx context.Context, code string, info PlayerInfo) error {
	c.mu.Lock()
	if c.State() != StateConnected {
		state := c.State()
		c.mu.Unlock()
		return fmt.Errorf("%w: authenticate from %s", ErrInvalidState, state)
	}
	gen := c.gen
	c.transitionLocked(StateAuthenticating, "authenticating as "+info.Name)
	c.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "roomlink.authenticate",
		trace.WithAttributes(attribute.String("roomlink.player", info.Name)))
	defer span.End()

	ack, err := c.request(ctx, TypeAuth, AuthRequest{Code: code, Player: info}, c.cfg.AuthTimeout)
	if err != nil {
		reason := fmt.Sprintf("authentication failed: %v", err)
		if errors.Is(err, ErrRejected) && ack != nil {
			reason = "authentication rejected: " + ack.Error
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		c.failAuth(gen, reason)
		return err
	}

	if len(ack.Data) > 0 {
		var res AuthResult
		if json.Unmarshal(ack.Data, &res) == nil && res.PlayerID != "" {
			c.setIdentity(res.PlayerID, res.Role)
		}
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrConnectAborted
	}
	c.transitionLocked(StateAuthenticated, "authenticated")
	c.mu.Unlock()
	span.SetStatus(codes.Ok, "")
	return nil
}

// Send transmits a message without waiting for an ack.
func (c *Client) Send(ctx context.Context, msgType string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := newEnvelope(msgType, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	l := c.openLink()
	if l == nil {
		return ErrNotConnected
	}
	if err := c.write(l, env); err != nil {
		c.writeFailed(l, err)
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	return nil
}

// SendWithAck transmits a message and waits for its ack using the default
// request timeout.
func (c *Client) SendWithAck(ctx context.Context, msgType string, payload interface{}) (*Ack, error) {
	return c.SendWithAckTimeout(ctx, msgType, payload, c.cfg.RequestTimeout)
}

// SendWithAckTimeout transmits a message and waits up to timeout for its ack.
// A negative ack is returned together with an error wrapping ErrRejected.
func (c *Client) SendWithAckTimeout(ctx context.Context, msgType string, payload interface{}, timeout time.Duration) (*Ack, error) {
	ctx, span := c.tracer.Start(ctx, "roomlink.request",
		trace.WithAttributes(attribute.String("roomlink.type", msgType)))
	defer span.End()

	ack, err := c.request(ctx, msgType, payload, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ack, err
	}
	span.SetStatus(codes.Ok, "")
	return ack, nil
}

func (c *Client) request(ctx context.Context, msgType string, payload interface{}, timeout time.Duration) (*Ack, error) {
	env, err := newEnvelope(msgType, payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("roomlink.msg_id", env.MsgID))

	l := c.openLink()
	if l == nil {
		c.metrics.Request("error")
		return nil, ErrNotConnected
	}

	p := c.pending.Register(env.MsgID)
	c.metrics.SetPending(c.pending.Len())
	if err := c.write(l, env); err != nil {
		p.Abandon()
		c.metrics.SetPending(c.pending.Len())
		c.metrics.Request("error")
		c.writeFailed(l, err)
		return nil, fmt.Errorf("send %s: %w", msgType, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ack, err := p.Wait(waitCtx)
	c.metrics.SetPending(c.pending.Len())

	switch {
	case errors.Is(err, ErrAckTimeout):
		c.metrics.Request("timeout")
		c.logger.Debug().Str("type", msgType).Str("msg_id", env.MsgID).Msg("ack timeout")
		return nil, err
	case err != nil:
		c.metrics.Request("cancelled")
		return nil, err
	case !ack.Success:
		c.metrics.Request("rejected")
		return ack, fmt.Errorf("%w: %s", ErrRejected, ack.Error)
	}
	c.metrics.Request("ok")
	return ack, nil
}

func (c *Client) openLink() *link {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil || !c.State().Open() {
		return nil
	}
	return c.link
}

func (c *Client) write(l *link, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.ctx.Err() != nil {
		return ErrNotConnected
	}
	l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

// writeFailed moves the link to Error and closes the socket so the receive
// loop runs the teardown.
func (c *Client) writeFailed(l *link, err error) {
	if l.ctx.Err() != nil {
		return
	}
	c.fail(l.gen, fmt.Sprintf("send failed: %v", err))
	l.conn.Close()
}

// readPump reads frames until the socket fails or the link is cancelled.
func (c *Client) readPump(l *link) {
	reason := "connection closed"
	defer func() {
		close(l.readDone)
		c.cleanup(l, reason)
	}()

	for {
		msgType, data, err := l.conn.ReadMessage()
		if err != nil {
			reason = c.readFailure(l, err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.handleFrame(data)
	}
}

func (c *Client) readFailure(l *link, err error) string {
	if l.ctx.Err() != nil || c.manualDisconnect.Load() {
		return "disconnected"
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if text, ok := closeReason(closeErr.Code); ok {
			c.closeCode.Store(int32(closeErr.Code))
			c.manualDisconnect.Store(true)
			c.logger.Warn().Int("code", closeErr.Code).Msg(text)
			return text
		}
		if closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway {
			return fmt.Sprintf("closed by server (%d)", closeErr.Code)
		}
	}

	reason := fmt.Sprintf("connection lost: %v", err)
	c.logger.Warn().Err(err).Msg("receive loop failed")
	c.fail(l.gen, reason)
	return reason
}

// heartbeat sends keep-alives while the link is open. Failures are only logged;
// the receive loop decides liveness.
func (c *Client) heartbeat(l *link) {
	defer close(l.beatDone)

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			env, err := newEnvelope(TypeHeartbeat, HeartbeatPayload{Timestamp: time.Now().UnixMilli()})
			if err != nil {
				continue
			}
			if err := c.write(l, env); err != nil {
				c.metrics.HeartbeatFailure()
				c.logger.Debug().Err(err).Msg("heartbeat failed")
			}
		}
	}
}

func (c *Client) closeGracefully(ctx context.Context, l *link) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
	if err := l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.CloseTimeout)); err != nil {
		c.logger.Debug().Err(err).Msg("close handshake failed")
		return
	}

	timer := time.NewTimer(c.cfg.CloseTimeout)
	defer timer.Stop()
	select {
	case <-l.readDone:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// cleanup tears the connection down. A non-nil target limits it to that link;
// calls for a link that has already been replaced do nothing.
func (c *Client) cleanup(target *link, reason string) {
	c.teardownMu.Lock()
	defer c.teardownMu.Unlock()

	c.mu.Lock()
	if target != nil && c.link != target {
		c.mu.Unlock()
		return
	}
	l := c.link
	c.link = nil
	c.gen++
	c.mu.Unlock()

	if l != nil {
		c.release(l)
	}
	if n := c.pending.CancelAll(ErrRequestCancelled); n > 0 {
		c.logger.Debug().Int("count", n).Msg("cancelled pending requests")
	}
	c.metrics.SetPending(0)
	c.clearIdentity()

	c.mu.Lock()
	c.transitionLocked(StateDisconnected, reason)
	c.mu.Unlock()
}

// release stops the loops of l and closes its socket.
func (c *Client) release(l *link) {
	l.cancel()
	// Wake the reader; gorilla reads do not observe contexts.
	l.conn.SetReadDeadline(time.Now())

	deadline := time.NewTimer(c.cfg.ShutdownWait)
	defer deadline.Stop()
	for _, done := range []chan struct{}{l.readDone, l.beatDone} {
		select {
		case <-done:
		case <-deadline.C:
			c.logger.Warn().Msg("connection loops did not stop in time")
			l.conn.Close()
			return
		}
	}
	l.conn.Close()
}

func (c *Client) fail(gen uint64, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.transitionLocked(StateError, reason)
}

// failAuth is fail for authentication errors, which are never retried. The
// state stays Error with the reason kept in lastError, and the socket is
// closed so no loops outlive the failed attempt.
func (c *Client) failAuth(gen uint64, reason string) {
	c.teardownMu.Lock()
	defer c.teardownMu.Unlock()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.manualDisconnect.Store(true)
	l := c.link
	c.link = nil
	c.gen++
	c.transitionLocked(StateError, reason)
	c.mu.Unlock()

	if l != nil {
		c.closeGracefully(context.Background(), l)
		c.release(l)
	}
	c.pending.CancelAll(ErrRequestCancelled)
	c.metrics.SetPending(0)
	c.clearIdentity()
}

// transitionLocked moves to next and notifies listeners. Caller holds c.mu.
func (c *Client) transitionLocked(next State, reason string) {
	prev := State(c.state.Swap(int32(next)))
	if prev == next {
		return
	}
	change := StateChange{
		From:      prev,
		To:        next,
		Reason:    reason,
		Voluntary: c.manualDisconnect.Load(),
		CloseCode: int(c.closeCode.Load()),
	}

	c.statusMu.Lock()
	c.status = next.String()
	if reason != "" {
		c.status = reason
	}
	switch next {
	case StateError:
		c.lastError = reason
	case StateConnected:
		c.lastError = ""
	}
	c.statusMu.Unlock()

	c.metrics.StateTransition(next.String())
	c.logger.Debug().Str("from", prev.String()).Str("to", next.String()).Str("reason", reason).Msg("state changed")

	c.listenersMu.RLock()
	listeners := make([]StateListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.RUnlock()
	for _, l := range listeners {
		l(change)
	}
}

func (c *Client) setIdentity(playerID string, role Role) {
	if role == "" {
		role = RoleUser
	}
	c.identityMu.Lock()
	c.playerID = playerID
	c.role = role
	c.identityMu.Unlock()
}

func (c *Client) clearIdentity() {
	c.identityMu.Lock()
	c.playerID = ""
	c.role = ""
	c.identityMu.Unlock()
}
