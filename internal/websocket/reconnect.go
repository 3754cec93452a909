package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vntrieu/roomlink/internal/metrics"
)

// ReconnectConfig configures a Reconnector.
type ReconnectConfig struct {
	// Enabled is consulted on every disconnect and again when the wait ends,
	// so the setting can change at runtime.
	Enabled func() bool
	// Interval is the delay before an attempt.
	Interval time.Duration
	// Attempt runs the full connect and authenticate sequence.
	Attempt func(ctx context.Context) error
}

// Reconnector schedules a new connection after an involuntary disconnect.
// At most one attempt is scheduled at a time.
type Reconnector struct {
	ctx       context.Context
	cfg       ReconnectConfig
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	scheduled atomic.Bool

	// mu guards cancel and writes to scheduled.
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewReconnector creates a Reconnector whose waits end when ctx is cancelled.
func NewReconnector(ctx context.Context, cfg ReconnectConfig, logger zerolog.Logger, m *metrics.Metrics) *Reconnector {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Reconnector{
		ctx:     ctx,
		cfg:     cfg,
		logger:  logger.With().Str("component", "reconnect").Logger(),
		metrics: m,
	}
}

// Observe is a StateListener. Register it with Client.OnStateChange.
func (r *Reconnector) Observe(change StateChange) {
	if !retryable(change) {
		return
	}
	if change.Voluntary {
		r.logger.Debug().Str("reason", change.Reason).Int("close_code", change.CloseCode).Msg("voluntary disconnect, not reconnecting")
		return
	}
	if r.cfg.Enabled != nil && !r.cfg.Enabled() {
		return
	}
	if r.ctx.Err() != nil {
		return
	}
	r.mu.Lock()
	if r.scheduled.Load() {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(r.ctx)
	r.cancel = cancel
	r.scheduled.Store(true)
	r.mu.Unlock()

	r.logger.Info().Dur("interval", r.cfg.Interval).Str("reason", change.Reason).Msg("scheduling reconnect")
	go r.wait(ctx, cancel)
}

// Cancel drops the scheduled attempt, if any. An attempt already running is
// not interrupted.
func (r *Reconnector) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Scheduled reports whether an attempt is waiting to fire.
func (r *Reconnector) Scheduled() bool {
	return r.scheduled.Load()
}

// retryable reports whether change ends a connection the policy should restore:
// any drop to Disconnected, or a dial that failed.
func retryable(change StateChange) bool {
	switch change.To {
	case StateDisconnected:
		return true
	case StateError:
		return change.From == StateConnecting
	default:
		return false
	}
}

func (r *Reconnector) wait(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	timer := time.NewTimer(r.cfg.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		r.finish()
		r.logger.Debug().Msg("scheduled reconnect cancelled")
		return
	case <-timer.C:
	}
	// Clear before attempting so a failed attempt can schedule the next one.
	r.finish()
	if ctx.Err() != nil || r.cfg.Attempt == nil {
		return
	}
	if r.cfg.Enabled != nil && !r.cfg.Enabled() {
		r.logger.Debug().Msg("reconnect disabled during wait")
		return
	}

	r.metrics.ReconnectAttempt()
	if err := r.cfg.Attempt(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("reconnect attempt failed")
		return
	}
	r.logger.Info().Msg("reconnected")
}

func (r *Reconnector) finish() {
	r.mu.Lock()
	r.cancel = nil
	r.scheduled.Store(false)
	r.mu.Unlock()
}
