package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vntrieu/roomlink/internal/ratelimit"
	"github.com/vntrieu/roomlink/internal/websocket"
)

var (
	ErrThrottled      = errors.New("command: throttled")
	ErrInvalidCommand = errors.New("command: invalid")
)

// Transport sends a correlated request. *websocket.Client implements it.
type Transport interface {
	SendWithAck(ctx context.Context, msgType string, payload interface{}) (*websocket.Ack, error)
}

// Sender issues room commands to other members, throttled per target expression.
type Sender struct {
	transport Transport
	limiter   ratelimit.Limiter
	logger    zerolog.Logger
}

// NewSender creates a Sender. A nil limiter disables throttling.
func NewSender(t Transport, limiter ratelimit.Limiter, logger zerolog.Logger) *Sender {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	return &Sender{
		transport: t,
		limiter:   limiter,
		logger:    logger.With().Str("component", "command").Logger(),
	}
}

// Send transmits msg and waits for the server's ack.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if msg.CommandType <= 0 {
		return fmt.Errorf("%w: missing command type", ErrInvalidCommand)
	}
	if msg.RoomID == "" {
		return fmt.Errorf("%w: missing room id", ErrInvalidCommand)
	}

	key := msg.Targets
	if key == "" {
		key = "*"
	}
	if ok, retry := s.limiter.Allow(key); !ok {
		return fmt.Errorf("%w: targets %q, retry in %ds", ErrThrottled, key, retry)
	}

	if _, err := s.transport.SendWithAck(ctx, MessageType, msg); err != nil {
		return fmt.Errorf("send %s command: %w", msg.CommandType, err)
	}
	s.logger.Debug().Str("command_type", msg.CommandType.String()).Str("targets", msg.Targets).Msg("command sent")
	return nil
}
