package command

import (
	"sync"

	"github.com/rs/zerolog"
)

// Deferred queues commands on Handle and runs fn for each of them on Pump.
type Deferred struct {
	mu     sync.Mutex
	queue  []Message
	fn     func(Message) error
	logger zerolog.Logger
}

// Defer wraps fn so it only runs from Pump.
func Defer(fn func(Message) error, logger zerolog.Logger) *Deferred {
	return &Deferred{fn: fn, logger: logger}
}

// Handle queues msg and returns immediately.
func (d *Deferred) Handle(msg Message) error {
	d.mu.Lock()
	d.queue = append(d.queue, msg)
	d.mu.Unlock()
	return nil
}

// Pump runs everything queued so far in arrival order.
func (d *Deferred) Pump() int {
	d.mu.Lock()
	batch := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, msg := range batch {
		if err := safeHandle(HandlerFunc(d.fn), msg); err != nil {
			d.logger.Warn().Err(err).Str("command_type", msg.CommandType.String()).Msg("deferred command failed")
		}
	}
	return len(batch)
}

// Len returns the number of queued commands.
func (d *Deferred) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
