package command

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vntrieu/roomlink/internal/metrics"
)

// Handler executes one command. Handle is called on the tick goroutine and
// must not block; work that has to run elsewhere belongs in a Deferred.
type Handler interface {
	Handle(msg Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(msg Message) error

func (f HandlerFunc) Handle(msg Message) error { return f(msg) }

// Pumper is implemented by handlers that queue work for Pump.
type Pumper interface {
	Pump() int
}

// Dispatcher routes inbound commands by type. Handlers may be registered or
// replaced at any time.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Type]Handler
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(logger zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Type]Handler),
		logger:   logger.With().Str("component", "command").Logger(),
		metrics:  m,
	}
}

// Register installs h for t, replacing any previous handler.
func (d *Dispatcher) Register(t Type, h Handler) {
	d.mu.Lock()
	d.handlers[t] = h
	d.mu.Unlock()
}

// Registered reports whether t has a handler.
func (d *Dispatcher) Registered(t Type) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[t]
	return ok
}

// Dispatch hands msg to the handler registered for its type and reports
// whether one was found. Unknown types are ignored.
func (d *Dispatcher) Dispatch(msg Message) bool {
	d.mu.RLock()
	h, ok := d.handlers[msg.CommandType]
	d.mu.RUnlock()

	d.metrics.Command(msg.CommandType.String(), ok)
	if !ok {
		d.logger.Debug().Int("command_type", int(msg.CommandType)).Msg("no handler for command")
		return false
	}
	if err := safeHandle(h, msg); err != nil {
		d.logger.Warn().Err(err).Str("command_type", msg.CommandType.String()).Msg("command handler failed")
	}
	return true
}

// Pump runs the queued work of every deferred handler and returns how many
// commands ran.
func (d *Dispatcher) Pump() int {
	d.mu.RLock()
	pumpers := make([]Pumper, 0, len(d.handlers))
	for _, h := range d.handlers {
		if p, ok := h.(Pumper); ok {
			pumpers = append(pumpers, p)
		}
	}
	d.mu.RUnlock()

	n := 0
	for _, p := range pumpers {
		n += p.Pump()
	}
	return n
}

func safeHandle(h Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handle(msg)
}
