package websocket

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Queue is the unbounded FIFO between the receive loop and the tick thread.
type Queue struct {
	mu    sync.Mutex
	items []Envelope
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends env.
func (q *Queue) Push(env Envelope) {
	q.mu.Lock()
	q.items = append(q.items, env)
	q.mu.Unlock()
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Envelope{}, false
	}
	env := q.items[0]
	q.items[0] = Envelope{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return env, true
}

// Drain dispatches every message queued at call time, in arrival order.
// Messages pushed while draining wait for the next call. A failing or
// panicking fn does not stop the remaining messages.
func (q *Queue) Drain(logger zerolog.Logger, fn func(Envelope) error) int {
	n := q.Len()
	handled := 0
	for i := 0; i < n; i++ {
		env, ok := q.pop()
		if !ok {
			break
		}
		if err := safeCall(fn, env); err != nil {
			logger.Warn().Err(err).Str("type", env.Type).Str("msg_id", env.MsgID).Msg("inbound message handler failed")
		}
		handled++
	}
	return handled
}

func safeCall(fn func(Envelope) error, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(env)
}
