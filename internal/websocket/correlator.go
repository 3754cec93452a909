package websocket

import (
	"context"
	"errors"
	"sync"
)

type result struct {
	ack *Ack
	err error
}

// Correlator maps outgoing message ids to callers waiting for an ack.
// Each entry is resolved exactly once and removed when it is resolved.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]chan result
}

// NewCorrelator creates an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]chan result)}
}

// Pending is the caller's handle on a registered request.
type Pending struct {
	id    string
	ch    chan result
	owner *Correlator
}

// Register adds msgID to the map. It must be called before the request is sent.
func (c *Correlator) Register(msgID string) *Pending {
	ch := make(chan result, 1)
	c.mu.Lock()
	c.pending[msgID] = ch
	c.mu.Unlock()
	return &Pending{id: msgID, ch: ch, owner: c}
}

// Resolve completes the request registered under msgID.
// Unknown, late or duplicate ids are ignored and Resolve returns false.
func (c *Correlator) Resolve(msgID string, ack Ack) bool {
	return c.complete(msgID, result{ack: &ack})
}

func (c *Correlator) complete(msgID string, r result) bool {
	c.mu.Lock()
	ch, ok := c.pending[msgID]
	if ok {
		delete(c.pending, msgID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- r
	return true
}

// CancelAll fails every outstanding request with err and clears the map.
func (c *Correlator) CancelAll(err error) int {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan result)
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- result{err: err}
	}
	return len(pending)
}

// Len returns the number of outstanding requests.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// has reports whether msgID is still waiting for an ack.
func (c *Correlator) has(msgID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[msgID]
	return ok
}

func (c *Correlator) forget(msgID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[msgID]; !ok {
		return false
	}
	delete(c.pending, msgID)
	return true
}

// Wait blocks until the request is resolved or ctx is done.
// When ctx ends first the entry is removed and ErrAckTimeout (deadline) or
// ErrRequestCancelled (cancellation) is returned.
func (p *Pending) Wait(ctx context.Context) (*Ack, error) {
	select {
	case r := <-p.ch:
		return r.ack, r.err
	case <-ctx.Done():
		if p.owner.forget(p.id) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrAckTimeout
			}
			return nil, ErrRequestCancelled
		}
		// Resolved concurrently; the result is already buffered.
		r := <-p.ch
		return r.ack, r.err
	}
}

// Abandon removes the entry without waiting, e.g. when the send failed.
func (p *Pending) Abandon() {
	p.owner.forget(p.id)
}
