package websocket

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestQueue_DrainFIFO(t *testing.T) {
	q := NewQueue()
	for _, typ := range []string{"a", "b", "c"} {
		q.Push(Envelope{Type: typ})
	}

	var got []string
	n := q.Drain(zerolog.Nop(), func(env Envelope) error {
		got = append(got, env.Type)
		return nil
	})

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DrainSurvivesFailures(t *testing.T) {
	q := NewQueue()
	q.Push(Envelope{Type: "panics"})
	q.Push(Envelope{Type: "errors"})
	q.Push(Envelope{Type: "ok"})

	var got []string
	n := q.Drain(zerolog.Nop(), func(env Envelope) error {
		got = append(got, env.Type)
		switch env.Type {
		case "panics":
			panic("handler bug")
		case "errors":
			return errors.New("bad payload")
		}
		return nil
	})

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"panics", "errors", "ok"}, got)
}

func TestQueue_PushDuringDrainWaitsForNextDrain(t *testing.T) {
	q := NewQueue()
	q.Push(Envelope{Type: "first"})

	var got []string
	q.Drain(zerolog.Nop(), func(env Envelope) error {
		got = append(got, env.Type)
		q.Push(Envelope{Type: "second"})
		return nil
	})
	assert.Equal(t, []string{"first"}, got)
	assert.Equal(t, 1, q.Len())

	q.Drain(zerolog.Nop(), func(env Envelope) error {
		got = append(got, env.Type)
		return nil
	})
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestQueue_DrainEmpty(t *testing.T) {
	q := NewQueue()
	called := false
	n := q.Drain(zerolog.Nop(), func(Envelope) error {
		called = true
		return nil
	})
	assert.Zero(t, n)
	assert.False(t, called)
}
