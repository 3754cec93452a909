package command

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vntrieu/roomlink/internal/ratelimit"
	"github.com/vntrieu/roomlink/internal/websocket"
)

type fakeTransport struct {
	sent []interface{}
	err  error
}

func (f *fakeTransport) SendWithAck(ctx context.Context, msgType string, payload interface{}) (*websocket.Ack, error) {
	if msgType != MessageType {
		return nil, errors.New("unexpected type " + msgType)
	}
	f.sent = append(f.sent, payload)
	if f.err != nil {
		return nil, f.err
	}
	return &websocket.Ack{Success: true}, nil
}

func TestSender_Send(t *testing.T) {
	tr := &fakeTransport{}
	s := NewSender(tr, nil, zerolog.Nop())

	msg := Message{CommandType: TypeNotify, Command: "stack", Targets: "all", RoomID: "r-1"}
	require.NoError(t, s.Send(context.Background(), msg))
	require.Len(t, tr.sent, 1)
	assert.Equal(t, msg, tr.sent[0])
}

func TestSender_Validation(t *testing.T) {
	s := NewSender(&fakeTransport{}, nil, zerolog.Nop())
	assert.ErrorIs(t, s.Send(context.Background(), Message{RoomID: "r-1"}), ErrInvalidCommand)
	assert.ErrorIs(t, s.Send(context.Background(), Message{CommandType: TypeNotify}), ErrInvalidCommand)
}

func TestSender_ThrottledPerTarget(t *testing.T) {
	tr := &fakeTransport{}
	s := NewSender(tr, ratelimit.NewTokenBucket(0.001, 1), zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, Message{CommandType: TypeNotify, Targets: "team:1", RoomID: "r-1"}))
	err := s.Send(ctx, Message{CommandType: TypeNotify, Targets: "team:1", RoomID: "r-1"})
	assert.ErrorIs(t, err, ErrThrottled)
	require.NoError(t, s.Send(ctx, Message{CommandType: TypeNotify, Targets: "team:2", RoomID: "r-1"}))
	assert.Len(t, tr.sent, 2)
}

func TestSender_TransportError(t *testing.T) {
	tr := &fakeTransport{err: websocket.ErrNotConnected}
	s := NewSender(tr, nil, zerolog.Nop())
	err := s.Send(context.Background(), Message{CommandType: TypeNotify, RoomID: "r-1"})
	assert.ErrorIs(t, err, websocket.ErrNotConnected)
}
