package command

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_UnregisteredIsNoop(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), nil)
	called := false
	d.Register(TypeNotify, HandlerFunc(func(Message) error {
		called = true
		return nil
	}))

	assert.NotPanics(t, func() {
		assert.False(t, d.Dispatch(Message{CommandType: Type(99), Command: "future"}))
	})
	assert.False(t, called)
	assert.Zero(t, d.Pump())
}

func TestDispatch_RoutesByType(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), nil)
	var got []Message
	d.Register(TypeNotify, HandlerFunc(func(m Message) error {
		got = append(got, m)
		return nil
	}))

	msg := Message{CommandType: TypeNotify, Command: "pull in 10", Targets: "all", RoomID: "r-1"}
	require.True(t, d.Dispatch(msg))
	assert.Equal(t, []Message{msg}, got)
}

func TestDispatch_HandlerFailureContained(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), nil)
	d.Register(TypeNotify, HandlerFunc(func(Message) error { return errors.New("bad payload") }))
	d.Register(TypeCountdown, HandlerFunc(func(Message) error { panic("handler bug") }))

	assert.True(t, d.Dispatch(Message{CommandType: TypeNotify}))
	assert.NotPanics(t, func() { d.Dispatch(Message{CommandType: TypeCountdown}) })
}

func TestDispatch_LateRegistrationAndReplace(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), nil)
	msg := Message{CommandType: TypeSwitchProfile, Command: "aoe"}
	assert.False(t, d.Dispatch(msg))

	first, second := 0, 0
	d.Register(TypeSwitchProfile, HandlerFunc(func(Message) error { first++; return nil }))
	d.Dispatch(msg)
	d.Register(TypeSwitchProfile, HandlerFunc(func(Message) error { second++; return nil }))
	d.Dispatch(msg)
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
	assert.True(t, d.Registered(TypeSwitchProfile))
}

func TestDeferred_RunsOnlyOnPump(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), nil)
	var ran []string
	deferred := Defer(func(m Message) error {
		ran = append(ran, m.Command)
		return nil
	}, zerolog.Nop())
	d.Register(TypeToggleAutomation, deferred)

	d.Dispatch(Message{CommandType: TypeToggleAutomation, Command: "on"})
	d.Dispatch(Message{CommandType: TypeToggleAutomation, Command: "off"})
	assert.Empty(t, ran)
	assert.Equal(t, 2, deferred.Len())

	assert.Equal(t, 2, d.Pump())
	assert.Equal(t, []string{"on", "off"}, ran)
	assert.Zero(t, deferred.Len())
	assert.Zero(t, d.Pump())
}

func TestDeferred_PanicDoesNotStopBatch(t *testing.T) {
	var ran []string
	deferred := Defer(func(m Message) error {
		if m.Command == "boom" {
			panic("handler bug")
		}
		ran = append(ran, m.Command)
		return nil
	}, zerolog.Nop())
	deferred.Handle(Message{Command: "boom"})
	deferred.Handle(Message{Command: "after"})

	assert.Equal(t, 2, deferred.Pump())
	assert.Equal(t, []string{"after"}, ran)
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"notify", TypeNotify, false},
		{"countdown", TypeCountdown, false},
		{"2", TypeSwitchProfile, false},
		{"42", Type(42), false},
		{"0", 0, true},
		{"dance", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode(t *testing.T) {
	msg, err := Decode([]byte(`{"commandType":4,"command":"10","targets":"team:1","roomId":"r-1"}`))
	require.NoError(t, err)
	assert.Equal(t, Message{CommandType: TypeCountdown, Command: "10", Targets: "team:1", RoomID: "r-1"}, msg)

	_, err = Decode(nil)
	assert.Error(t, err)
	_, err = Decode([]byte(`{"commandType":"x"}`))
	assert.Error(t, err)
}
