package command

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Type identifies what a room command asks the receiving client to do.
type Type int

const (
	TypeNotify Type = iota + 1
	TypeSwitchProfile
	TypeToggleAutomation
	TypeCountdown
)

func (t Type) String() string {
	switch t {
	case TypeNotify:
		return "notify"
	case TypeSwitchProfile:
		return "switch_profile"
	case TypeToggleAutomation:
		return "toggle_automation"
	case TypeCountdown:
		return "countdown"
	default:
		return "type_" + strconv.Itoa(int(t))
	}
}

// ParseType accepts a type name or its number.
func ParseType(s string) (Type, error) {
	for t := TypeNotify; t <= TypeCountdown; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unknown command type %q", s)
	}
	return Type(n), nil
}

// MessageType is the envelope type carrying commands in both directions.
const MessageType = "room_command"

// Message is one room command. Command is an opaque handler-specific payload;
// Targets is an addressing expression resolved by the server.
type Message struct {
	CommandType Type   `json:"commandType"`
	Command     string `json:"command"`
	Targets     string `json:"targets"`
	RoomID      string `json:"roomId"`
}

// Decode reads a Message from a room_command payload.
func Decode(payload json.RawMessage) (Message, error) {
	var msg Message
	if len(payload) == 0 {
		return msg, fmt.Errorf("empty command payload")
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("decode command: %w", err)
	}
	return msg, nil
}
