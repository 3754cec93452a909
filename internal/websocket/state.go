package websocket

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateAuthenticated
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Open reports whether the socket is usable in this state.
func (s State) Open() bool {
	return s == StateConnected || s == StateAuthenticating || s == StateAuthenticated
}

// StateChange is delivered to listeners once per distinct transition.
type StateChange struct {
	From   State
	To     State
	Reason string
	// Voluntary is set when the caller disconnected on purpose or the server
	// terminated the session authoritatively.
	Voluntary bool
	// CloseCode is the close code received from the server, 0 if none.
	CloseCode int
}

// StateListener observes transitions. It runs on the goroutine that made the
// transition and must not block or call Connect/Disconnect synchronously.
type StateListener func(StateChange)
