package stream

// State is the connection state of a Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	// Reconnecting means the last connection dropped and an automatic retry
	// is scheduled or dialing.
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
