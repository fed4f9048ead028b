package comm

import "fmt"

// ConnectionState is the lifecycle state of a Conn.
type ConnectionState int

// Connection states.
const (
	// StateDisconnected means no link; the initial state.
	StateDisconnected ConnectionState = iota
	// StateConnected means the handshake completed and packets can flow.
	StateConnected
	// StateError means the transport may be open but the link is unusable,
	// e.g. after a failed handshake. Open must be called again.
	StateError
	// StateForcedClosed means the transport was closed without the
	// peer acknowledging the disconnect.
	StateForcedClosed
)

// String implements fmt.Stringer.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateForcedClosed:
		return "forced-closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsConnected indicates packets can be sent and received.
func (s ConnectionState) IsConnected() bool {
	return s == StateConnected
}
