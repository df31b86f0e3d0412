package frame

// ConnectionState is the observable state of one stream connection.
type ConnectionState int32

// Connection states. Close returns to Disconnected from any state.
const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Error
)

// String returns the string representation of ConnectionState
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}
