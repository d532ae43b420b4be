package types

// ListenerState is the lifecycle state of a track's change feed listener.
type ListenerState int32

const (
	Disconnected ListenerState = iota
	Connecting
	Connected
	FatallyFailed
)

func (s ListenerState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case FatallyFailed:
		return "fatally_failed"
	default:
		return "unknown"
	}
}

// Live reports whether edits may be sent while the listener is in this state.
func (s ListenerState) Live() bool {
	return s == Connecting || s == Connected
}

// Terminal reports whether the listener has stopped and will not reconnect.
func (s ListenerState) Terminal() bool {
	return s == Disconnected || s == FatallyFailed
}
