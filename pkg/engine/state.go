package engine

// State is a server lifecycle state.
type State int

// Lifecycle states. A server moves Stopped → Starting → Running → Stopping →
// Stopped; a failed start returns straight to Stopped.
const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
