package session

// State is a position in the relay lifecycle of a single attempt.
type State int

// Relay states. Completed and Failed are terminal.
const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateRequesting: "requesting",
	StateStreaming:  "streaming",
	StateCompleted:  "completed",
	StateFailed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
