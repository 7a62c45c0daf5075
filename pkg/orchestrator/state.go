package orchestrator

// State is the processing state of a session.
type State int32

const (
	StateIdle State = iota
	StateGenerating
	StateStreaming
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateStreaming:
		return "streaming"
	case StatePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}
