package binsync

// State is a step of the sync driver lifecycle:
//
//	Initializing -> Streaming -> (Draining | Failing) -> Terminated
type State int32

const (
	StateInitializing State = iota
	StateStreaming
	StateDraining
	StateFailing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateFailing:
		return "failing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
