package application

// State is a lifecycle stage of an App.
type State int32

const (
	StateUnbuilt State = iota
	StateAssembled
	StateStarting
	StateServing
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnbuilt:
		return "unbuilt"
	case StateAssembled:
		return "assembled"
	case StateStarting:
		return "starting"
	case StateServing:
		return "serving"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
