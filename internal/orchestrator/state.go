package orchestrator

// State tracks where a turn is in its lifecycle. Every turn starts in
// AwaitingModel, bounces through ExecutingCalls once per round of
// requested calls, and ends in Done or Failed.
type State int

const (
	StateAwaitingModel State = iota
	StateExecutingCalls
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingCalls:
		return "executing_calls"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
