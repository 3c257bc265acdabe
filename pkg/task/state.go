package task

import "fmt"

// State is the lifecycle position of a Task. States only ever move forward:
// NotStarted -> Running -> (Cancelling ->) one of the terminal states.
type State int32

const (
	// StateNotStarted means Start has not taken effect yet.
	StateNotStarted State = iota
	// StateRunning means the work closure has been dispatched and the task
	// is registered in the running-task registry.
	StateRunning
	// StateCancelling means cancellation has been requested but the work
	// has not acknowledged it yet. Cooperative: the task stays here until
	// the work reports an outcome.
	StateCancelling
	// StateSuccessful is the terminal state for OutcomeSuccess.
	StateSuccessful
	// StateCancelled is the terminal state for OutcomeCancelled.
	StateCancelled
	// StateFailed is the terminal state for OutcomeFailure.
	StateFailed
)

// Terminal reports whether s is one of the three final states.
func (s State) Terminal() bool {
	switch s {
	case StateSuccessful, StateCancelled, StateFailed:
		return true
	}
	return false
}

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateSuccessful:
		return "successful"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Outcome is the terminal classification of a task's run.
type Outcome int32

const (
	// OutcomeSuccess means the work completed its goal.
	OutcomeSuccess Outcome = iota
	// OutcomeCancelled means the work cooperated with a cancel request.
	OutcomeCancelled
	// OutcomeFailure means the work reported failure (and retries, if any,
	// were exhausted), or no work was attached at start time.
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailure:
		return "failure"
	default:
		return fmt.Sprintf("outcome(%d)", int32(o))
	}
}

// state maps the outcome to its terminal state.
func (o Outcome) state() State {
	switch o {
	case OutcomeSuccess:
		return StateSuccessful
	case OutcomeCancelled:
		return StateCancelled
	default:
		return StateFailed
	}
}
