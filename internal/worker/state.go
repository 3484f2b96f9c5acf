package worker

import "fmt"

// State is a worker task's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateRetrying  State = "retrying"
	StateSuccess   State = "success"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
	StateFinished  State = "finished"
)

// allowed lists every legal transition. Idle may go straight to Cancelled
// when a task is stopped before it starts.
var allowed = map[State][]State{
	StateIdle:      {StateRunning, StateCancelled},
	StateRunning:   {StateRetrying, StateSuccess, StateFailed, StateCancelled},
	StateRetrying:  {StateRunning, StateCancelled},
	StateSuccess:   {StateFinished},
	StateFailed:    {StateFinished},
	StateCancelled: {StateFinished},
}

func isAllowedTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition moves *cur from from to to, failing if *cur is not from or
// the edge is not allowed.
func transition(cur *State, from, to State) error {
	if *cur != from {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidTransition, from, *cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	*cur = to
	return nil
}
