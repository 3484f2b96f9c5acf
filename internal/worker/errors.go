package worker

import "errors"

var (
	// ErrInvalidTransition is returned for a lifecycle transition the state
	// machine does not permit. It indicates a bug, not a runtime condition.
	ErrInvalidTransition = errors.New("worker: invalid state transition")

	// ErrAlreadyStarted is returned when Run is called twice on one task.
	ErrAlreadyStarted = errors.New("worker: task already started")

	// ErrInvalidConfig is returned by New for an unusable task config.
	ErrInvalidConfig = errors.New("worker: invalid config")
)
