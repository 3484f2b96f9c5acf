package results

import "errors"

var (
	// ErrResultNotFound is returned when no task result has the given ID.
	ErrResultNotFound = errors.New("results: task result not found")

	// ErrResultExists is returned when a task result is saved twice.
	ErrResultExists = errors.New("results: task result already exists")

	// ErrInvalidResult is returned for results missing identity fields.
	ErrInvalidResult = errors.New("results: invalid result")
)
