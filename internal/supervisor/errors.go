package supervisor

import "errors"

var (
	// ErrAlreadyRunning is returned by StartAll while a batch is active.
	ErrAlreadyRunning = errors.New("supervisor: tasks already running")

	// ErrNoDevices is returned by StartAll with an empty device list.
	ErrNoDevices = errors.New("supervisor: no devices")

	// ErrDuplicateDevice is returned when a device appears twice in a batch.
	ErrDuplicateDevice = errors.New("supervisor: duplicate device")

	// ErrNotStarted is returned by Wait before any batch was started.
	ErrNotStarted = errors.New("supervisor: no tasks started")
)
