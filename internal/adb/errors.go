package adb

import "errors"

var (
	// ErrCaptureUnavailable is returned when a screenshot could not be
	// taken or decoded. Pollers treat it as one failed attempt.
	ErrCaptureUnavailable = errors.New("adb: capture unavailable")

	// ErrCommandFailed is returned when adb exits non-zero or reports an
	// error on stderr.
	ErrCommandFailed = errors.New("adb: command failed")

	// ErrConnectFailed is returned when adb connect does not report success.
	ErrConnectFailed = errors.New("adb: connect failed")

	// ErrServerRunning is returned by Server.Start while already running.
	ErrServerRunning = errors.New("adb: server already running")
)
