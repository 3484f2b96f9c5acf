package events

// LogSink writes every event to a structured logger. Failures log at warn
// level, terminal task events at info, everything else at debug.
type LogSink struct {
	Logger Logger
}

// Handle implements Sink.
func (s LogSink) Handle(e Event) {
	if s.Logger == nil {
		return
	}

	args := []any{"device", e.Device, "scenario", e.Scenario}
	if e.Attempt > 0 {
		args = append(args, "attempt", e.Attempt)
	}
	if e.Step != "" {
		args = append(args, "step", e.Step)
	}
	if e.Polls > 0 {
		args = append(args, "polls", e.Polls)
	}
	if e.State != "" {
		args = append(args, "state", e.State)
	}
	if e.Elapsed > 0 {
		args = append(args, "elapsed", e.Elapsed)
	}
	if len(e.Payload) > 0 {
		args = append(args, "payload", e.Payload)
	}
	if e.Error != "" {
		args = append(args, "error", e.Error)
	}

	msg := string(e.Type)
	switch e.Type {
	case StepFailed, AttemptRetried:
		s.Logger.Warn(msg, args...)
	case TaskStarted, TaskFinished:
		s.Logger.Info(msg, args...)
	default:
		s.Logger.Debug(msg, args...)
	}
}
