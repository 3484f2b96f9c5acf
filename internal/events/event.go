package events

import "time"

// Type identifies what happened.
type Type string

const (
	TaskStarted    Type = "task_started"
	AttemptStarted Type = "attempt_started"
	StepStarted    Type = "step_started"
	StepCompleted  Type = "step_completed"
	StepSkipped    Type = "step_skipped"
	StepFailed     Type = "step_failed"
	AttemptRetried Type = "attempt_retried"
	GateAcquired   Type = "gate_acquired"
	GateReleased   Type = "gate_released"
	TaskFinished   Type = "task_finished"
)

// Event is one status report. Fields that do not apply to a Type are left
// at their zero value.
type Event struct {
	Type     Type              `json:"type"`
	RunID    string            `json:"run_id,omitempty"`
	TaskID   string            `json:"task_id,omitempty"`
	Device   string            `json:"device"`
	Scenario string            `json:"scenario,omitempty"`
	Attempt  int               `json:"attempt,omitempty"`
	Step     string            `json:"step,omitempty"`
	Polls    int               `json:"polls,omitempty"`
	State    string            `json:"state,omitempty"`
	Payload  map[string]string `json:"payload,omitempty"`
	Elapsed  time.Duration     `json:"elapsed_ns,omitempty"`
	Error    string            `json:"error,omitempty"`
	Time     time.Time         `json:"time"`
}

// Emitter accepts events. Implementations must not block the caller for
// longer than a buffered send.
type Emitter interface {
	Emit(Event)
}

// Sink consumes dispatched events.
type Sink interface {
	Handle(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Handle calls f(e).
func (f SinkFunc) Handle(e Event) { f(e) }

// Discard is an Emitter that drops every event.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// Scoped stamps identity fields onto every event before forwarding it.
type Scoped struct {
	Next     Emitter
	RunID    string
	TaskID   string
	Device   string
	Scenario string
}

// Emit fills in unset identity fields and the timestamp, then forwards.
func (s Scoped) Emit(e Event) {
	if e.RunID == "" {
		e.RunID = s.RunID
	}
	if e.TaskID == "" {
		e.TaskID = s.TaskID
	}
	if e.Device == "" {
		e.Device = s.Device
	}
	if e.Scenario == "" {
		e.Scenario = s.Scenario
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if s.Next != nil {
		s.Next.Emit(e)
	}
}
