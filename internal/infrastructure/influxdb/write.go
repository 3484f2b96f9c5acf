package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurementTaskRuns    = "task_runs"
	measurementStepTimings = "step_timings"
)

// TaskRun is one finished worker task.
type TaskRun struct {
	Device   string
	Scenario string
	State    string
	Attempts int
	Elapsed  time.Duration
	At       time.Time
}

// StepTiming is one executed step of one attempt.
type StepTiming struct {
	Device   string
	Scenario string
	Step     string
	Outcome  string
	Attempt  int
	Polls    int
	Elapsed  time.Duration
	At       time.Time
}

// TaskRunPoint renders r as a task_runs point.
func TaskRunPoint(r TaskRun) *write.Point {
	return write.NewPoint(measurementTaskRuns,
		map[string]string{
			"device":   r.Device,
			"scenario": r.Scenario,
			"state":    r.State,
		},
		map[string]any{
			"attempts":   r.Attempts,
			"elapsed_ms": r.Elapsed.Milliseconds(),
		},
		r.At,
	)
}

// StepTimingPoint renders s as a step_timings point.
func StepTimingPoint(s StepTiming) *write.Point {
	return write.NewPoint(measurementStepTimings,
		map[string]string{
			"device":   s.Device,
			"scenario": s.Scenario,
			"step":     s.Step,
			"outcome":  s.Outcome,
		},
		map[string]any{
			"attempt":    s.Attempt,
			"polls":      s.Polls,
			"elapsed_ms": s.Elapsed.Milliseconds(),
		},
		s.At,
	)
}
