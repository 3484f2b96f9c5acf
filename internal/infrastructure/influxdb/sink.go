package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/packpilot/internal/events"
)

// PointWriter accepts points; *Client implements it.
type PointWriter interface {
	WritePoint(p *write.Point)
}

// MetricsSink converts step and task events into points.
type MetricsSink struct {
	w PointWriter
}

// NewMetricsSink returns a sink writing to w.
func NewMetricsSink(w PointWriter) *MetricsSink {
	return &MetricsSink{w: w}
}

// Handle implements events.Sink.
func (s *MetricsSink) Handle(e events.Event) {
	switch e.Type {
	case events.StepCompleted, events.StepFailed, events.StepSkipped:
		s.w.WritePoint(StepTimingPoint(StepTiming{
			Device:   e.Device,
			Scenario: e.Scenario,
			Step:     e.Step,
			Outcome:  string(e.Type),
			Attempt:  e.Attempt,
			Polls:    e.Polls,
			Elapsed:  e.Elapsed,
			At:       e.Time,
		}))
	case events.TaskFinished:
		s.w.WritePoint(TaskRunPoint(TaskRun{
			Device:   e.Device,
			Scenario: e.Scenario,
			State:    e.State,
			Attempts: e.Attempt,
			Elapsed:  e.Elapsed,
			At:       e.Time,
		}))
	}
}
