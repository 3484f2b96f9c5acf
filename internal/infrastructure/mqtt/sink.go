package mqtt

import (
	"github.com/nerrad567/packpilot/internal/events"
)

// Publisher is the subset of Client used by EventSink.
type Publisher interface {
	PublishJSON(topic string, v any, qos byte, retained bool) error
}

// EventSink publishes engine events to packpilot/events/{device} and final
// task results, retained, to packpilot/result/{device}.
type EventSink struct {
	pub    Publisher
	qos    byte
	logger Logger
}

// NewEventSink creates a sink publishing with the given QoS.
func NewEventSink(pub Publisher, qos int) *EventSink {
	return &EventSink{pub: pub, qos: byte(qos), logger: noopLogger{}}
}

// SetLogger sets the logger for publish failures.
func (s *EventSink) SetLogger(logger Logger) {
	s.logger = logger
}

// Handle implements events.Sink. Publish errors are logged, never returned:
// a broker outage must not stall the workers.
func (s *EventSink) Handle(e events.Event) {
	t := Topics{}
	if err := s.pub.PublishJSON(t.Events(e.Device), e, s.qos, false); err != nil {
		s.logger.Warn("publishing event failed", "device", e.Device, "type", e.Type, "error", err)
	}
	if e.Type != events.TaskFinished {
		return
	}

	result := map[string]any{
		"run_id":   e.RunID,
		"task_id":  e.TaskID,
		"device":   e.Device,
		"scenario": e.Scenario,
		"state":    e.State,
		"attempts": e.Attempt,
		"payload":  e.Payload,
		"time":     e.Time,
	}
	if err := s.pub.PublishJSON(t.Result(e.Device), result, s.qos, true); err != nil {
		s.logger.Warn("publishing result failed", "device", e.Device, "error", err)
	}
}
