package events

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Handle(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) log(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+" "+msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.log("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.log("INFO", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.log("WARN", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.log("ERROR", msg) }

func TestDispatcher_DeliversInOrderToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	d := NewDispatcher(64, a, b)

	for i := 0; i < 50; i++ {
		d.Emit(Event{Type: StepStarted, Device: "1", Step: fmt.Sprintf("s%d", i)})
	}
	d.Close()

	for name, sink := range map[string]*recordingSink{"a": a, "b": b} {
		got := sink.all()
		if len(got) != 50 {
			t.Fatalf("sink %s received %d events, want 50", name, len(got))
		}
		for i, e := range got {
			if want := fmt.Sprintf("s%d", i); e.Step != want {
				t.Errorf("sink %s event %d step = %q, want %q", name, i, e.Step, want)
			}
		}
	}
}

func TestDispatcher_EmitAfterCloseIsDropped(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(1, sink)
	d.Close()
	d.Close()

	d.Emit(Event{Type: TaskFinished})

	if n := len(sink.all()); n != 0 {
		t.Errorf("sink received %d events after Close, want 0", n)
	}
}

func TestDispatcher_RecoversSinkPanic(t *testing.T) {
	logger := &recordingLogger{}
	after := &recordingSink{}
	d := NewDispatcher(4, SinkFunc(func(Event) { panic("boom") }), after)
	d.SetLogger(logger)

	d.Emit(Event{Type: StepFailed})
	d.Emit(Event{Type: TaskFinished})
	d.Close()

	if n := len(after.all()); n != 2 {
		t.Errorf("sink after panicking sink received %d events, want 2", n)
	}
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.lines) != 2 {
		t.Errorf("logged %d panics, want 2", len(logger.lines))
	}
}

func TestDispatcher_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	release := make(chan struct{})
	first := make(chan struct{})
	var once sync.Once
	slow := SinkFunc(func(Event) {
		once.Do(func() { close(first) })
		<-release
	})
	logger := &recordingLogger{}
	d := NewDispatcher(2, slow)
	d.SetLogger(logger)

	// The first event is taken by the goroutine and parks in the sink.
	d.Emit(Event{Type: StepStarted})
	<-first

	start := time.Now()
	for i := 0; i < 10; i++ {
		d.Emit(Event{Type: StepStarted, Device: "1"})
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Emit() on a full buffer took %v", elapsed)
	}
	if got := d.Dropped(); got != 8 {
		t.Errorf("Dropped() = %d, want 8", got)
	}

	close(release)
	d.Close()

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.lines) != 1 || logger.lines[0] != "WARN event buffer full, dropping events" {
		t.Errorf("overflow log = %v, want one warning", logger.lines)
	}
}

func TestScoped_FillsIdentity(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(4, sink)

	s := Scoped{Next: d, RunID: "run", TaskID: "task", Device: "2", Scenario: "pack_gather"}
	s.Emit(Event{Type: StepStarted, Step: "opening"})
	s.Emit(Event{Type: StepStarted, Device: "override"})
	d.Close()

	got := sink.all()
	if len(got) != 2 {
		t.Fatalf("received %d events, want 2", len(got))
	}
	first := got[0]
	if first.RunID != "run" || first.TaskID != "task" || first.Device != "2" || first.Scenario != "pack_gather" {
		t.Errorf("scoped event = %+v, want identity filled", first)
	}
	if first.Time.IsZero() || time.Since(first.Time) > time.Minute {
		t.Errorf("scoped event time = %v, want now", first.Time)
	}
	if got[1].Device != "override" {
		t.Errorf("Device = %q, want explicit value kept", got[1].Device)
	}
}

func TestLogSink_Levels(t *testing.T) {
	logger := &recordingLogger{}
	sink := LogSink{Logger: logger}

	sink.Handle(Event{Type: StepStarted})
	sink.Handle(Event{Type: StepFailed, Error: "timeout"})
	sink.Handle(Event{Type: TaskFinished, Payload: map[string]string{"nickname": "x"}})

	want := []string{"DEBUG step_started", "WARN step_failed", "INFO task_finished"}
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if fmt.Sprint(logger.lines) != fmt.Sprint(want) {
		t.Errorf("log lines = %v, want %v", logger.lines, want)
	}
}

func TestLogSink_NilLogger(t *testing.T) {
	LogSink{}.Handle(Event{Type: TaskFinished})
}
