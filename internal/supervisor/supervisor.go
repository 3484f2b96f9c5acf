// Package supervisor runs one worker task per device and aggregates
// their results.
//
// The Supervisor owns the clipboard gate and the registry of active
// tasks. It never captures or taps itself: it starts tasks, cancels them
// on request, and collects each task's Result when it finishes. The
// aggregate result list is exposed once the registry is empty.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/packpilot/internal/automation"
	"github.com/nerrad567/packpilot/internal/events"
	"github.com/nerrad567/packpilot/internal/gate"
	"github.com/nerrad567/packpilot/internal/worker"
)

// Logger defines the logging interface used by the Supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Device is one target of a batch.
type Device struct {
	// ID is the device identity used in events and results (adb serial).
	ID     string
	Driver automation.Driver
}

// Scenarios resolves scenario kinds. *automation.Registry implements it.
type Scenarios interface {
	Get(kind automation.Kind) (*automation.Scenario, error)
}

// Config wires a Supervisor.
type Config struct {
	Scenarios Scenarios
	Runner    worker.ScenarioRunner

	// Gate is the clipboard gate shared by every task. The Runner must be
	// built with the same gate; New creates one when nil.
	Gate *gate.Gate

	// Backoff is the pause between a task's attempts.
	Backoff time.Duration

	// Events receives every task's events. Nil discards them.
	Events events.Emitter

	// OnFinished, when set, is called with each task's result after it has
	// left the registry. It runs on the task's goroutine.
	OnFinished func(runID string, res worker.Result)
}

// Status is a snapshot of one active task.
type Status struct {
	TaskID   string
	Device   string
	State    worker.State
	Attempts int
}

// Supervisor manages worker tasks.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu      sync.Mutex
	runID   string
	active  map[string]*worker.Task // by task ID
	order   []string                // insertion order of active tasks
	results []worker.Result
	pending int           // tasks of the current batch whose OnFinished has not returned
	idle    chan struct{} // closed once pending drops to zero
}

// New creates a Supervisor.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Scenarios == nil || cfg.Runner == nil {
		return nil, fmt.Errorf("supervisor: scenarios and runner are required")
	}
	if cfg.Gate == nil {
		cfg.Gate = gate.New("clipboard")
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	return &Supervisor{
		cfg:    cfg,
		logger: noopLogger{},
		active: make(map[string]*worker.Task),
	}, nil
}

// SetLogger sets the logger for the supervisor and the tasks it starts.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Gate returns the clipboard gate.
func (s *Supervisor) Gate() *gate.Gate {
	return s.cfg.Gate
}

// RunID returns the ID of the most recent batch, or "" before StartAll.
func (s *Supervisor) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// StartAll starts one task per device running the scenario of the given
// kind, and returns the batch's run ID. It does not wait for the tasks.
//
// Tasks run until they finish, ctx is done, or StopAll is called.
func (s *Supervisor) StartAll(ctx context.Context, devices []Device, kind automation.Kind, retryBudget int) (string, error) {
	if len(devices) == 0 {
		return "", ErrNoDevices
	}
	sc, err := s.cfg.Scenarios.Get(kind)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	emitter := events.Scoped{Next: s.cfg.Events, RunID: runID}

	seen := make(map[string]bool, len(devices))
	tasks := make([]*worker.Task, 0, len(devices))
	for _, d := range devices {
		if seen[d.ID] {
			return "", fmt.Errorf("%w: %s", ErrDuplicateDevice, d.ID)
		}
		seen[d.ID] = true

		t, err := worker.New(worker.Config{
			Device:      d.ID,
			Driver:      d.Driver,
			Scenario:    sc,
			RetryBudget: retryBudget,
			Backoff:     s.cfg.Backoff,
			Events:      emitter,
		}, s.cfg.Runner)
		if err != nil {
			return "", fmt.Errorf("creating task for %s: %w", d.ID, err)
		}
		t.SetLogger(s.logger)
		tasks = append(tasks, t)
	}

	s.mu.Lock()
	if len(s.active) > 0 || s.pending > 0 {
		s.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	s.runID = runID
	s.results = nil
	s.pending = len(tasks)
	s.idle = make(chan struct{})
	for _, t := range tasks {
		s.active[t.ID()] = t
		s.order = append(s.order, t.ID())
	}
	s.mu.Unlock()

	s.logger.Info("starting tasks", "run_id", runID, "scenario", kind, "devices", len(tasks), "retry_budget", retryBudget)

	for _, t := range tasks {
		go s.run(ctx, runID, t)
	}
	return runID, nil
}

func (s *Supervisor) run(ctx context.Context, runID string, t *worker.Task) {
	res, err := t.Run(ctx)
	if err != nil {
		// Only ErrAlreadyStarted, which StartAll never causes.
		s.logger.Error("task did not run", "device", t.Device(), "error", err)
	}
	s.onFinished(runID, t, res)
}

// onFinished removes t from the registry and records its result. The
// batch becomes idle only after the last OnFinished hook has returned, so
// Wait never returns while a hook is still running.
func (s *Supervisor) onFinished(runID string, t *worker.Task, res worker.Result) {
	s.mu.Lock()
	delete(s.active, t.ID())
	for i, id := range s.order {
		if id == t.ID() {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.results = append(s.results, res)
	s.mu.Unlock()

	if s.cfg.OnFinished != nil {
		s.cfg.OnFinished(runID, res)
	}

	s.mu.Lock()
	s.pending--
	last := s.pending == 0
	idle := s.idle
	s.mu.Unlock()

	if last {
		s.logger.Info("all tasks finished", "run_id", runID)
		close(idle)
	}
}

// Stop cancels the active task bound to device. It reports whether one
// was found and does not wait for it to finish.
func (s *Supervisor) Stop(device string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.active {
		if t.Device() == device {
			t.Cancel()
			return true
		}
	}
	return false
}

// StopAll cancels every active task and waits until each has finished and
// its OnFinished hook has returned.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	tasks := make([]*worker.Task, 0, len(s.active))
	for _, id := range s.order {
		tasks = append(tasks, s.active[id])
	}
	idle := s.idle
	s.mu.Unlock()

	if idle == nil {
		return
	}
	if len(tasks) > 0 {
		s.logger.Info("stopping tasks", "count", len(tasks))
		for _, t := range tasks {
			t.Cancel()
		}
	}
	<-idle
}

// Wait blocks until every task of the current batch has finished, then
// returns the aggregate results in completion order.
func (s *Supervisor) Wait(ctx context.Context) ([]worker.Result, error) {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	if idle == nil {
		return nil, ErrNotStarted
	}

	select {
	case <-idle:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	results, _ := s.Results()
	return results, nil
}

// Results returns a copy of the aggregate results. ok is false while any
// task is still active or its OnFinished hook is still running.
func (s *Supervisor) Results() (results []worker.Result, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.active) > 0 || s.pending > 0 {
		return nil, false
	}
	return append([]worker.Result(nil), s.results...), true
}

// Active returns a snapshot of the active tasks in start order.
func (s *Supervisor) Active() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.order))
	for _, id := range s.order {
		t := s.active[id]
		out = append(out, Status{
			TaskID:   id,
			Device:   t.Device(),
			State:    t.State(),
			Attempts: t.Attempts(),
		})
	}
	return out
}
