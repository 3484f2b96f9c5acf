// Package worker runs one scenario on one device with bounded retries and
// cooperative cancellation.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/packpilot/internal/automation"
	"github.com/nerrad567/packpilot/internal/events"
	"github.com/nerrad567/packpilot/internal/poll"
)

// DefaultBackoff is the pause between two attempts when Config.Backoff is zero.
const DefaultBackoff = time.Second

// Logger defines the logging interface used by Task.
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

// ScenarioRunner executes one scenario attempt. *automation.Runner
// implements it.
type ScenarioRunner interface {
	Run(ctx context.Context, sc *automation.Scenario, t automation.Target) (automation.Outcome, error)
}

// Config describes one task.
type Config struct {
	// ID identifies the task; New generates one when empty.
	ID string

	Device   string
	Driver   automation.Driver
	Scenario *automation.Scenario

	// RetryBudget is the maximum number of attempts (>= 1).
	RetryBudget int

	// Backoff is the pause between attempts; zero uses DefaultBackoff.
	Backoff time.Duration

	// Events receives task and step events. Nil discards them.
	Events events.Emitter
}

// Result is a task's final report.
type Result struct {
	TaskID   string
	Device   string
	Scenario automation.Kind

	// State is StateSuccess, StateFailed or StateCancelled.
	State    State
	Attempts int

	// FailedStep and Err describe the last failed attempt.
	FailedStep string
	Err        error

	// Payload is set on success.
	Payload map[string]string

	// Steps lists every executed step across all attempts.
	Steps []StepTiming

	Started  time.Time
	Finished time.Time
}

// StepTiming is a step report tagged with the attempt that produced it.
type StepTiming struct {
	Attempt int
	automation.StepReport
}

// Elapsed returns the task's wall-clock duration.
func (r Result) Elapsed() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Task is one worker. Its lifecycle state is mutated only by the goroutine
// running Run; other goroutines may read it and call Cancel.
type Task struct {
	cfg    Config
	runner ScenarioRunner
	events events.Emitter
	logger Logger

	mu        sync.Mutex
	state     State
	attempts  int
	started   bool
	cancelled bool
	cancel    context.CancelFunc
	result    Result

	done chan struct{}
}

// New validates cfg and returns an idle task.
func New(cfg Config, runner ScenarioRunner) (*Task, error) {
	switch {
	case runner == nil:
		return nil, fmt.Errorf("%w: runner is required", ErrInvalidConfig)
	case cfg.Driver == nil:
		return nil, fmt.Errorf("%w: driver is required", ErrInvalidConfig)
	case cfg.Scenario == nil:
		return nil, fmt.Errorf("%w: scenario is required", ErrInvalidConfig)
	case cfg.Device == "":
		return nil, fmt.Errorf("%w: device is required", ErrInvalidConfig)
	case cfg.RetryBudget < 1:
		return nil, fmt.Errorf("%w: retry budget must be at least 1", ErrInvalidConfig)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}

	var emitter events.Emitter = events.Discard
	if cfg.Events != nil {
		emitter = cfg.Events
	}

	return &Task{
		cfg:    cfg,
		runner: runner,
		events: events.Scoped{
			Next:     emitter,
			TaskID:   cfg.ID,
			Device:   cfg.Device,
			Scenario: string(cfg.Scenario.Kind),
		},
		logger: noopLogger{},
		state:  StateIdle,
		done:   make(chan struct{}),
	}, nil
}

// SetLogger sets the logger for the task. Call before Run.
func (t *Task) SetLogger(logger Logger) {
	t.logger = logger
}

// ID returns the task ID.
func (t *Task) ID() string { return t.cfg.ID }

// Device returns the device the task drives.
func (t *Task) Device() string { return t.cfg.Device }

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Attempts returns the number of attempts started so far.
func (t *Task) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// Done is closed once the task reaches StateFinished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Result returns the final result once Done is closed.
func (t *Task) Result() (Result, bool) {
	select {
	case <-t.done:
	default:
		return Result{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, true
}

// Cancel requests cancellation. It does not wait; use Done. Safe to call
// any number of times, before or during Run.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	if t.cancel != nil {
		t.cancel()
	}
}

// Run executes the task until it finishes and returns its result. The
// task is cancelled when ctx is done or Cancel is called; the in-flight
// attempt is abandoned and no further gestures are issued.
func (t *Task) Run(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return Result{}, ErrAlreadyStarted
	}
	t.started = true
	t.cancel = cancel
	if t.cancelled {
		cancel()
	}
	t.mu.Unlock()

	res := Result{
		TaskID:   t.cfg.ID,
		Device:   t.cfg.Device,
		Scenario: t.cfg.Scenario.Kind,
		Started:  time.Now(),
	}

	if ctx.Err() != nil {
		t.set(StateIdle, StateCancelled)
		return t.finish(res, StateCancelled), nil
	}

	t.set(StateIdle, StateRunning)
	t.events.Emit(events.Event{Type: events.TaskStarted, State: string(StateRunning)})
	t.logger.Info("task started", "device", t.cfg.Device, "scenario", t.cfg.Scenario.Kind, "retry_budget", t.cfg.RetryBudget)

	for {
		if ctx.Err() != nil {
			t.set(StateRunning, StateCancelled)
			return t.finish(res, StateCancelled), nil
		}

		attempt := t.nextAttempt()
		res.Attempts = attempt
		t.events.Emit(events.Event{Type: events.AttemptStarted, Attempt: attempt})

		out, err := t.runner.Run(ctx, t.cfg.Scenario, automation.Target{
			Device:  t.cfg.Device,
			Driver:  t.cfg.Driver,
			Attempt: attempt,
			Events:  t.events,
		})
		for _, sr := range out.Steps {
			res.Steps = append(res.Steps, StepTiming{Attempt: attempt, StepReport: sr})
		}
		if err != nil || ctx.Err() != nil {
			t.set(StateRunning, StateCancelled)
			return t.finish(res, StateCancelled), nil
		}

		if out.Success {
			res.Payload = out.Payload
			res.FailedStep, res.Err = "", nil
			t.set(StateRunning, StateSuccess)
			return t.finish(res, StateSuccess), nil
		}

		res.FailedStep, res.Err = out.FailedStep, out.Err
		if attempt >= t.cfg.RetryBudget {
			t.set(StateRunning, StateFailed)
			return t.finish(res, StateFailed), nil
		}

		t.set(StateRunning, StateRetrying)
		t.events.Emit(events.Event{
			Type:    events.AttemptRetried,
			Attempt: attempt,
			Step:    out.FailedStep,
			State:   string(StateRetrying),
			Error:   errString(out.Err),
		})
		t.logger.Warn("attempt failed, retrying",
			"device", t.cfg.Device,
			"attempt", attempt,
			"retry_budget", t.cfg.RetryBudget,
			"step", out.FailedStep,
			"error", out.Err,
			"backoff", t.cfg.Backoff,
		)

		if err := poll.Sleep(ctx, t.cfg.Backoff); err != nil {
			t.set(StateRetrying, StateCancelled)
			return t.finish(res, StateCancelled), nil
		}
		t.set(StateRetrying, StateRunning)
	}
}

func (t *Task) nextAttempt() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++
	return t.attempts
}

// set applies a transition. An illegal transition is a programming error.
func (t *Task) set(from, to State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := transition(&t.state, from, to); err != nil {
		panic(err)
	}
}

func (t *Task) finish(res Result, outcome State) Result {
	res.State = outcome
	res.Finished = time.Now()

	t.mu.Lock()
	if err := transition(&t.state, outcome, StateFinished); err != nil {
		t.mu.Unlock()
		panic(err)
	}
	t.result = res
	t.mu.Unlock()

	t.events.Emit(events.Event{
		Type:    events.TaskFinished,
		Attempt: res.Attempts,
		Step:    res.FailedStep,
		State:   string(outcome),
		Payload: res.Payload,
		Elapsed: res.Elapsed(),
		Error:   errString(res.Err),
	})

	switch outcome {
	case StateSuccess:
		t.logger.Info("task succeeded", "device", t.cfg.Device, "attempts", res.Attempts, "elapsed", res.Elapsed())
	case StateFailed:
		t.logger.Warn("task failed", "device", t.cfg.Device, "attempts", res.Attempts, "step", res.FailedStep, "error", res.Err)
	default:
		t.logger.Info("task cancelled", "device", t.cfg.Device, "attempts", res.Attempts)
	}

	close(t.done)
	return res
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
