package automation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/nerrad567/packpilot/internal/events"
	"github.com/nerrad567/packpilot/internal/gate"
	"github.com/nerrad567/packpilot/internal/poll"
	"github.com/nerrad567/packpilot/internal/vision"
)

// Default runner settings.
const (
	DefaultPollAttempts = 100
	DefaultPollDelay    = 100 * time.Millisecond
	DefaultSettleDelay  = 100 * time.Millisecond
	DefaultThreshold    = 0.8
)

// Options tunes a Runner. Zero fields take the package defaults.
type Options struct {
	// PollAttempts is the capture budget of steps that do not set Attempts.
	PollAttempts int

	// PollDelay is the pause between captures of one poll.
	PollDelay time.Duration

	// SettleDelay is the pause after a gesture whose action sets no
	// Interval. Negative disables it.
	SettleDelay time.Duration

	// DefaultThreshold applies to template anchors with a zero Threshold.
	DefaultThreshold float64
}

func (o Options) withDefaults() Options {
	if o.PollAttempts <= 0 {
		o.PollAttempts = DefaultPollAttempts
	}
	if o.PollDelay <= 0 {
		o.PollDelay = DefaultPollDelay
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	} else if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.DefaultThreshold <= 0 || o.DefaultThreshold > 1 {
		o.DefaultThreshold = DefaultThreshold
	}
	return o
}

// Target is the device one attempt runs against.
type Target struct {
	Device  string
	Driver  Driver
	Attempt int

	// Events receives step-level events. Nil discards them.
	Events events.Emitter
}

// Runner executes scenarios. One Runner is shared by every worker; it
// keeps no per-attempt state.
type Runner struct {
	templates TemplateSource
	gate      *gate.Gate
	clipboard ClipboardReader
	names     NicknameSource
	opts      Options
	logger    Logger
}

// NewRunner creates a runner. clipboard and names may be nil when no
// scenario run by it reads from them; g may be nil when none is gated.
func NewRunner(templates TemplateSource, g *gate.Gate, clipboard ClipboardReader, names NicknameSource, opts Options) *Runner {
	return &Runner{
		templates: templates,
		gate:      g,
		clipboard: clipboard,
		names:     names,
		opts:      opts.withDefaults(),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// Options returns the effective options.
func (r *Runner) Options() Options {
	return r.opts
}

// Run executes one attempt of sc on t.
//
// Step failures are reported in the Outcome with a nil error. The error
// is non-nil only when ctx is cancelled, in which case no gesture is
// issued after cancellation was observed.
func (r *Runner) Run(ctx context.Context, sc *Scenario, t Target) (Outcome, error) {
	if t.Events == nil {
		t.Events = events.Discard
	}
	a := &attempt{
		r:       r,
		t:       t,
		kind:    sc.Kind,
		payload: make(map[string]string),
	}

	err := a.steps(ctx, sc.Steps)
	out := Outcome{
		Payload: a.payload,
		Steps:   a.reports,
	}

	var sf *stepFailure
	switch {
	case err == nil:
		out.Success = true
		return out, nil
	case errors.As(err, &sf):
		out.FailedStep = sf.step
		out.Err = sf.err
		return out, nil
	default:
		return out, err
	}
}

// stepFailure ends an attempt because of a step, not cancellation.
type stepFailure struct {
	step string
	err  error
}

func (f *stepFailure) Error() string { return fmt.Sprintf("step %s: %v", f.step, f.err) }
func (f *stepFailure) Unwrap() error { return f.err }

// attempt carries the mutable state of one Run call.
type attempt struct {
	r       *Runner
	t       Target
	kind    Kind
	payload map[string]string
	reports []StepReport
}

func (a *attempt) steps(ctx context.Context, steps []Step) error {
	for i := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.step(ctx, &steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *attempt) step(ctx context.Context, st *Step) error {
	start := time.Now()
	a.emit(events.Event{Type: events.StepStarted, Step: st.Name})

	var (
		polls int
		err   error
	)
	if st.Kind == KindRepeatUntil {
		polls, err = a.repeat(ctx, st)
	} else {
		polls, err = a.single(ctx, st)
	}

	elapsed := time.Since(start)
	report := StepReport{Name: st.Name, Polls: polls, Elapsed: elapsed}

	switch {
	case err == nil:
		report.Outcome = StepOutcomeCompleted
		a.emit(events.Event{Type: events.StepCompleted, Step: st.Name, Polls: polls, Elapsed: elapsed})
	case errors.Is(err, errSkipped):
		report.Outcome = StepOutcomeSkipped
		a.emit(events.Event{Type: events.StepSkipped, Step: st.Name, Polls: polls, Elapsed: elapsed})
		a.r.logger.Debug("optional step skipped", "device", a.t.Device, "step", st.Name, "polls", polls)
		err = nil
	case ctx.Err() != nil:
		// Cancelled: not a step failure.
		a.reports = append(a.reports, report)
		return ctx.Err()
	default:
		report.Outcome = StepOutcomeFailed
		var sf *stepFailure
		if errors.As(err, &sf) {
			// Failed inside a repeat body; already reported.
			a.reports = append(a.reports, report)
			return sf
		}
		sf = &stepFailure{step: st.Name, err: err}
		a.emit(events.Event{Type: events.StepFailed, Step: sf.step, Polls: polls, Elapsed: elapsed, Error: sf.err.Error()})
		a.r.logger.Warn("step failed", "device", a.t.Device, "scenario", a.kind, "step", sf.step, "error", sf.err)
		err = sf
	}

	a.reports = append(a.reports, report)
	return err
}

// errSkipped marks an optional step whose anchor was not found.
var errSkipped = errors.New("automation: step skipped")

func (a *attempt) single(ctx context.Context, st *Step) (int, error) {
	var (
		at    vision.Point
		polls int
	)
	if st.Anchor != nil {
		query, err := a.query(st.Anchor)
		if err != nil {
			return 0, err
		}
		res, err := poll.Await(ctx, a.t.Driver.Capture, query, poll.Options{
			MaxAttempts: a.budget(st),
			Delay:       a.r.opts.PollDelay,
		})
		polls = res.Attempts
		if err != nil {
			return polls, err
		}
		if !res.Found {
			if st.Optional {
				return polls, errSkipped
			}
			if res.LastErr != nil && res.CaptureErrors == res.Attempts {
				return polls, fmt.Errorf("%w: every capture failed: %w", ErrMatchTimeout, res.LastErr)
			}
			return polls, fmt.Errorf("%w after %d captures", ErrMatchTimeout, polls)
		}
		at = res.Point
	}

	if st.Read != nil && st.Read.Source == ReadNickname {
		if err := a.readNickname(st.Read.Key); err != nil {
			return polls, err
		}
	}

	if st.Kind == KindGatedPollAndRead {
		release, err := a.acquire(ctx)
		if err != nil {
			return polls, err
		}
		defer release()
	}

	for _, act := range st.Actions {
		if err := a.act(ctx, act, at); err != nil {
			return polls, err
		}
	}

	if st.Read != nil && st.Read.Source == ReadClipboard {
		if err := a.readClipboard(ctx, st.Read.Key); err != nil {
			return polls, err
		}
	}
	return polls, nil
}

// repeat runs a KindRepeatUntil step. Polls counts saturation checks.
func (a *attempt) repeat(ctx context.Context, st *Step) (int, error) {
	tmpl, err := a.r.templates.Lookup(st.Until.Key)
	if err != nil {
		return 0, err
	}
	threshold := a.threshold(st.Until.Threshold)

	for round := 1; round <= st.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return round - 1, err
		}
		frame, err := a.t.Driver.Capture(ctx)
		if err == nil && frame != nil {
			n := vision.CountMatches(vision.Grayscale(frame), tmpl, threshold, st.Until.YLimit)
			if n >= st.Until.Count {
				return round, nil
			}
		}
		if err := a.steps(ctx, st.Body); err != nil {
			return round, err
		}
	}

	if st.Optional {
		return st.MaxRounds, errSkipped
	}
	return st.MaxRounds, fmt.Errorf("%w: not saturated after %d rounds", ErrMatchTimeout, st.MaxRounds)
}

func (a *attempt) query(anchor Anchor) (poll.QueryFunc, error) {
	switch v := anchor.(type) {
	case TemplateAnchor:
		tmpl, err := a.r.templates.Lookup(v.Key)
		if err != nil {
			return nil, err
		}
		threshold := a.threshold(v.Threshold)
		return func(frame image.Image) (vision.Point, bool) {
			return vision.BestMatch(vision.Grayscale(frame), tmpl, threshold)
		}, nil
	case PixelAnchor:
		return func(frame image.Image) (vision.Point, bool) {
			return vision.FindPixel(frame, v.Color, v.Tolerance)
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown anchor %T", ErrInvalidStep, anchor)
	}
}

func (a *attempt) threshold(t float64) float64 {
	if t <= 0 {
		return a.r.opts.DefaultThreshold
	}
	return t
}

func (a *attempt) budget(st *Step) int {
	if st.Attempts > 0 {
		return st.Attempts
	}
	return a.r.opts.PollAttempts
}

func (a *attempt) acquire(ctx context.Context) (func(), error) {
	if a.r.gate == nil {
		return nil, fmt.Errorf("%w: no gate configured", ErrReadFailed)
	}
	release, err := a.r.gate.Acquire(ctx, a.t.Device)
	if err != nil {
		return nil, err
	}
	a.emit(events.Event{Type: events.GateAcquired})
	return func() {
		release()
		a.emit(events.Event{Type: events.GateReleased})
	}, nil
}

func (a *attempt) readNickname(key string) error {
	if a.r.names == nil {
		return fmt.Errorf("%w: no nickname source", ErrReadFailed)
	}
	name, err := a.r.names.Nickname()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	if name == "" {
		return fmt.Errorf("%w: empty nickname", ErrReadFailed)
	}
	a.payload[key] = name
	return nil
}

func (a *attempt) readClipboard(ctx context.Context, key string) error {
	if a.r.clipboard == nil {
		return fmt.Errorf("%w: no clipboard reader", ErrReadFailed)
	}
	v, err := a.r.clipboard.Read(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	if v == "" {
		return fmt.Errorf("%w: clipboard is empty", ErrReadFailed)
	}
	a.payload[key] = v
	return nil
}

func (a *attempt) emit(e events.Event) {
	e.Device = a.t.Device
	e.Scenario = string(a.kind)
	e.Attempt = a.t.Attempt
	a.t.Events.Emit(e)
}
