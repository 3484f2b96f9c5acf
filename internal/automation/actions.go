package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/packpilot/internal/poll"
	"github.com/nerrad567/packpilot/internal/vision"
)

// act performs one action. at is the matched anchor centre, or the zero
// point for anchorless steps.
func (a *attempt) act(ctx context.Context, act Action, at vision.Point) error {
	d := a.t.Driver

	switch v := act.(type) {
	case TapAnchor:
		return a.repeatGesture(ctx, "tap", v.Times, v.Interval, func() error {
			return d.Tap(ctx, at.X, at.Y)
		})
	case Tap:
		return a.repeatGesture(ctx, "tap", v.Times, v.Interval, func() error {
			return d.Tap(ctx, v.X, v.Y)
		})
	case Swipe:
		return a.repeatGesture(ctx, "swipe", v.Times, v.Interval, func() error {
			return d.Swipe(ctx, v.X1, v.Y1, v.X2, v.Y2, v.Duration)
		})
	case InputText:
		return a.gesture(ctx, "input", 0, func() error {
			return d.InputText(ctx, v.Text)
		})
	case InputResult:
		text, ok := a.payload[v.Key]
		if !ok {
			return fmt.Errorf("%w: no value for %q", ErrReadFailed, v.Key)
		}
		return a.gesture(ctx, "input", 0, func() error {
			return d.InputText(ctx, text)
		})
	case Wait:
		return poll.Sleep(ctx, v.Duration)
	case StartApp:
		return a.app(ctx, "start_app", func(c AppController) error {
			return c.StartApp(ctx, v.Package, v.Activity)
		})
	case StopApp:
		return a.app(ctx, "stop_app", func(c AppController) error {
			return c.StopApp(ctx, v.Package)
		})
	case RemoveFile:
		return a.app(ctx, "remove_file", func(c AppController) error {
			return c.RemoveFile(ctx, v.Path)
		})
	default:
		return fmt.Errorf("%w: %w: %T", ErrActionFailed, ErrUnsupportedAction, act)
	}
}

func (a *attempt) repeatGesture(ctx context.Context, name string, times int, interval time.Duration, fn func() error) error {
	for range max(times, 1) {
		if err := a.gesture(ctx, name, interval, fn); err != nil {
			return err
		}
	}
	return nil
}

// gesture issues fn unless ctx is done, then waits for the screen to
// settle. A zero pause uses the runner's settle delay.
func (a *attempt) gesture(ctx context.Context, name string, pause time.Duration, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %w", ErrActionFailed, name, err)
	}
	if pause <= 0 {
		pause = a.r.opts.SettleDelay
	}
	return poll.Sleep(ctx, pause)
}

func (a *attempt) app(ctx context.Context, name string, fn func(AppController) error) error {
	c, ok := a.t.Driver.(AppController)
	if !ok {
		return fmt.Errorf("%w: %s: %w", ErrActionFailed, name, ErrUnsupportedAction)
	}
	return a.gesture(ctx, name, 0, func() error { return fn(c) })
}
