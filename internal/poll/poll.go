// Package poll implements the bounded "capture, test, wait, repeat"
// primitive every anchor search goes through.
package poll

import (
	"context"
	"image"
	"time"

	"github.com/nerrad567/packpilot/internal/vision"
)

// CaptureFunc returns one fresh frame.
type CaptureFunc func(ctx context.Context) (image.Image, error)

// QueryFunc evaluates a frame. It must be pure.
type QueryFunc func(frame image.Image) (vision.Point, bool)

// Options bounds one poll.
type Options struct {
	MaxAttempts int
	Delay       time.Duration
}

// Result describes how a poll ended.
type Result struct {
	Found bool
	Point vision.Point

	// Attempts is the number of capture calls made.
	Attempts int

	// CaptureErrors counts attempts whose capture failed.
	CaptureErrors int

	// LastErr is the most recent capture error, if any.
	LastErr error
}

// Await captures and queries up to opts.MaxAttempts times, sleeping
// opts.Delay between attempts, and returns as soon as the query matches.
//
// Exhaustion is reported through Result.Found, not an error. A failed
// capture counts as one unsuccessful attempt. The only error returned is
// ctx.Err(): cancellation is checked before each capture and interrupts
// the delay, so it takes effect within one delay interval.
func Await(ctx context.Context, capture CaptureFunc, query QueryFunc, opts Options) (Result, error) {
	attempts := max(opts.MaxAttempts, 1)
	var res Result

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Attempts++
		frame, err := capture(ctx)
		switch {
		case err != nil:
			res.CaptureErrors++
			res.LastErr = err
		case frame != nil:
			if pt, ok := query(frame); ok {
				res.Found = true
				res.Point = pt
				return res, nil
			}
		}

		if i == attempts-1 {
			break
		}
		if err := Sleep(ctx, opts.Delay); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
