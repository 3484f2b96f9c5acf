package adb

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"
	"time"
)

// Driver issues commands to one device. It satisfies automation.Driver
// and automation.AppController.
type Driver struct {
	client *Client
	serial string
}

// NewDriver binds client to serial.
func NewDriver(client *Client, serial string) *Driver {
	return &Driver{client: client, serial: serial}
}

// Serial returns the device serial.
func (d *Driver) Serial() string {
	return d.serial
}

// Capture takes a screenshot with "exec-out screencap -p" and decodes it.
// Any failure is reported as ErrCaptureUnavailable.
func (d *Driver) Capture(ctx context.Context) (image.Image, error) {
	out, err := d.client.Run(ctx, "-s", d.serial, "exec-out", "screencap", "-p")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrCaptureUnavailable)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding frame: %w", ErrCaptureUnavailable, err)
	}
	return img, nil
}

// Tap taps (x, y).
func (d *Driver) Tap(ctx context.Context, x, y int) error {
	_, err := d.client.Shell(ctx, d.serial, "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

// Swipe drags from (x1, y1) to (x2, y2) over dur.
func (d *Driver) Swipe(ctx context.Context, x1, y1, x2, y2 int, dur time.Duration) error {
	_, err := d.client.Shell(ctx, d.serial, "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.FormatInt(dur.Milliseconds(), 10))
	return err
}

// InputText types text into the focused field.
func (d *Driver) InputText(ctx context.Context, text string) error {
	_, err := d.client.Shell(ctx, d.serial, "input", "text", escapeInput(text))
	return err
}

// escapeInput encodes text for "input text": spaces become %s and shell
// metacharacters are backslash-escaped.
func escapeInput(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r == ' ':
			b.WriteString("%s")
		case strings.ContainsRune(`\'"()<>|;&*~$`+"`", r):
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StartApp launches pkg/activity.
func (d *Driver) StartApp(ctx context.Context, pkg, activity string) error {
	_, err := d.client.Shell(ctx, d.serial, "am", "start", "-n", pkg+"/"+activity)
	return err
}

// StopApp force-stops pkg.
func (d *Driver) StopApp(ctx context.Context, pkg string) error {
	_, err := d.client.Shell(ctx, d.serial, "am", "force-stop", pkg)
	return err
}

// RemoveFile deletes path on the device. A missing file is not an error.
func (d *Driver) RemoveFile(ctx context.Context, path string) error {
	_, err := d.client.Shell(ctx, d.serial, "rm", "-f", shellQuote(path))
	return err
}

// shellQuote single-quotes s for the device shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
