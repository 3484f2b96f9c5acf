package automation

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/nerrad567/packpilot/internal/events"
)

// mockDriver serves scripted frames and records gestures.
type mockDriver struct {
	mu       sync.Mutex
	frame    func(n int) image.Image // n is the 1-based capture number
	captures int
	calls    []string
	tapErr   error
	onTap    func(x, y int)
}

func solid(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, 255
	}
	return img
}

func newMockDriver(img image.Image) *mockDriver {
	return &mockDriver{frame: func(int) image.Image { return img }}
}

func (m *mockDriver) Capture(_ context.Context) (image.Image, error) {
	m.mu.Lock()
	m.captures++
	n := m.captures
	m.mu.Unlock()
	return m.frame(n), nil
}

func (m *mockDriver) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockDriver) Tap(_ context.Context, x, y int) error {
	if m.tapErr != nil {
		return m.tapErr
	}
	m.record(fmt.Sprintf("tap %d,%d", x, y))
	if m.onTap != nil {
		m.onTap(x, y)
	}
	return nil
}

func (m *mockDriver) Swipe(_ context.Context, x1, y1, x2, y2 int, _ time.Duration) error {
	m.record(fmt.Sprintf("swipe %d,%d-%d,%d", x1, y1, x2, y2))
	return nil
}

func (m *mockDriver) InputText(_ context.Context, text string) error {
	m.record("input " + text)
	return nil
}

func (m *mockDriver) captureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}

func (m *mockDriver) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// appDriver adds AppController to mockDriver.
type appDriver struct {
	*mockDriver
}

func (a appDriver) StartApp(_ context.Context, pkg, activity string) error {
	a.record("start " + pkg + "/" + activity)
	return nil
}

func (a appDriver) StopApp(_ context.Context, pkg string) error {
	a.record("stop " + pkg)
	return nil
}

func (a appDriver) RemoveFile(_ context.Context, path string) error {
	a.record("rm " + path)
	return nil
}

// recordingEmitter collects emitted events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingEmitter) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type staticNames string

func (s staticNames) Nickname() (string, error) { return string(s), nil }
