package events

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the dispatcher channel capacity used when none is given.
const DefaultBuffer = 256

// dropLogEvery limits overflow warnings to one per this many dropped events.
const dropLogEvery = 100

// Logger is the logging interface used by the dispatcher and LogSink.
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

// Dispatcher fans events out to sinks from a single goroutine.
//
// Emit never blocks: when the buffer is full because a sink is slow, the
// event is dropped and counted, so workers are never held at an emit
// point. After Close, Emit drops events silently.
type Dispatcher struct {
	ch      chan Event
	sinks   []Sink
	dropped atomic.Int64

	logger   Logger
	loggerMu sync.RWMutex

	// mu guards closed against sends on a closed channel.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a dispatcher goroutine delivering to sinks.
func NewDispatcher(buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	d := &Dispatcher{
		ch:     make(chan Event, buffer),
		sinks:  sinks,
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// SetLogger sets the logger used to report sink panics and overflow.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

// Emit queues e for delivery, or drops it when the buffer is full.
func (d *Dispatcher) Emit(e Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- e:
	default:
		if n := d.dropped.Add(1); n == 1 || n%dropLogEvery == 0 {
			d.log().Warn("event buffer full, dropping events", "type", e.Type, "device", e.Device, "dropped", n)
		}
	}
}

// Dropped returns the number of events discarded on a full buffer.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) log() Logger {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	return d.logger
}

// Close stops accepting events, delivers everything already queued and
// waits for the dispatcher goroutine to exit. It is safe to call twice.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.ch {
		for _, s := range d.sinks {
			d.deliver(s, e)
		}
	}
}

func (d *Dispatcher) deliver(s Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log().Error("event sink panic recovered", "type", e.Type, "device", e.Device, "panic", r)
		}
	}()
	s.Handle(e)
}
