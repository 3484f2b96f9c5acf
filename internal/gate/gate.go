// Package gate provides a named mutual-exclusion resource shared by all
// workers, used to serialise access to the host clipboard.
//
// Unlike a sync.Mutex, acquisition honours context cancellation, the
// current holder is observable, and waiters can block until the gate is
// free without taking it.
package gate

import (
	"context"
	"sync"
)

// Gate allows at most one holder at a time.
type Gate struct {
	name string
	sem  chan struct{}

	mu     sync.Mutex
	holder string
	free   chan struct{} // closed while nobody holds the gate
}

// New returns an unheld gate.
func New(name string) *Gate {
	free := make(chan struct{})
	close(free)
	return &Gate{
		name: name,
		sem:  make(chan struct{}, 1),
		free: free,
	}
}

// Name returns the resource name given to New.
func (g *Gate) Name() string {
	return g.name
}

// Acquire blocks until the gate is free or ctx is done. The returned
// release function is idempotent and must be called exactly when the
// critical section ends.
func (g *Gate) Acquire(ctx context.Context, holder string) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.take(holder), nil
}

// TryAcquire takes the gate only if it is free right now.
func (g *Gate) TryAcquire(holder string) (release func(), ok bool) {
	select {
	case g.sem <- struct{}{}:
		return g.take(holder), true
	default:
		return nil, false
	}
}

func (g *Gate) take(holder string) func() {
	g.mu.Lock()
	g.holder = holder
	g.free = make(chan struct{})
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.holder = ""
			close(g.free)
			g.mu.Unlock()
			<-g.sem
		})
	}
}

// Holder returns the identity of the current holder.
func (g *Gate) Holder() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder, g.holder != ""
}

// Free returns a channel that is closed while the gate is unheld. The
// channel observed for one holding period is closed on its release.
func (g *Gate) Free() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.free
}

// WaitFree blocks until the gate is released or ctx is done. It does not
// acquire the gate.
func (g *Gate) WaitFree(ctx context.Context) error {
	select {
	case <-g.Free():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
