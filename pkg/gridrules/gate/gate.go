// Package gate provides a broadcast signal that tasks wait on cooperatively.
//
// The engine uses one gate for start-up readiness and one for pause. Opening
// a gate releases every waiter at once; closing it makes later waiters block
// again. Waiting never takes ownership of anything.
package gate

import (
	"context"
	"sync"
)

type Gate struct {
	mu     sync.Mutex
	open   bool
	opened chan struct{} // closed while the gate is open
}

func New(open bool) *Gate {
	g := &Gate{opened: make(chan struct{})}
	if open {
		g.open = true
		close(g.opened)
	}
	return g
}

// Open releases all current and future waiters until Close is called. It
// reports whether the gate was closed before the call.
func (g *Gate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return false
	}
	g.open = true
	close(g.opened)
	return true
}

// Close reports whether the gate was open before the call.
func (g *Gate) Close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return false
	}
	g.open = false
	g.opened = make(chan struct{})
	return true
}

func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Done returns a channel that is closed once the gate is open. A later Close
// does not affect a channel already returned.
func (g *Gate) Done() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opened
}

// Wait blocks until the gate is open or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
