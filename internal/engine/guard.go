package engine

import (
	"context"
	"sync"
)

// Guard serializes mutations to shared in-process state. At most one
// exclusive-region body runs at a time; waiters are released in strict FIFO
// order so no caller starves. It does not replace backend atomicity — the
// storage driver owns durability, the guard owns in-process invariants.
type Guard struct {
	mu    sync.Mutex
	busy  bool
	queue []chan struct{}
}

// NewGuard returns an idle guard.
func NewGuard() *Guard {
	return &Guard{}
}

// RunExclusive runs fn in the exclusive region. A caller whose ctx is
// cancelled while queued leaves the queue without running fn; once fn has
// started it always runs to completion.
func (g *Guard) RunExclusive(ctx context.Context, fn func() error) error {
	g.mu.Lock()
	if !g.busy {
		g.busy = true
		g.mu.Unlock()
	} else {
		ch := make(chan struct{})
		g.queue = append(g.queue, ch)
		g.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			g.mu.Lock()
			for i, c := range g.queue {
				if c == ch {
					g.queue = append(g.queue[:i], g.queue[i+1:]...)
					g.mu.Unlock()
					return ctx.Err()
				}
			}
			g.mu.Unlock()
			// Not in the queue: the region was already handed to us
			// concurrently with cancellation. Pass it on.
			g.release()
			return ctx.Err()
		}
	}

	defer g.release()
	return fn()
}

func (g *Guard) release() {
	g.mu.Lock()
	if len(g.queue) > 0 {
		ch := g.queue[0]
		g.queue = g.queue[1:]
		g.mu.Unlock()
		close(ch)
		return
	}
	g.busy = false
	g.mu.Unlock()
}
