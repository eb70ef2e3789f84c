// Package breaker implements a circuit breaker around a slow or unavailable
// external dependency. While open, calls fail fast with ErrOpen instead of
// attempting the network call.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do while the circuit is open.
var ErrOpen = errors.New("circuit open")

// State of the breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes the breaker. All fields are externally configurable.
type Config struct {
	// Timeout bounds each wrapped call. Zero means no per-call timeout.
	Timeout time.Duration

	// ErrorThreshold is the error percentage (0-100] within the rolling
	// window that trips the breaker.
	ErrorThreshold float64

	// Window is the rolling window over which the error rate is computed.
	Window time.Duration

	// MinSamples is how many calls the window must contain before the
	// error rate is meaningful. Below this the breaker never trips.
	MinSamples int

	// ResetTimeout is how long the breaker stays open before allowing a
	// single half-open trial call.
	ResetTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:        3 * time.Second,
		ErrorThreshold: 50,
		Window:         30 * time.Second,
		MinSamples:     5,
		ResetTimeout:   15 * time.Second,
	}
}

type outcome struct {
	at     time.Time
	failed bool
}

// Breaker is safe for concurrent use. State transitions are reported through
// the optional OnStateChange hook.
type Breaker struct {
	cfg Config

	// OnStateChange, if set, observes every transition. Used to feed the
	// state gauge and trip counter.
	OnStateChange func(from, to State)

	mu       sync.Mutex
	state    State
	window   []outcome
	openedAt time.Time
	trialing bool // a half-open trial call is in flight

	// now is swappable for tests.
	now func() time.Time
}

// New creates a closed breaker with the given config.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: Closed, now: time.Now}
}

// Do runs fn through the breaker, applying the per-call timeout. While open
// it returns ErrOpen immediately. In half-open state exactly one trial call
// is admitted; others see ErrOpen until the trial resolves.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current state, accounting for reset-timeout expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return HalfOpen
	}
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()

	switch b.state {
	case Closed:
		b.mu.Unlock()
		return nil

	case Open:
		if b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
			b.transition(HalfOpen)
			b.trialing = true
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()
		return ErrOpen

	case HalfOpen:
		if b.trialing {
			b.mu.Unlock()
			return ErrOpen
		}
		b.trialing = true
		b.mu.Unlock()
		return nil
	}

	b.mu.Unlock()
	return ErrOpen
}

func (b *Breaker) record(err error) {
	b.mu.Lock()

	now := b.now()
	failed := err != nil

	if b.state == HalfOpen {
		b.trialing = false
		if failed {
			b.openedAt = now
			b.transition(Open)
		} else {
			b.window = nil
			b.transition(Closed)
		}
		b.mu.Unlock()
		return
	}

	// Closed: slide the window and re-evaluate the error rate.
	b.window = append(b.window, outcome{at: now, failed: failed})
	cutoff := now.Add(-b.cfg.Window)
	for len(b.window) > 0 && b.window[0].at.Before(cutoff) {
		b.window = b.window[1:]
	}

	total := len(b.window)
	if total < b.cfg.MinSamples {
		b.mu.Unlock()
		return
	}
	failures := 0
	for _, o := range b.window {
		if o.failed {
			failures++
		}
	}
	rate := float64(failures) / float64(total) * 100
	if rate >= b.cfg.ErrorThreshold {
		b.openedAt = now
		b.transition(Open)
	}
	b.mu.Unlock()
}

// transition changes state. Must be called with the lock held. The hook is
// invoked synchronously, so it must be fast and must not call back into the
// breaker.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}
