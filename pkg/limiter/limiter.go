package limiter

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrReleaseWithoutAcquire is returned on a Release that has no matching Acquire.
var ErrReleaseWithoutAcquire = errors.New("limiter: release without matching acquire")

// Limiter is a fixed-capacity admission gate for concurrent backend calls.
// Callers beyond the capacity block in Acquire; blocked goroutines are admitted
// in FIFO order by the runtime's channel waiter queue.
type Limiter struct {
	name  string
	slots chan struct{}
}

// New creates a Limiter with the given capacity. Capacity must be positive.
func New(name string, capacity int) (*Limiter, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("limiter %q: capacity must be positive, got %d", name, capacity)
	}
	return &Limiter{
		name:  name,
		slots: make(chan struct{}, capacity),
	}, nil
}

// Acquire takes one slot, blocking while the limiter is at capacity.
// It returns the context error if ctx is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	default:
	}

	log.Debug().Str("limiter", l.name).Int("capacity", cap(l.slots)).Msg("Limiter saturated, queueing")

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns one slot. Every successful Acquire must be paired with exactly
// one Release; prefer Do, which guarantees the pairing.
func (l *Limiter) Release() {
	select {
	case <-l.slots:
	default:
		// A stray Release indicates a programming error; log loudly instead of
		// corrupting the gate.
		log.Error().Str("limiter", l.name).Msg(ErrReleaseWithoutAcquire.Error())
	}
}

// Do runs op under one slot. The slot is released even when op returns an error
// or panics.
func (l *Limiter) Do(ctx context.Context, op func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return op(ctx)
}

// InFlight reports how many slots are currently taken. Intended for metrics and
// tests; the value is immediately stale.
func (l *Limiter) InFlight() int { return len(l.slots) }

// Capacity returns the fixed slot count.
func (l *Limiter) Capacity() int { return cap(l.slots) }
