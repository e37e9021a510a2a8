package limiter_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"talk-trainer-server/pkg/limiter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsNonPositiveCapacity(t *testing.T) {
	_, err := limiter.New("bad", 0)
	assert.Error(t, err)
	_, err = limiter.New("bad", -1)
	assert.Error(t, err)
}

func TestDo_ReleasesOnError(t *testing.T) {
	l, err := limiter.New("turns", 2)
	require.NoError(t, err)

	wantErr := errors.New("backend exploded")
	gotErr := l.Do(context.Background(), func(context.Context) error {
		assert.Equal(t, 1, l.InFlight())
		return wantErr
	})
	assert.ErrorIs(t, gotErr, wantErr)
	assert.Equal(t, 0, l.InFlight(), "slot must be released after a failing op")
}

func TestDo_ReleasesOnPanic(t *testing.T) {
	l, err := limiter.New("turns", 1)
	require.NoError(t, err)

	func() {
		defer func() { _ = recover() }()
		_ = l.Do(context.Background(), func(context.Context) error {
			panic("op panicked")
		})
	}()
	assert.Equal(t, 0, l.InFlight(), "slot must be released after a panicking op")
}

func TestAcquire_ContextCancelledWhileQueued(t *testing.T) {
	l, err := limiter.New("turns", 1)
	require.NoError(t, err)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.InFlight())
}

// 25 concurrent ops against a 20-slot limiter: exactly 20 run immediately,
// 5 queue, all 25 complete, and the sampled in-flight count never exceeds 20.
func TestDo_TwentyFiveCallersTwentySlots(t *testing.T) {
	const capacity = 20
	const callers = 25

	l, err := limiter.New("turns", capacity)
	require.NoError(t, err)

	var (
		active    atomic.Int32
		maxActive atomic.Int32
		completed atomic.Int32
	)
	proceed := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), func(context.Context) error {
				cur := active.Add(1)
				for {
					old := maxActive.Load()
					if cur <= old || maxActive.CompareAndSwap(old, cur) {
						break
					}
				}
				<-proceed
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
			completed.Add(1)
		}()
	}

	// Wait until the gate is saturated: 20 in flight, 5 queued.
	require.Eventually(t, func() bool {
		return active.Load() == capacity
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, capacity, l.InFlight())

	close(proceed)
	wg.Wait()

	assert.Equal(t, int32(callers), completed.Load(), "all callers must complete")
	assert.Equal(t, int32(capacity), maxActive.Load(), "in-flight ops must never exceed capacity")
	assert.Equal(t, 0, l.InFlight())
}
