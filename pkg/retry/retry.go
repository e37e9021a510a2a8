package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
)

// Policy controls the retry loop for transient failures.
type Policy struct {
	MaxRetries int           // retries on top of the initial attempt
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap for the exponential growth
}

// Classifier reports whether an error is transient and worth retrying.
// Non-retryable errors propagate immediately without delay.
type Classifier func(error) bool

// Do runs op up to MaxRetries+1 times, sleeping an exponentially growing,
// jittered delay between attempts. Context cancellation aborts both the sleep
// and the loop. The last error is returned when all attempts fail.
func Do(ctx context.Context, p Policy, retryable Classifier, op func(context.Context) error) error {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxRetries {
			break
		}

		delay := p.delay(attempt)
		log.Debug().Err(lastErr).Int("attempt", attempt+1).Dur("delay", delay).Msg("Transient failure, backing off")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// delay computes the backoff before retry number attempt+1.
// The jitter draws from [exp/2, exp], so with doubling growth successive delays
// never decrease: the previous attempt's maximum equals the next one's minimum.
func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond // prevent a hot loop on a zero policy
	}

	exp := base
	for i := 0; i < attempt; i++ {
		exp *= 2
		if p.MaxDelay > 0 && exp >= p.MaxDelay {
			exp = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && exp > p.MaxDelay {
		exp = p.MaxDelay
	}

	half := exp / 2
	if half <= 0 {
		return exp
	}
	return half + time.Duration(rand.Int64N(int64(half)+1)) // #nosec G404 -- non-cryptographic jitter
}
