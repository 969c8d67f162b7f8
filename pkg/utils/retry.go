package utils

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
)

// Backoff retries an operation with capped exponential delays. The zero
// value runs the operation once.
type Backoff struct {
	Attempts int           // total tries, first one included
	Base     time.Duration // wait after the first failure
	Cap      time.Duration // upper bound for any single wait
	Factor   float64       // growth per attempt; values below 1 mean 2
	Jitter   float64       // random spread as a fraction of the wait, 0 disables

	// Permanent reports failures that retrying cannot fix. Nil treats
	// every failure as transient.
	Permanent func(error) bool
}

// StoreBackoff is used while connecting to MongoDB and Redis at startup,
// when either may still be coming up next to the service.
func StoreBackoff() Backoff {
	return Backoff{
		Attempts: 5,
		Base:     100 * time.Millisecond,
		Cap:      3 * time.Second,
		Factor:   2,
		Jitter:   0.25,
	}
}

// Do calls fn until it succeeds, fails permanently, runs out of attempts
// or ctx ends. op names the operation in logs and errors. Each call gets
// ctx, so per-try deadlines belong inside fn.
//
// Example:
//
//	err := utils.StoreBackoff().Do(ctx, "redis ping", func(ctx context.Context) error {
//	    return client.Ping(ctx).Err()
//	})
func (b Backoff) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := max(b.Attempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 1 {
				log.Info().Str("op", op).Int("attempt", attempt).Msg("Recovered after retry")
			}
			return nil
		}

		if b.Permanent != nil && b.Permanent(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if attempt == attempts {
			break
		}

		wait := b.wait(attempt)
		log.Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Int("attempts", attempts).
			Dur("wait", wait).
			Msg("Attempt failed, backing off")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: gave up waiting: %w", op, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, err)
}

// wait returns the pause after the given failed attempt, counted from 1.
func (b Backoff) wait(attempt int) time.Duration {
	factor := b.Factor
	if factor < 1 {
		factor = 2
	}

	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= factor
		if b.Cap > 0 && d >= float64(b.Cap) {
			break
		}
	}
	if b.Cap > 0 && d > float64(b.Cap) {
		d = float64(b.Cap)
	}

	if b.Jitter > 0 {
		d += d * b.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}
