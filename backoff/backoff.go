// Package backoff wraps storage calls in a bounded exponential retry policy.
package backoff

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"

	"gorealisbridge/metrics"
)

// Policy bounds the retries of a single call.
type Policy struct {
	Attempts     uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:     5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.Attempts == 0 {
		p.Attempts = def.Attempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	return p
}

// Do runs fn until it succeeds, returns an error transient rejects, or the
// attempts are used up. The returned error is the last one fn produced, or
// ctx.Err() if the context ended while waiting.
func Do(ctx context.Context, p Policy, logger zerolog.Logger, op string, transient func(error) bool, fn func() error) error {
	p = p.normalized()

	return retry.Do(
		func() error {
			err := fn()
			if err != nil && !transient(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(p.Attempts),
		retry.Delay(p.InitialDelay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if n+1 >= p.Attempts {
				return
			}
			metrics.StorageRetries.WithLabelValues(op).Inc()
			logger.Warn().
				Err(err).
				Str("operation", op).
				Uint("attempt", n+1).
				Uint("max_attempts", p.Attempts).
				Msg("transient storage failure, retrying")
		}),
	)
}
