// Package resilience provides generic retry and circuit-breaker primitives
// for calls to external collaborators.
//
// Retry classifies each failure through errclass and only re-attempts
// retryable classes. The circuit breaker isolates failures per
// (collaborator, tenant) key so one tenant's outage cannot trip another's.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/pilarlabs/studio-operator/internal/pkg/errclass"
)

// RetryConfig controls the exponential backoff schedule.
type RetryConfig struct {
	// MaxRetries is the number of re-attempts after the initial try.
	// MaxRetries=3 means up to 4 invocations total.
	MaxRetries int
	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// Multiplier grows the delay per attempt.
	Multiplier float64
	// Jitter applies a uniform ±25% spread to each delay when true.
	Jitter bool
	// OnRetry, if set, is invoked before each retry sleep completes with the
	// 0-indexed attempt that just failed, the delay chosen, and the error.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig provides the standard schedule: 3 retries, 1s initial
// delay doubling to a 30s cap, with jitter.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:   3,
	InitialDelay: 1 * time.Second,
	MaxDelay:     30 * time.Second,
	Multiplier:   2.0,
	Jitter:       true,
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultRetryConfig.MaxRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultRetryConfig.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if c.Multiplier <= 1 {
		c.Multiplier = DefaultRetryConfig.Multiplier
	}
	return c
}

// Delay returns the backoff before retry number attempt (0-indexed), before
// jitter: min(InitialDelay * Multiplier^attempt, MaxDelay).
func (c RetryConfig) Delay(attempt int) time.Duration {
	d := time.Duration(float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt)))
	if d > c.MaxDelay || d <= 0 {
		d = c.MaxDelay
	}
	return d
}

func (c RetryConfig) jittered(d time.Duration) time.Duration {
	if !c.Jitter {
		return d
	}
	// Uniform spread in [0.75d, 1.25d].
	spread := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * spread)
}

// Do runs op with retry. On failure the error is classified; non-retryable
// classes abort immediately. The last underlying error is returned as-is,
// never wrapped, so callers can log the original failure.
func Do(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !errclass.Classify(lastErr).Retryable {
			return lastErr
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.jittered(cfg.Delay(attempt))
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		}
	}
	return lastErr
}

// DoValue is Do for operations that return a value alongside the error.
func DoValue[T any](ctx context.Context, cfg RetryConfig, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	return out, err
}
