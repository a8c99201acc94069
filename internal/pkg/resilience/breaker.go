package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is rejected without invoking the
// wrapped operation. Callers distinguish "the op failed" from "we didn't even
// try" via errors.Is against this sentinel.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerState is the lifecycle state of one keyed breaker.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// BreakerOptions controls the shared thresholds for all keys in a registry.
type BreakerOptions struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Default 5.
	FailureThreshold int
	// ResetTimeout is how long an open breaker waits before allowing one
	// probe call (half-open). Default 60s.
	ResetTimeout time.Duration
}

func (o BreakerOptions) withDefaults() BreakerOptions {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
	if o.ResetTimeout <= 0 {
		o.ResetTimeout = 60 * time.Second
	}
	return o
}

type breakerEntry struct {
	state       BreakerState
	failures    int
	lastFailure time.Time
}

// BreakerRegistry owns circuit-breaker state for many keys. One long-lived
// instance is created at wiring time and injected wherever breaker protection
// is needed; there are no package-level globals, so tests can construct and
// discard registries freely.
//
// State is strictly per-process: a restart resets every breaker to closed.
type BreakerRegistry struct {
	opts BreakerOptions

	mu      sync.Mutex
	entries map[string]*breakerEntry

	now func() time.Time // swapped in tests
}

// NewBreakerRegistry creates an empty registry with the given options.
func NewBreakerRegistry(opts BreakerOptions) *BreakerRegistry {
	return &BreakerRegistry{
		opts:    opts.withDefaults(),
		entries: make(map[string]*breakerEntry),
		now:     time.Now,
	}
}

// Key builds the canonical breaker key for a collaborator/tenant pair, e.g.
// "twilio:ws_123". Per-tenant keys keep one tenant's failures from tripping
// the breaker for another tenant on the same collaborator.
func Key(collaborator, tenantID string) string {
	return fmt.Sprintf("%s:%s", collaborator, tenantID)
}

// Execute runs op under the breaker for key. When the breaker is open and the
// reset timeout has not elapsed, it fails fast with ErrCircuitOpen without
// invoking op; the rejection is not counted against the key.
func (r *BreakerRegistry) Execute(ctx context.Context, key string, op func(ctx context.Context) error) error {
	if err := r.allow(key); err != nil {
		return err
	}

	err := op(ctx)
	r.record(key, err)
	return err
}

// State returns the current state for key. Unknown keys are closed.
func (r *BreakerRegistry) State(key string) BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return StateClosed
	}
	if e.state == StateOpen && r.now().Sub(e.lastFailure) >= r.opts.ResetTimeout {
		return StateHalfOpen
	}
	return e.state
}

// Failures returns the consecutive failure count for key.
func (r *BreakerRegistry) Failures(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.failures
	}
	return 0
}

// Reset clears all breaker state. Intended for tests.
func (r *BreakerRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*breakerEntry)
}

func (r *BreakerRegistry) allow(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return nil
	}
	if e.state != StateOpen {
		return nil
	}
	if r.now().Sub(e.lastFailure) >= r.opts.ResetTimeout {
		e.state = StateHalfOpen
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCircuitOpen, key)
}

func (r *BreakerRegistry) record(key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		e = &breakerEntry{state: StateClosed}
		r.entries[key] = e
	}

	if err == nil {
		// Success in any state closes the breaker and clears the count.
		e.state = StateClosed
		e.failures = 0
		return
	}

	e.failures++
	e.lastFailure = r.now()
	if e.state == StateHalfOpen || e.failures >= r.opts.FailureThreshold {
		e.state = StateOpen
	}
}

// ExecuteWithRetry composes Do inside the breaker: the breaker sees one
// failure per exhausted retry sequence, not per individual attempt.
func (r *BreakerRegistry) ExecuteWithRetry(ctx context.Context, key string, cfg RetryConfig, op func(ctx context.Context) error) error {
	return r.Execute(ctx, key, func(ctx context.Context) error {
		return Do(ctx, cfg, op)
	})
}
