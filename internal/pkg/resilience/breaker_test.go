package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRegistry(threshold int, reset time.Duration) (*BreakerRegistry, *time.Time) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewBreakerRegistry(BreakerOptions{FailureThreshold: threshold, ResetTimeout: reset})
	r.now = func() time.Time { return clock }
	return r, &clock
}

func failOp(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	reg, _ := newTestRegistry(5, time.Minute)
	ctx := context.Background()
	boom := errors.New("provider exploded")

	for i := 0; i < 5; i++ {
		if err := reg.Execute(ctx, "twilio:ws_a", failOp(boom)); !errors.Is(err, boom) {
			t.Fatalf("call %d: err = %v, want underlying failure", i, err)
		}
	}
	if s := reg.State("twilio:ws_a"); s != StateOpen {
		t.Fatalf("state = %s after 5 failures, want open", s)
	}

	// Sixth call fails fast without invoking the op.
	invoked := false
	err := reg.Execute(ctx, "twilio:ws_a", func(context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if invoked {
		t.Error("wrapped op invoked while breaker open")
	}
}

func TestBreaker_KeysAreIsolated(t *testing.T) {
	reg, _ := newTestRegistry(2, time.Minute)
	ctx := context.Background()

	reg.Execute(ctx, "twilio:ws_a", failOp(errors.New("down")))
	reg.Execute(ctx, "twilio:ws_a", failOp(errors.New("down")))

	if s := reg.State("twilio:ws_a"); s != StateOpen {
		t.Fatalf("ws_a state = %s, want open", s)
	}
	if s := reg.State("twilio:ws_b"); s != StateClosed {
		t.Errorf("ws_b state = %s, want closed (tenant isolation)", s)
	}
	if err := reg.Execute(ctx, "twilio:ws_b", failOp(nil)); err != nil {
		t.Errorf("ws_b call rejected: %v", err)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	reg, clock := newTestRegistry(2, time.Minute)
	ctx := context.Background()

	reg.Execute(ctx, "ses:ws_a", failOp(errors.New("down")))
	reg.Execute(ctx, "ses:ws_a", failOp(errors.New("down")))
	if s := reg.State("ses:ws_a"); s != StateOpen {
		t.Fatalf("state = %s, want open", s)
	}

	// Before the reset timeout: still rejecting.
	if err := reg.Execute(ctx, "ses:ws_a", failOp(nil)); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen before reset timeout", err)
	}

	// After the timeout the next call is allowed through.
	*clock = clock.Add(61 * time.Second)
	if s := reg.State("ses:ws_a"); s != StateHalfOpen {
		t.Fatalf("state = %s, want half_open after reset timeout", s)
	}
	if err := reg.Execute(ctx, "ses:ws_a", failOp(nil)); err != nil {
		t.Fatalf("probe call rejected: %v", err)
	}

	if s := reg.State("ses:ws_a"); s != StateClosed {
		t.Errorf("state = %s after successful probe, want closed", s)
	}
	if n := reg.Failures("ses:ws_a"); n != 0 {
		t.Errorf("failures = %d after recovery, want 0", n)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	reg, clock := newTestRegistry(2, time.Minute)
	ctx := context.Background()

	reg.Execute(ctx, "wa:ws_a", failOp(errors.New("down")))
	reg.Execute(ctx, "wa:ws_a", failOp(errors.New("down")))
	*clock = clock.Add(2 * time.Minute)

	// The probe fails; the breaker reopens immediately.
	reg.Execute(ctx, "wa:ws_a", failOp(errors.New("still down")))
	if s := reg.State("wa:ws_a"); s != StateOpen {
		t.Errorf("state = %s after failed probe, want open", s)
	}
	if err := reg.Execute(ctx, "wa:ws_a", failOp(nil)); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen after failed probe", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	reg, _ := newTestRegistry(5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		reg.Execute(ctx, "twilio:ws_a", failOp(errors.New("flaky")))
	}
	reg.Execute(ctx, "twilio:ws_a", failOp(nil))

	if n := reg.Failures("twilio:ws_a"); n != 0 {
		t.Errorf("failures = %d after success, want 0", n)
	}
	if s := reg.State("twilio:ws_a"); s != StateClosed {
		t.Errorf("state = %s, want closed", s)
	}
}

// The breaker must see one failure per exhausted retry sequence, not one per
// individual attempt.
func TestExecuteWithRetry_OneBreakerFailurePerSequence(t *testing.T) {
	reg, _ := newTestRegistry(5, time.Minute)
	ctx := context.Background()

	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}
	calls := 0
	err := reg.ExecuteWithRetry(ctx, "twilio:ws_a", cfg, func(context.Context) error {
		calls++
		return errors.New("service unavailable")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Errorf("op invoked %d times, want 4", calls)
	}
	if n := reg.Failures("twilio:ws_a"); n != 1 {
		t.Errorf("breaker failures = %d, want 1 per exhausted sequence", n)
	}
}

func TestKey(t *testing.T) {
	if got := Key("twilio", "ws_42"); got != "twilio:ws_42" {
		t.Errorf("Key = %q", got)
	}
}
