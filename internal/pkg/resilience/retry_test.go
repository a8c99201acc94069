package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pilarlabs/studio-operator/internal/pkg/errclass"
)

var errRetryable = errors.New("service unavailable") // classifies as integration_offline

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDo_RetryableInvokedExactlyNPlusOne(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return errRetryable
	})
	if calls != 4 {
		t.Errorf("op invoked %d times, want 4 (MaxRetries=3)", calls)
	}
	if !errors.Is(err, errRetryable) {
		t.Errorf("err = %v, want last underlying error", err)
	}
}

func TestDo_NonRetryableInvokedOnce(t *testing.T) {
	fatal := &errclass.HTTPError{StatusCode: 401, Body: "bad token"}
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return fatal
	})
	if calls != 1 {
		t.Errorf("op invoked %d times, want 1 for non-retryable error", calls)
	}
	if !errors.Is(err, fatal) {
		t.Errorf("err = %v, want original error", err)
	}
}

func TestDo_SuccessStopsRetrying(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errRetryable
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("op invoked %d times, want 3", calls)
	}
}

func TestDo_BackoffScheduleWithoutJitter(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1000 * time.Millisecond,
		MaxDelay:     30000 * time.Millisecond,
		Multiplier:   2,
		Jitter:       false,
	}

	want := []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond, 4000 * time.Millisecond}
	for i, w := range want {
		if got := cfg.Delay(i); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestDo_DelayCappedAtMax(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   10,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
	if got := cfg.Delay(9); got != 30*time.Second {
		t.Errorf("Delay(9) = %v, want capped 30s", got)
	}
}

func TestDo_JitterWithinBounds(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, Jitter: true}
	base := cfg.Delay(2)
	for i := 0; i < 200; i++ {
		d := cfg.jittered(base)
		if d < time.Duration(float64(base)*0.75) || d > time.Duration(float64(base)*1.25) {
			t.Fatalf("jittered delay %v outside ±25%% of %v", d, base)
		}
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastConfig()
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		attempts = append(attempts, attempt)
		if err == nil {
			t.Error("OnRetry called with nil error")
		}
	}

	_ = Do(context.Background(), cfg, func(ctx context.Context) error { return errRetryable })

	// 3 retries means the callback fires for attempts 0, 1, 2.
	if len(attempts) != 3 || attempts[0] != 0 || attempts[2] != 2 {
		t.Errorf("OnRetry attempts = %v, want [0 1 2]", attempts)
	}
}

func TestDo_ContextCancelReturnsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func(ctx context.Context) error {
			calls++
			return errRetryable
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, errRetryable) {
			t.Errorf("err = %v, want last underlying error after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after context cancel")
	}
	if calls != 1 {
		t.Errorf("op invoked %d times, want 1 before cancel", calls)
	}
}

func TestDoValue(t *testing.T) {
	calls := 0
	got, err := DoValue(context.Background(), fastConfig(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errRetryable
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Errorf("DoValue = (%q, %v), want (ok, nil)", got, err)
	}
}
