package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("connection refused")

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	b := NewBreaker("webhook", BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Cooldown: time.Minute})
	b.now = func() time.Time { return now }

	fail := func() error { return errDown }
	ok := func() error { return nil }

	for i := 0; i < 2; i++ {
		if err := b.Do(fail); !errors.Is(err, errDown) {
			t.Fatalf("call %d err = %v", i, err)
		}
	}
	if b.State() != CircuitOpen {
		t.Fatalf("state = %s, want OPEN", b.State())
	}

	called := false
	if err := b.Do(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open circuit let a call through: err=%v called=%v", err, called)
	}
	if b.Rejected() != 1 {
		t.Errorf("rejected = %d", b.Rejected())
	}

	now = now.Add(2 * time.Minute)
	if err := b.Do(fail); !errors.Is(err, errDown) {
		t.Fatalf("trial call err = %v", err)
	}
	if b.State() != CircuitOpen {
		t.Fatalf("failed trial call left state %s", b.State())
	}

	now = now.Add(2 * time.Minute)
	if err := b.Do(ok); err != nil {
		t.Fatal(err)
	}
	if b.State() != CircuitClosed {
		t.Errorf("state = %s, want CLOSED after a good trial call", b.State())
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker("redis", BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	_ = b.Do(func() error { return errDown })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return errDown })
	if b.State() != CircuitClosed {
		t.Errorf("non-consecutive failures opened the circuit")
	}
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}

	calls := 0
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errDown
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("err = %v calls = %d, want success on the third call", err, calls)
	}

	calls = 0
	err = Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errDown
	})
	if !errors.Is(err, errDown) || calls != 3 {
		t.Errorf("err = %v calls = %d", err, calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}
	err := Retry(ctx, cfg, func(ctx context.Context) error {
		cancel()
		return errDown
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt, cfg); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
