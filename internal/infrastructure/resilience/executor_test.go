package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient failure")

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
	}
}

func retryAll(err error) ErrorClassification {
	return ErrorClassification{Retryable: true, RecordFailure: true}
}

func retryNone(err error) ErrorClassification {
	return ErrorClassification{Retryable: false, RecordFailure: true}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	e := NewExecutor(fastConfig())

	attempts := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	}, retryAll)

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestExecuteStopsOnNonRetryable(t *testing.T) {
	e := NewExecutor(fastConfig())

	attempts := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		return errTransient
	}, retryNone)

	if !errors.Is(err, errTransient) {
		t.Fatalf("Execute() error = %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestExecuteReturnsLastErrorWhenExhausted(t *testing.T) {
	e := NewExecutor(fastConfig())

	attempts := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		return errTransient
	}, retryAll)

	if !errors.Is(err, errTransient) {
		t.Fatalf("Execute() error = %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want max 3", attempts)
	}
}

func TestAttemptTimeoutReportedAsTimeoutError(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 2
	cfg.AttemptTimeout = 10 * time.Millisecond
	e := NewExecutor(cfg)

	attempts := 0
	err := e.Execute(context.Background(), "slow_op", func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	if !IsTimeout(err) {
		t.Fatalf("Execute() error = %v, want timeout", err)
	}
	var te *TimeoutError
	if !errors.As(err, &te) || te.Operation != "slow_op" {
		t.Fatalf("timeout error = %+v", err)
	}
	// The default classifier retries timeouts.
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestCallerDeadlineIsNotReportedAsAttemptTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.AttemptTimeout = time.Minute
	e := NewExecutor(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := e.Execute(ctx, "op", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	if IsTimeout(err) {
		t.Fatalf("caller deadline misreported as attempt timeout: %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestExecuteHonorsCancelledContext(t *testing.T) {
	e := NewExecutor(fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	invoked := false
	err := e.Execute(ctx, "op", func(ctx context.Context) error {
		invoked = true
		return nil
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v", err)
	}
	if invoked {
		t.Fatalf("operation invoked after cancellation")
	}
}

func TestCancellationDuringBackoffStopsRetrying(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryInitialBackoff = time.Second
	cfg.RetryMaxBackoff = time.Second
	e := NewExecutor(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := e.Execute(ctx, "op", func(ctx context.Context) error {
		attempts++
		cancel()
		return errTransient
	}, retryAll)

	if !errors.Is(err, errTransient) {
		t.Fatalf("Execute() error = %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (cancelled during backoff)", attempts)
	}
}

func TestBreakerOpensOnRepeatedFailure(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	e := NewExecutor(cfg)

	for i := 0; i < 2; i++ {
		if err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
			return errTransient
		}, retryNone); !errors.Is(err, errTransient) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}

	invoked := false
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		invoked = true
		return nil
	}, retryNone)
	if !IsCircuitOpen(err) {
		t.Fatalf("Execute() error = %v, want open circuit", err)
	}
	if invoked {
		t.Fatalf("operation invoked through an open circuit")
	}
}

func TestBreakersAreScopedPerOperation(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 1
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	e := NewExecutor(cfg)

	_ = e.Execute(context.Background(), "failing_op", func(ctx context.Context) error {
		return errTransient
	}, retryNone)

	if err := e.Execute(context.Background(), "healthy_op", func(ctx context.Context) error {
		return nil
	}, retryNone); err != nil {
		t.Fatalf("healthy operation affected by another breaker: %v", err)
	}
}
