package inference

import (
	"context"
	"testing"
	"time"
)

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          60.0,
		Jitter:            false,
	}

	delays := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}
	for i, expected := range delays {
		if got := policy.Delay(i); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", i, expected, got)
		}
	}

	// Attempt 10 would be 1024s without the cap.
	policy.MaxDelay = 5.0
	if got := policy.Delay(10); got != 5*time.Second {
		t.Errorf("expected 5s (capped), got %v", got)
	}
}

func TestRetrySuccessAfterTransientFailures(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}

	calls := 0
	result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &ServerError{ProviderError: ProviderError{
				ServiceError: ServiceError{Message: "server error"}, Retryable: true,
			}}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || calls != 3 {
		t.Errorf("result=%q calls=%d", result, calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}

	calls := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		return "", &ContextLengthError{ProviderError: ProviderError{
			ServiceError: ServiceError{Message: "too long"}, StatusCode: 413,
		}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-retryable error retried %d times", calls-1)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: 10, BackoffMultiplier: 1, MaxDelay: 10}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, policy, func(ctx context.Context) (int, error) {
		return 0, &ServerError{ProviderError: ProviderError{
			ServiceError: ServiceError{Message: "server error"}, Retryable: true,
		}}
	})
	if _, ok := err.(*AbortError); !ok {
		t.Fatalf("expected AbortError, got %T", err)
	}
}

func rateLimited(retryAfter float64) *RateLimitError {
	return &RateLimitError{ProviderError: ProviderError{
		ServiceError: ServiceError{Message: "rate limited"},
		Retryable:    true,
		RetryAfter:   &retryAfter,
	}}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: 10, BackoffMultiplier: 1, MaxDelay: 1.0}

	calls := 0
	start := time.Now()
	result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", rateLimited(0.01)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || calls != 2 {
		t.Errorf("result=%q calls=%d", result, calls)
	}
	// Retry-After overrides the 10s base delay.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("retry waited %v, should follow the Retry-After hint", elapsed)
	}
}

func TestRetryAfterBeyondMaxDelaySurfaces(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.05}

	calls := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		return "", rateLimited(30)
	})
	if _, ok := err.(*RateLimitError); !ok {
		t.Fatalf("expected RateLimitError, got %T", err)
	}
	if calls != 1 {
		t.Errorf("oversized Retry-After still retried: %d calls", calls)
	}
}
