package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/fetchops/response"
)

var errBackend = errors.New("backend error")

func TestNewRetry(t *testing.T) {
	r := NewRetry(RetryConfig{})

	if r.config.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", r.config.MaxAttempts)
	}
	if r.config.InitialDelay != 0 {
		t.Errorf("InitialDelay = %v, want 0", r.config.InitialDelay)
	}
	if r.config.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", r.config.MaxDelay)
	}
	if r.config.Strategy != BackoffConstant {
		t.Errorf("Strategy = %v, want constant", r.config.Strategy)
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3})

	calls := 0
	res, attempts := r.Do(context.Background(), func(ctx context.Context, attempt int) response.Response {
		calls++
		return response.OK("ok", 200)
	})

	if !res.IsSuccess() {
		t.Errorf("Do() outcome = %v, want success", res.Outcome)
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1, 1", calls, attempts)
	}
}

func TestRetry_SuccessOnRetry(t *testing.T) {
	var retried []int
	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		OnRetry: func(attempt int, res response.Response, delay time.Duration) {
			retried = append(retried, attempt)
			if !errors.Is(res.Err, errBackend) {
				t.Errorf("OnRetry err = %v, want %v", res.Err, errBackend)
			}
		},
	})

	res, attempts := r.Do(context.Background(), func(ctx context.Context, attempt int) response.Response {
		if attempt < 3 {
			return response.Fail(errBackend, nil, 500)
		}
		return response.OK("ok", 200)
	})

	if !res.IsSuccess() {
		t.Errorf("Do() outcome = %v, want success", res.Outcome)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retried)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	onRetry := 0
	r := NewRetry(RetryConfig{
		MaxAttempts: 3,
		OnRetry:     func(int, response.Response, time.Duration) { onRetry++ },
	})

	res, attempts := r.Do(context.Background(), func(ctx context.Context, attempt int) response.Response {
		return response.Fail(errBackend, nil, 503)
	})

	if !res.IsFailure() {
		t.Errorf("Do() outcome = %v, want failure", res.Outcome)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if onRetry != 2 {
		t.Errorf("OnRetry calls = %d, want 2 (not after the final attempt)", onRetry)
	}
}

func TestRetry_CanceledAttemptNotRetried(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 5})

	calls := 0
	res, attempts := r.Do(context.Background(), func(ctx context.Context, attempt int) response.Response {
		calls++
		return response.Cancel(nil)
	})

	if !res.IsCanceled() {
		t.Errorf("Do() outcome = %v, want canceled", res.Outcome)
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1, 1", calls, attempts)
	}
}

func TestRetry_RetryIf(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts: 3,
		RetryIf: func(res response.Response) bool {
			return res.IsFailure() && res.Status >= 500
		},
	})

	calls := 0
	res, _ := r.Do(context.Background(), func(ctx context.Context, attempt int) response.Response {
		calls++
		return response.Fail(errBackend, nil, 404)
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if res.Status != 404 {
		t.Errorf("Status = %d, want 404", res.Status)
	}
}

func TestRetry_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Hour,
		OnRetry:      func(int, response.Response, time.Duration) { cancel() },
	})

	res, attempts := r.Do(ctx, func(ctx context.Context, attempt int) response.Response {
		return response.Fail(errBackend, nil, 500)
	})

	if !res.IsCanceled() {
		t.Errorf("Do() outcome = %v, want canceled", res.Outcome)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRetry(RetryConfig{MaxAttempts: 3})
	calls := 0
	res, attempts := r.Do(ctx, func(ctx context.Context, attempt int) response.Response {
		calls++
		return response.OK(nil, 200)
	})

	if !res.IsCanceled() || calls != 0 || attempts != 0 {
		t.Errorf("Do() = %v, calls %d, attempts %d; want canceled, 0, 0", res.Outcome, calls, attempts)
	}
}

func TestRetry_CalculateDelay(t *testing.T) {
	tests := []struct {
		name     string
		config   RetryConfig
		attempt  int
		expected time.Duration
	}{
		{
			name:     "constant",
			config:   RetryConfig{InitialDelay: 100 * time.Millisecond, Strategy: BackoffConstant},
			attempt:  4,
			expected: 100 * time.Millisecond,
		},
		{
			name:     "linear",
			config:   RetryConfig{InitialDelay: 100 * time.Millisecond, Strategy: BackoffLinear},
			attempt:  3,
			expected: 300 * time.Millisecond,
		},
		{
			name:     "exponential",
			config:   RetryConfig{InitialDelay: 100 * time.Millisecond, Strategy: BackoffExponential, Multiplier: 2},
			attempt:  3,
			expected: 400 * time.Millisecond,
		},
		{
			name:     "capped",
			config:   RetryConfig{InitialDelay: time.Second, Strategy: BackoffExponential, MaxDelay: 2 * time.Second},
			attempt:  5,
			expected: 2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetry(tt.config)
			if got := r.calculateDelay(tt.attempt); got != tt.expected {
				t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestRetry_Jitter(t *testing.T) {
	r := NewRetry(RetryConfig{InitialDelay: 100 * time.Millisecond, Jitter: true})

	for i := 0; i < 20; i++ {
		d := r.calculateDelay(1)
		if d < 100*time.Millisecond || d > 125*time.Millisecond {
			t.Fatalf("calculateDelay() = %v, want within [100ms, 125ms]", d)
		}
	}
}

func TestParseBackoff(t *testing.T) {
	tests := map[string]BackoffStrategy{
		"constant":    BackoffConstant,
		"linear":      BackoffLinear,
		"exponential": BackoffExponential,
		"":            BackoffConstant,
		"bogus":       BackoffConstant,
	}
	for in, want := range tests {
		if got := ParseBackoff(in); got != want {
			t.Errorf("ParseBackoff(%q) = %v, want %v", in, got, want)
		}
	}
}
