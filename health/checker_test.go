package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResultConstructors(t *testing.T) {
	errDown := errors.New("down")

	if r := Healthy("ok"); r.Status != StatusHealthy || r.Message != "ok" || r.Timestamp.IsZero() {
		t.Errorf("Healthy() = %+v", r)
	}
	if r := Degraded("slow"); r.Status != StatusDegraded || r.Message != "slow" {
		t.Errorf("Degraded() = %+v", r)
	}
	if r := Unhealthy("bad", errDown); r.Status != StatusUnhealthy || r.Error != errDown {
		t.Errorf("Unhealthy() = %+v", r)
	}

	r := Healthy("x").WithDetails(map[string]any{"k": 1}).WithDuration(time.Second)
	if r.Details["k"] != 1 || r.Duration != time.Second {
		t.Errorf("WithDetails/WithDuration = %+v", r)
	}
}

func TestWorse(t *testing.T) {
	if got := worse(StatusHealthy, StatusDegraded); got != StatusDegraded {
		t.Errorf("worse(healthy, degraded) = %v", got)
	}
	if got := worse(StatusUnhealthy, StatusDegraded); got != StatusUnhealthy {
		t.Errorf("worse(unhealthy, degraded) = %v", got)
	}
}

func TestCheckerFunc(t *testing.T) {
	checker := NewCheckerFunc("probe", func(ctx context.Context) Result {
		if r, done := canceled(ctx); done {
			return r
		}
		return Healthy("from func")
	})

	if checker.Name() != "probe" {
		t.Errorf("Name() = %v, want probe", checker.Name())
	}
	if r := checker.Check(context.Background()); r.Status != StatusHealthy || r.Message != "from func" {
		t.Errorf("Check() = %+v", r)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := checker.Check(ctx)
	if r.Status != StatusUnhealthy || !errors.Is(r.Error, context.Canceled) {
		t.Errorf("Check(canceled) = %+v", r)
	}
}
