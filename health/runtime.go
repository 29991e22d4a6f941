package health

import (
	"context"
	"fmt"
	"runtime"
)

// RuntimeCheckerConfig configures the runtime checker.
type RuntimeCheckerConfig struct {
	// MaxGoroutines is the goroutine count above which the process is
	// degraded. Each running request holds at least one goroutine.
	// Default: 10000
	MaxGoroutines int

	// MaxHeapBytes is the heap size above which the process is degraded.
	// Zero disables the threshold.
	MaxHeapBytes uint64
}

// RuntimeChecker reports goroutine and heap usage.
type RuntimeChecker struct {
	config RuntimeCheckerConfig
}

// NewRuntimeChecker creates a runtime checker.
func NewRuntimeChecker(config RuntimeCheckerConfig) *RuntimeChecker {
	if config.MaxGoroutines <= 0 {
		config.MaxGoroutines = 10000
	}
	return &RuntimeChecker{config: config}
}

// Name returns "runtime".
func (r *RuntimeChecker) Name() string { return "runtime" }

// Check reads runtime statistics.
func (r *RuntimeChecker) Check(ctx context.Context) Result {
	if res, done := canceled(ctx); done {
		return res
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	goroutines := runtime.NumGoroutine()

	details := map[string]any{
		"goroutines":   goroutines,
		"heap_alloc":   stats.HeapAlloc,
		"heap_objects": stats.HeapObjects,
		"num_gc":       stats.NumGC,
	}

	if goroutines > r.config.MaxGoroutines {
		return Degraded(fmt.Sprintf("%d goroutines", goroutines)).WithDetails(details)
	}
	if r.config.MaxHeapBytes > 0 && stats.HeapAlloc > r.config.MaxHeapBytes {
		return Degraded(fmt.Sprintf("heap at %d bytes", stats.HeapAlloc)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("%d goroutines", goroutines)).WithDetails(details)
}
