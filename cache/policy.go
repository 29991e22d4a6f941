package cache

import "time"

// Policy configures garbage collection defaults.
type Policy struct {
	// DefaultGarbageCollection applies to writes that carry none.
	// If zero, such entries are never collected.
	DefaultGarbageCollection time.Duration

	// MaxGarbageCollection clamps requested durations.
	// If zero, no maximum is enforced.
	MaxGarbageCollection time.Duration
}

// DefaultPolicy returns the default policy.
// DefaultGarbageCollection: 5 minutes, MaxGarbageCollection: 24 hours
func DefaultPolicy() Policy {
	return Policy{
		DefaultGarbageCollection: 5 * time.Minute,
		MaxGarbageCollection:     24 * time.Hour,
	}
}

// KeepForeverPolicy returns a policy that never collects by default.
func KeepForeverPolicy() Policy {
	return Policy{}
}

// ShouldCollect returns true if entries without an explicit duration are
// collected.
func (p Policy) ShouldCollect() bool {
	return p.DefaultGarbageCollection > 0
}

// EffectiveGarbageCollection returns the duration to store on an entry,
// applying the default and clamping.
func (p Policy) EffectiveGarbageCollection(override time.Duration) time.Duration {
	gc := override
	if gc <= 0 {
		gc = p.DefaultGarbageCollection
	}
	if p.MaxGarbageCollection > 0 && gc > p.MaxGarbageCollection {
		gc = p.MaxGarbageCollection
	}
	return gc
}
