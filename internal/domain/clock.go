package domain

import "time"

// Clock provides the current time. Implementations may be real (production)
// or deterministic (testing). Session expiry is always judged against an
// injected Clock, never against time.Now directly.
type Clock interface {
	// Now returns the current time. The returned time includes both wall clock
	// and monotonic readings when using RealClock.
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

// FromUnixSeconds converts a JWT NumericDate in whole seconds to time.Time.
// The returned time has no monotonic reading (safe for comparison).
func FromUnixSeconds(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// Ensure RealClock implements Clock at compile time.
var _ Clock = RealClock{}
