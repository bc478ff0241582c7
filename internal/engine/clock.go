package engine

import "time"

// Clock supplies the cycle time. The loop reads it once per cycle and stores
// the value in the snapshot; nothing inside a cycle reads the clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same time. The plan command uses it to
// replay a cycle at a chosen instant.
type FixedClock time.Time

// Now implements Clock.
func (c FixedClock) Now() time.Time {
	return time.Time(c)
}
