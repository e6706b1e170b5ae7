// Package clock provides the time sources used by the control loop.
//
// Control decisions run on a wrapping 32-bit millisecond counter so that
// elapsed-time arithmetic behaves the same as on a microcontroller tick
// counter. Wall-clock time is a separate, optional source: it may be
// unavailable until the host has synchronised its clock.
package clock

import "time"

// Millis is a monotonic millisecond timestamp. It wraps after ~49.7 days;
// differences must always be taken with Since, never compared directly.
type Millis uint32

// Since returns the time elapsed from then to now. Unsigned subtraction keeps
// the result correct across a single wraparound of the counter.
func Since(then, now Millis) Millis {
	return now - then
}

// FromDuration converts d to Millis, saturating at the counter's range.
// Negative durations become zero.
func FromDuration(d time.Duration) Millis {
	ms := d.Milliseconds()
	if ms <= 0 {
		return 0
	}
	if ms > int64(^uint32(0)) {
		return Millis(^uint32(0))
	}
	return Millis(ms)
}

// Duration converts m to a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// Source returns the current monotonic tick.
type Source interface {
	Now() Millis
}

// Monotonic derives Millis from Go's monotonic clock relative to a start time.
type Monotonic struct {
	start time.Time
}

// NewMonotonic creates a Monotonic source whose zero is start.
func NewMonotonic(start time.Time) *Monotonic {
	return &Monotonic{start: start}
}

// Now returns milliseconds since start, truncated to 32 bits.
func (m *Monotonic) Now() Millis {
	return Millis(uint64(time.Since(m.start).Milliseconds()))
}

// Wall reports the current calendar time and whether it can be trusted.
type Wall interface {
	Now() (time.Time, bool)
}

// MinValidWallTime is the earliest wall-clock time treated as synchronised.
// A Pi without an RTC boots at the epoch (or the last fake-hwclock save) until
// NTP catches up.
var MinValidWallTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// SystemWall reads the host clock and rejects obviously unsynchronised times.
type SystemWall struct {
	Location *time.Location
}

// Now returns the local time and whether it is at or after MinValidWallTime.
func (w SystemWall) Now() (time.Time, bool) {
	t := time.Now()
	if w.Location != nil {
		t = t.In(w.Location)
	}
	if t.Before(MinValidWallTime) {
		return time.Time{}, false
	}
	return t, true
}
