package clock

import "time"

// Fake is a manually advanced Source for tests.
type Fake struct {
	T Millis
}

// NewFake returns a Fake starting at t.
func NewFake(t Millis) *Fake {
	return &Fake{T: t}
}

// Now returns the current fake tick.
func (f *Fake) Now() Millis {
	return f.T
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.T += FromDuration(d)
}

// FakeWall is a Wall with a settable time and availability.
type FakeWall struct {
	Time  time.Time
	Valid bool
}

// Now returns the configured time.
func (f *FakeWall) Now() (time.Time, bool) {
	if !f.Valid {
		return time.Time{}, false
	}
	return f.Time, true
}
