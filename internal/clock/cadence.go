package clock

// Due is the debounce primitive shared by every self-timed component.
// It reports whether at least period has elapsed between last and now and
// returns the new last-fired value (now when due, last otherwise).
func Due(last, period, now Millis) (bool, Millis) {
	if Since(last, now) >= period {
		return true, now
	}
	return false, last
}

// Cadence gates an action to at most once per period. The first poll always
// fires so that a freshly started loop samples and syncs immediately.
type Cadence struct {
	period Millis
	last   Millis
	fired  bool
}

// NewCadence returns a Cadence with the given period.
func NewCadence(period Millis) Cadence {
	return Cadence{period: period}
}

// Ready reports whether the action may run at now and, if so, records now as
// the last firing time.
func (c *Cadence) Ready(now Millis) bool {
	if !c.fired {
		c.fired = true
		c.last = now
		return true
	}
	due, last := Due(c.last, c.period, now)
	c.last = last
	return due
}

// LastFired returns the last firing time and whether the cadence has fired yet.
func (c *Cadence) LastFired() (Millis, bool) {
	return c.last, c.fired
}
