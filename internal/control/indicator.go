package control

import (
	"log/slog"

	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/gpio"
)

// Blink periods for the status LED.
const (
	BlinkNormal   clock.Millis = 1000
	BlinkDegraded clock.Millis = 200
)

// Indicator blinks the status LED for operator feedback. It blinks slowly
// while the loop runs and fast while there is no valid moisture reading.
// It has no influence on control decisions.
type Indicator struct {
	out     gpio.Output
	last    clock.Millis
	on      bool
	failed  bool
	started bool
}

// NewIndicator creates an Indicator on out. A nil out disables it.
func NewIndicator(out gpio.Output) *Indicator {
	return &Indicator{out: out}
}

// Update toggles the LED when its blink period has elapsed.
func (i *Indicator) Update(now clock.Millis, degraded bool) {
	if i == nil || i.out == nil {
		return
	}
	period := BlinkNormal
	if degraded {
		period = BlinkDegraded
	}
	if i.started {
		due, last := clock.Due(i.last, period, now)
		if !due {
			return
		}
		i.last = last
	} else {
		i.started = true
		i.last = now
	}
	i.on = !i.on
	if err := i.out.Set(i.on); err != nil && !i.failed {
		slog.Warn("status led write failed", "err", err)
		i.failed = true
	}
}

// Off turns the LED off.
func (i *Indicator) Off() {
	if i == nil || i.out == nil {
		return
	}
	i.on = false
	if err := i.out.Set(false); err != nil {
		slog.Warn("status led write failed", "err", err)
	}
}
