package logic

import (
	"time"

	"github.com/sweeney/irrigation-controller/internal/clock"
)

// Controller decides when the actuator may open or close.
type Controller struct {
	cfg       Config
	state     State
	enteredAt clock.Millis
	// dwellMet latches once the current state's dwell has elapsed, so a
	// wrap of the millisecond counter cannot hold the state again.
	dwellMet  bool
	counts    TransitionCounts
}

// NewController creates a controller in StateIdle entered at now.
// The caller must apply the returned startup event to hardware unconditionally.
func NewController(cfg Config, now clock.Millis) (*Controller, Event) {
	c := &Controller{
		cfg:       cfg,
		state:     StateIdle,
		enteredAt: now,
	}
	return c, Event{
		Time:   now,
		From:   StateIdle,
		To:     StateIdle,
		Reason: ReasonStartup,
		Forced: true,
	}
}

// Evaluate runs the transition rules once for a moisture percentage sampled
// at or before now. It returns the transition, if any.
//
// A percentage <= 0 is an invalid reading and never causes a transition.
func (c *Controller) Evaluate(percent float64, now clock.Millis) (Event, bool) {
	if percent <= 0 {
		return Event{}, false
	}

	if !c.dwellMet {
		c.dwellMet = clock.Since(c.enteredAt, now) >= c.dwell()
	}
	if !c.dwellMet {
		return Event{}, false
	}

	switch c.state {
	case StateIdle:
		// Equal to the setpoint counts as moist enough.
		if percent >= float64(c.cfg.DesiredMoisturePercent) {
			return Event{}, false
		}
		return c.transition(StateActive, ReasonBelowSetpoint, percent, now), true

	case StateActive:
		// Once the minimum on-time has run the watering pulse ends whether or
		// not the setpoint was reached; the idle dwell lets water soak in
		// before the next decision.
		reason := ReasonPulseElapsed
		if percent >= float64(c.cfg.DesiredMoisturePercent) {
			reason = ReasonSetpointReached
		}
		return c.transition(StateIdle, reason, percent, now), true
	}

	return Event{}, false
}

// ForceIdle moves the controller to StateIdle regardless of dwell times.
// Used on shutdown. The returned event is Forced.
func (c *Controller) ForceIdle(now clock.Millis) Event {
	from := c.state
	if from == StateActive {
		c.counts.Deactivations++
	}
	c.state = StateIdle
	c.enteredAt = now
	c.dwellMet = false
	return Event{
		Time:   now,
		From:   from,
		To:     StateIdle,
		Reason: ReasonShutdown,
		Forced: true,
	}
}

func (c *Controller) transition(to State, reason Reason, percent float64, now clock.Millis) Event {
	from := c.state
	c.state = to
	c.enteredAt = now
	c.dwellMet = false
	if to == StateActive {
		c.counts.Activations++
	} else {
		c.counts.Deactivations++
	}
	return Event{
		Time:    now,
		From:    from,
		To:      to,
		Reason:  reason,
		Percent: percent,
	}
}

// SetConfig replaces the held configuration. Dwell timing continues from the
// current state's entry time; a longer dwell re-arms the wait.
func (c *Controller) SetConfig(cfg Config) {
	if cfg.ActiveDurationSec > c.cfg.ActiveDurationSec || cfg.IdleDurationSec > c.cfg.IdleDurationSec {
		c.dwellMet = false
	}
	c.cfg = cfg
}

// dwell returns the minimum time to spend in the current state.
func (c *Controller) dwell() clock.Millis {
	if c.state == StateActive {
		return seconds(c.cfg.ActiveDurationSec)
	}
	return seconds(c.cfg.IdleDurationSec)
}

// Config returns the held configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// StateEnteredAt returns when the current state was entered.
func (c *Controller) StateEnteredAt() clock.Millis {
	return c.enteredAt
}

// Counts returns a copy of the transition counters.
func (c *Controller) Counts() TransitionCounts {
	return c.counts
}

func seconds(s int) clock.Millis {
	return clock.FromDuration(time.Duration(s) * time.Second)
}
