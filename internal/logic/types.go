// Package logic contains the actuator hysteresis state machine.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via clock.Millis parameters.
package logic

import "github.com/sweeney/irrigation-controller/internal/clock"

// State represents the logical state of the water actuator.
type State string

const (
	StateIdle   State = "IDLE"
	StateActive State = "ACTIVE"
)

// On reports whether the actuator should be physically open in this state.
func (s State) On() bool {
	return s == StateActive
}

// Reason explains why a transition happened.
type Reason string

const (
	ReasonStartup         Reason = "startup"
	ReasonBelowSetpoint   Reason = "moisture below setpoint"
	ReasonSetpointReached Reason = "setpoint reached"
	ReasonPulseElapsed    Reason = "pulse elapsed"
	ReasonShutdown        Reason = "shutdown"
)

// Event represents an actuator state change to be applied to hardware and
// published.
type Event struct {
	Time    clock.Millis
	From    State
	To      State
	Reason  Reason
	Percent float64
	// Forced marks the unconditional startup/shutdown write. It is applied
	// even when From == To.
	Forced bool
}

// Config holds the remote-configurable setpoint and dwell durations.
type Config struct {
	DesiredMoisturePercent int
	ActiveDurationSec      int
	IdleDurationSec        int
}

// DefaultConfig is used until the first successful config pull.
var DefaultConfig = Config{
	DesiredMoisturePercent: 40,
	ActiveDurationSec:      10,
	IdleDurationSec:        60,
}

// ConfigUpdate carries the fields of one config pull that succeeded.
// Nil fields leave the held value unchanged.
type ConfigUpdate struct {
	DesiredMoisturePercent *int
	ActiveDurationSec      *int
	IdleDurationSec        *int
}

// Empty reports whether the update carries no fields.
func (u ConfigUpdate) Empty() bool {
	return u.DesiredMoisturePercent == nil && u.ActiveDurationSec == nil && u.IdleDurationSec == nil
}

// Apply returns c with every non-nil field of u replaced.
func (c Config) Apply(u ConfigUpdate) Config {
	if u.DesiredMoisturePercent != nil {
		c.DesiredMoisturePercent = *u.DesiredMoisturePercent
	}
	if u.ActiveDurationSec != nil {
		c.ActiveDurationSec = *u.ActiveDurationSec
	}
	if u.IdleDurationSec != nil {
		c.IdleDurationSec = *u.IdleDurationSec
	}
	return c
}

// TransitionCounts tracks the number of transitions since startup.
type TransitionCounts struct {
	Activations   int
	Deactivations int
}
