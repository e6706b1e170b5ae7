// Package sensor converts raw capacitive probe samples into calibrated
// moisture readings on a fixed sampling cadence.
package sensor

import (
	"fmt"

	"github.com/sweeney/irrigation-controller/internal/clock"
)

// Reading is one calibrated moisture sample.
type Reading struct {
	Percent   float64
	Voltage   float64
	Raw       int
	SampledAt clock.Millis
}

// Valid reports whether the reading may drive an actuator decision.
// A zero or negative percentage usually means the probe is disconnected or
// has not been sampled yet.
func (r Reading) Valid() bool {
	return r.Percent > 0
}

// Calibration maps raw ADC counts to a moisture percentage.
//
// RawMin maps to 0% and RawMax to 100%. When Inverted is set the direction
// is reversed (RawMin maps to 100%), which is the usual case for capacitive
// probes whose output voltage falls as the soil gets wetter.
type Calibration struct {
	RawMin    int
	RawMax    int
	Inverted  bool
	VRef      float64
	FullScale int
}

// DefaultCalibration matches a 12-bit ADC with a 3.3V reference.
var DefaultCalibration = Calibration{
	RawMin:    0,
	RawMax:    4095,
	Inverted:  true,
	VRef:      3.3,
	FullScale: 4095,
}

// Validate checks that the calibration describes a usable mapping.
func (c Calibration) Validate() error {
	if c.RawMax <= c.RawMin {
		return fmt.Errorf("calibration: raw max %d must exceed raw min %d", c.RawMax, c.RawMin)
	}
	if c.FullScale <= 0 {
		return fmt.Errorf("calibration: full scale must be positive, got %d", c.FullScale)
	}
	if c.VRef <= 0 {
		return fmt.Errorf("calibration: vref must be positive, got %v", c.VRef)
	}
	return nil
}

// Percent linearly maps raw to 0..100, clamped.
func (c Calibration) Percent(raw int) float64 {
	span := float64(c.RawMax - c.RawMin)
	if span <= 0 {
		return 0
	}
	pct := float64(raw-c.RawMin) / span * 100
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	if c.Inverted {
		pct = 100 - pct
	}
	return pct
}

// Voltage scales raw by VRef/FullScale. Diagnostic only.
func (c Calibration) Voltage(raw int) float64 {
	if c.FullScale <= 0 {
		return 0
	}
	return float64(raw) * c.VRef / float64(c.FullScale)
}

// Convert builds a Reading for raw sampled at now.
func (c Calibration) Convert(raw int, now clock.Millis) Reading {
	return Reading{
		Percent:   c.Percent(raw),
		Voltage:   c.Voltage(raw),
		Raw:       raw,
		SampledAt: now,
	}
}
