package scheduler

import (
	"time"

	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/remote"
)

// Sample is one outbound telemetry snapshot. Timestamp is zero when the wall
// clock is unavailable.
type Sample struct {
	Timestamp       time.Time    `json:"timestamp"`
	UptimeMs        clock.Millis `json:"uptime_ms"`
	MoisturePercent float64      `json:"moisture_percent"`
	RawVoltage      float64      `json:"raw_voltage"`
	ActuatorState   logic.State  `json:"actuator_state"`
	Counter         int64        `json:"counter"`
}

// NewSample builds a Sample from the current inputs.
func NewSample(now clock.Millis, in Inputs, counter int64) Sample {
	s := Sample{
		UptimeMs:        now,
		MoisturePercent: in.Reading.Percent,
		RawVoltage:      in.Reading.Voltage,
		ActuatorState:   in.State,
		Counter:         counter,
	}
	if in.WallOK {
		s.Timestamp = in.Wall
	}
	return s
}

// Entries returns the key/values pushed for this sample. The actuator state
// is not included: it is pushed only when it changes.
func (s Sample) Entries() []remote.Entry {
	entries := make([]remote.Entry, 0, 4)
	if !s.Timestamp.IsZero() {
		entries = append(entries, remote.Entry{
			Key:   remote.KeyCurrentDateTime,
			Value: remote.String(s.Timestamp.Format(time.RFC3339)),
		})
	}
	return append(entries,
		remote.Entry{Key: remote.KeyCount, Value: remote.Int(s.Counter)},
		remote.Entry{Key: remote.KeyVoltageSensor, Value: remote.Float(s.RawVoltage)},
		remote.Entry{Key: remote.KeyRelativeHumidity, Value: remote.Float(s.MoisturePercent)},
	)
}
