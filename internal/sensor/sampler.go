package sensor

import (
	"fmt"

	"github.com/sweeney/irrigation-controller/internal/adc"
	"github.com/sweeney/irrigation-controller/internal/clock"
)

// Sampler reads the probe at most once per period.
type Sampler struct {
	reader  adc.Reader
	cal     Calibration
	cadence clock.Cadence
	latest  Reading
}

// NewSampler creates a Sampler. The first call to Sample always reads.
func NewSampler(reader adc.Reader, cal Calibration, period clock.Millis) *Sampler {
	return &Sampler{
		reader:  reader,
		cal:     cal,
		cadence: clock.NewCadence(period),
	}
}

// Sample returns a fresh reading when the period has elapsed since the last
// sample; otherwise it returns false and the caller keeps its previous
// reading. A failed ADC read still consumes the period and yields an
// invalid (zero) reading alongside the error.
func (s *Sampler) Sample(now clock.Millis) (Reading, bool, error) {
	if !s.cadence.Ready(now) {
		return Reading{}, false, nil
	}
	raw, err := s.reader.Read()
	if err != nil {
		s.latest = Reading{SampledAt: now}
		return s.latest, true, fmt.Errorf("sample moisture: %w", err)
	}
	s.latest = s.cal.Convert(raw, now)
	return s.latest, true, nil
}

// Latest returns the most recent reading (zero before the first sample).
func (s *Sampler) Latest() Reading {
	return s.latest
}

// Calibration returns the calibration in use.
func (s *Sampler) Calibration() Calibration {
	return s.cal
}
