// Package scheduler paces traffic to the remote store: config pulls,
// telemetry pushes and history appends each run on their own cadence,
// independent of the control loop's tick rate.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/remote"
	"github.com/sweeney/irrigation-controller/internal/sensor"
)

// Periods sets the three cadences.
type Periods struct {
	Pull    clock.Millis
	Push    clock.Millis
	History clock.Millis
}

// DefaultPeriods pulls and pushes every 10s and appends history every minute.
var DefaultPeriods = Periods{
	Pull:    10_000,
	Push:    10_000,
	History: 60_000,
}

// MaxDurationSec caps remotely configured dwell times at one week so that
// they stay well inside the wrapping millisecond counter.
const MaxDurationSec = 7 * 24 * 60 * 60

// Inputs are the current values available to the scheduler on one tick.
type Inputs struct {
	Reading sensor.Reading
	State   logic.State
	// Wall is the current calendar time; WallOK is false until the host
	// clock has been synchronised.
	Wall   time.Time
	WallOK bool
}

// HistoryArchive keeps a local copy of history samples. Implementations
// must not block.
type HistoryArchive interface {
	Archive(at time.Time, percent float64)
}

// Mirror receives every telemetry sample. Implementations must not block.
type Mirror interface {
	Mirror(s Sample)
}

// Stats summarises scheduler activity.
type Stats struct {
	Counter         int64
	PullsCompleted  int
	FieldsApplied   int
	FieldsRejected  int
	HistoryAppended int
}

// Scheduler runs the sync cadences.
type Scheduler struct {
	client  remote.Client
	archive HistoryArchive
	mirror  Mirror

	pull    clock.Cadence
	push    clock.Cadence
	history clock.Cadence

	counter int64
	stats   Stats
}

// Option configures optional collaborators.
type Option func(*Scheduler)

// WithArchive stores every history sample locally as well.
func WithArchive(a HistoryArchive) Option {
	return func(s *Scheduler) { s.archive = a }
}

// WithMirror forwards every telemetry sample to m.
func WithMirror(m Mirror) Option {
	return func(s *Scheduler) { s.mirror = m }
}

// New creates a Scheduler that talks to client.
func New(client remote.Client, p Periods, opts ...Option) *Scheduler {
	s := &Scheduler{
		client:  client,
		pull:    clock.NewCadence(p.Pull),
		push:    clock.NewCadence(p.Push),
		history: clock.NewCadence(p.History),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run executes whichever cadences are due at now. It returns the config
// fields of a pull that completed since the last call; fields that failed to
// fetch or validate are left nil so the held values stay in force.
func (s *Scheduler) Run(now clock.Millis, in Inputs) logic.ConfigUpdate {
	if s.pull.Ready(now) {
		s.client.RequestPull(remote.ConfigKeys...)
	}

	var update logic.ConfigUpdate
	if fields, ok := s.client.Pulled(); ok {
		update = s.decode(fields)
	}

	if s.push.Ready(now) {
		s.pushTelemetry(now, in)
	}

	if in.Reading.Valid() && in.WallOK && s.history.Ready(now) {
		s.appendHistory(in)
	}

	return update
}

func (s *Scheduler) decode(fields []remote.Field) logic.ConfigUpdate {
	s.stats.PullsCompleted++

	var u logic.ConfigUpdate
	for _, f := range fields {
		if f.Err != nil {
			// Already logged by the client.
			continue
		}
		v := f.Value
		if err := validate(f.Key, v); err != nil {
			s.stats.FieldsRejected++
			slog.Warn("rejected remote config value", "key", f.Key, "value", v, "err", err)
			continue
		}
		switch f.Key {
		case remote.KeyDesiredHumidity:
			u.DesiredMoisturePercent = &v
		case remote.KeyActiveTime:
			u.ActiveDurationSec = &v
		case remote.KeyIdleTime:
			u.IdleDurationSec = &v
		default:
			continue
		}
		s.stats.FieldsApplied++
	}
	return u
}

func validate(key string, v int) error {
	switch key {
	case remote.KeyDesiredHumidity:
		if v < 0 || v > 100 {
			return fmt.Errorf("setpoint %d outside 0-100", v)
		}
	case remote.KeyActiveTime, remote.KeyIdleTime:
		if v < 0 || v > MaxDurationSec {
			return fmt.Errorf("duration %ds outside 0-%d", v, MaxDurationSec)
		}
	}
	return nil
}

func (s *Scheduler) pushTelemetry(now clock.Millis, in Inputs) {
	sample := NewSample(now, in, s.counter)
	// The counter advances per attempted cycle so observers can spot gaps.
	s.counter++
	s.stats.Counter = s.counter

	s.client.Push(sample.Entries()...)
	if s.mirror != nil {
		s.mirror.Mirror(sample)
	}
}

func (s *Scheduler) appendHistory(in Inputs) {
	s.client.Push(remote.Entry{
		Key:   remote.HistoryKey(in.Wall),
		Value: remote.Float(in.Reading.Percent),
	})
	s.stats.HistoryAppended++

	if s.archive != nil {
		s.archive.Archive(in.Wall, in.Reading.Percent)
	}
}

// Stats returns a copy of the activity counters.
func (s *Scheduler) Stats() Stats {
	return s.stats
}
