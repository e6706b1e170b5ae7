package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/remote"
	"github.com/sweeney/irrigation-controller/internal/sensor"
)

var wall = time.Date(2026, 10, 17, 6, 30, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *remote.FakeStore) {
	t.Helper()
	store := remote.NewFakeStore()
	return New(remote.NewDirect(store, time.Second, nil), DefaultPeriods, opts...), store
}

func inputs(pct float64, wallOK bool) Inputs {
	return Inputs{
		Reading: sensor.Reading{Percent: pct, Voltage: 1.65},
		State:   logic.StateIdle,
		Wall:    wall,
		WallOK:  wallOK,
	}
}

func TestPullAppliesEachFieldIndependently(t *testing.T) {
	s, store := newTestScheduler(t)
	store.Set(remote.KeyDesiredHumidity, 55)
	store.FailPull(remote.KeyActiveTime, errors.New("permission denied"))
	store.Set(remote.KeyIdleTime, 120)

	u := s.Run(0, inputs(50, true))

	if u.DesiredMoisturePercent == nil || *u.DesiredMoisturePercent != 55 {
		t.Errorf("desired: got %v, want 55", u.DesiredMoisturePercent)
	}
	if u.ActiveDurationSec != nil {
		t.Errorf("failed field must stay nil, got %d", *u.ActiveDurationSec)
	}
	if u.IdleDurationSec == nil || *u.IdleDurationSec != 120 {
		t.Errorf("idle: got %v, want 120", u.IdleDurationSec)
	}

	cfg := logic.DefaultConfig.Apply(u)
	if cfg.ActiveDurationSec != logic.DefaultConfig.ActiveDurationSec {
		t.Errorf("active duration changed on failed fetch: %d", cfg.ActiveDurationSec)
	}
}

func TestPullTotalFailureLeavesConfigUntouched(t *testing.T) {
	s, store := newTestScheduler(t)
	for _, k := range remote.ConfigKeys {
		store.FailPull(k, remote.ErrNotConnected)
	}

	u := s.Run(0, inputs(50, true))
	if !u.Empty() {
		t.Errorf("expected empty update, got %+v", u)
	}
	if s.Stats().PullsCompleted != 1 {
		t.Errorf("pull should still count as completed")
	}
}

func TestPullRejectsOutOfRangeValues(t *testing.T) {
	s, store := newTestScheduler(t)
	store.Set(remote.KeyDesiredHumidity, 140)
	store.Set(remote.KeyActiveTime, -5)
	store.Set(remote.KeyIdleTime, 30)

	u := s.Run(0, inputs(50, true))
	if u.DesiredMoisturePercent != nil || u.ActiveDurationSec != nil {
		t.Errorf("out-of-range values applied: %+v", u)
	}
	if u.IdleDurationSec == nil || *u.IdleDurationSec != 30 {
		t.Errorf("valid field not applied")
	}
	st := s.Stats()
	if st.FieldsRejected != 2 || st.FieldsApplied != 1 {
		t.Errorf("stats: %+v", st)
	}
}

func TestPullCadence(t *testing.T) {
	s, store := newTestScheduler(t)
	store.Set(remote.KeyDesiredHumidity, 50)

	s.Run(0, inputs(50, true))
	for now := clock.Millis(100); now < 10_000; now += 100 {
		if u := s.Run(now, inputs(50, true)); !u.Empty() {
			t.Fatalf("unexpected pull result at %d", now)
		}
	}
	if u := s.Run(10_000, inputs(50, true)); u.Empty() {
		t.Error("expected second pull at 10s")
	}
	if store.Pulls != 2 {
		t.Errorf("expected 2 pulls, got %d", store.Pulls)
	}
}

func TestTelemetryPushAndCounter(t *testing.T) {
	s, store := newTestScheduler(t)

	s.Run(0, inputs(42.5, true))
	s.Run(5_000, inputs(42.5, true))
	s.Run(10_000, inputs(43, true))

	counts := store.PushedKey(remote.KeyCount)
	if len(counts) != 2 || counts[0] != remote.Int(0) || counts[1] != remote.Int(1) {
		t.Errorf("counter pushes: got %v, want [0 1]", counts)
	}
	hum := store.PushedKey(remote.KeyRelativeHumidity)
	if len(hum) != 2 || hum[1] != remote.Float(43) {
		t.Errorf("humidity pushes: %v", hum)
	}
	volts := store.PushedKey(remote.KeyVoltageSensor)
	if len(volts) != 2 || volts[0] != remote.Float(1.65) {
		t.Errorf("voltage pushes: %v", volts)
	}
	dt := store.PushedKey(remote.KeyCurrentDateTime)
	if len(dt) != 2 || dt[0] != remote.String("2026-10-17T06:30:00Z") {
		t.Errorf("datetime pushes: %v", dt)
	}
	if len(store.PushedKey(remote.KeyRelay)) != 0 {
		t.Error("telemetry must not push actuator state")
	}
}

func TestCounterAdvancesOnFailedPush(t *testing.T) {
	s, store := newTestScheduler(t)
	store.FailPush(remote.KeyCount, remote.ErrTimeout)

	s.Run(0, inputs(42, true))
	store.FailPush(remote.KeyCount, nil)
	s.Run(10_000, inputs(42, true))

	counts := store.PushedKey(remote.KeyCount)
	if len(counts) != 1 || counts[0] != remote.Int(1) {
		t.Errorf("expected only counter 1 to land, got %v", counts)
	}
	if s.Stats().Counter != 2 {
		t.Errorf("counter: got %d, want 2", s.Stats().Counter)
	}
}

func TestTelemetryWithoutWallClockSkipsDateTime(t *testing.T) {
	s, store := newTestScheduler(t)
	s.Run(0, inputs(42, false))

	if len(store.PushedKey(remote.KeyCurrentDateTime)) != 0 {
		t.Error("datetime pushed without a valid wall clock")
	}
	if len(store.PushedKey(remote.KeyCount)) != 1 {
		t.Error("counter should still be pushed")
	}
}

func TestHistoryCadenceAndGating(t *testing.T) {
	s, store := newTestScheduler(t)

	s.Run(0, inputs(0, true))       // invalid reading
	s.Run(1_000, inputs(30, false)) // no wall clock
	if s.Stats().HistoryAppended != 0 {
		t.Fatal("history appended while gated")
	}

	s.Run(2_000, inputs(30, true))
	s.Run(30_000, inputs(31, true))
	s.Run(62_000, inputs(32, true))

	var history []remote.Entry
	for _, e := range store.Pushed {
		if len(e.Key) > len(remote.HistoryPrefix) && e.Key[:len(remote.HistoryPrefix)] == remote.HistoryPrefix {
			history = append(history, e)
		}
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history appends, got %d", len(history))
	}
	if history[0].Key != "history/2026-10-17/06:30:00" || history[0].Value != remote.Float(30) {
		t.Errorf("first history entry: %+v", history[0])
	}
	if history[1].Value != remote.Float(32) {
		t.Errorf("second history entry: %+v", history[1])
	}
}

type fakeArchive struct {
	percents []float64
}

func (f *fakeArchive) Archive(_ time.Time, pct float64) {
	f.percents = append(f.percents, pct)
}

type fakeMirror struct {
	samples []Sample
}

func (f *fakeMirror) Mirror(s Sample) { f.samples = append(f.samples, s) }

func TestArchiveAndMirror(t *testing.T) {
	archive := &fakeArchive{}
	mirror := &fakeMirror{}
	s, _ := newTestScheduler(t, WithArchive(archive), WithMirror(mirror))

	in := inputs(44, true)
	in.State = logic.StateActive
	s.Run(0, in)

	if len(archive.percents) != 1 || archive.percents[0] != 44 {
		t.Errorf("archive: %v", archive.percents)
	}
	if len(mirror.samples) != 1 {
		t.Fatalf("mirror: expected 1 sample, got %d", len(mirror.samples))
	}
	got := mirror.samples[0]
	if got.ActuatorState != logic.StateActive || got.Counter != 0 || !got.Timestamp.Equal(wall) {
		t.Errorf("mirrored sample: %+v", got)
	}
}
