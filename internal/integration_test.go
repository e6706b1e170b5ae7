package internal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/irrigation-controller/internal/adc"
	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/control"
	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/metrics"
	"github.com/sweeney/irrigation-controller/internal/remote"
	"github.com/sweeney/irrigation-controller/internal/scheduler"
	"github.com/sweeney/irrigation-controller/internal/sensor"
	"github.com/sweeney/irrigation-controller/internal/storage"
)

// Raw counts equal the moisture percentage with this calibration.
var identity = sensor.Calibration{RawMin: 0, RawMax: 100, VRef: 3.3, FullScale: 100}

type mirrorRecorder struct {
	mu      sync.Mutex
	samples []scheduler.Sample
}

func (m *mirrorRecorder) Mirror(s scheduler.Sample) {
	m.mu.Lock()
	m.samples = append(m.samples, s)
	m.mu.Unlock()
}

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func boolValues(vs []remote.Value) []bool {
	out := make([]bool, len(vs))
	for i, v := range vs {
		out[i] = bool(v.(remote.Bool))
	}
	return out
}

// TestIntegrationFullFlow runs the controller against an async remote client,
// a local history archive, metrics and a telemetry mirror, all with fakes for
// hardware and the broker.
func TestIntegrationFullFlow(t *testing.T) {
	store := remote.NewFakeStore()
	store.Set(remote.KeyDesiredHumidity, 45)
	store.Set(remote.KeyActiveTime, 10)
	store.Set(remote.KeyIdleTime, 30)

	archive, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer archive.Close()
	archiver := storage.NewArchiver(archive, 16)

	met := metrics.New()
	mir := &mirrorRecorder{}
	worker := remote.NewWorker(store, time.Second, 256, met.RemoteResult)

	clk := clock.NewFake(10_000)
	wall := &clock.FakeWall{Time: time.Date(2026, 6, 1, 5, 0, 0, 0, time.UTC), Valid: true}
	relay := gpio.NewFakeOutput()

	// 30 reads at 50% then dry soil at 35%.
	samples := append(repeat(50, 30), 35)
	loop := control.New(control.Deps{
		Clock:     clk,
		Wall:      wall,
		Sampler:   sensor.NewSampler(adc.NewFakeReader(samples...), identity, 1000),
		Scheduler: scheduler.New(worker, scheduler.DefaultPeriods, scheduler.WithArchive(archiver), scheduler.WithMirror(mir)),
		Client:    worker,
		Relay:     relay,
		LED:       gpio.NewFakeOutput(),
		Observer:  met,
		Config:    logic.DefaultConfig,
	})

	loop.Start()
	loop.Tick()

	// The pulled config arrives on a later tick; the clock does not move
	// meanwhile so no other cadence fires.
	require.Eventually(t, func() bool {
		loop.Tick()
		return loop.Status().Setpoint.IdleDurationSec == 30
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, logic.Config{DesiredMoisturePercent: 45, ActiveDurationSec: 10, IdleDurationSec: 30}, loop.Status().Setpoint)

	var states []logic.State
	for i := 1; i <= 100; i++ {
		clk.Advance(time.Second)
		wall.Time = wall.Time.Add(time.Second)
		loop.Tick()
		states = append(states, loop.State())
	}

	// ACTIVE from +30s to +40s and from +70s to +80s.
	assert.Equal(t, logic.StateIdle, states[28], "+29s")
	assert.Equal(t, logic.StateActive, states[29], "+30s")
	assert.Equal(t, logic.StateActive, states[38], "+39s")
	assert.Equal(t, logic.StateIdle, states[39], "+40s")
	assert.Equal(t, logic.StateIdle, states[68], "+69s")
	assert.Equal(t, logic.StateActive, states[69], "+70s")
	assert.Equal(t, logic.StateIdle, states[79], "+80s")

	loop.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, worker.Close(ctx))
	assert.Zero(t, worker.Dropped())
	require.NoError(t, archiver.Close(ctx))
	assert.Zero(t, archiver.Dropped())

	// Hardware
	assert.Equal(t, []bool{false, true, false, true, false, false}, relay.Writes)

	// Remote: relay only on change plus the startup write.
	assert.Equal(t, []bool{false, true, false, true, false}, boolValues(store.PushedKey(remote.KeyRelay)))

	// Telemetry every 10s from +0s to +100s, counter from 0.
	counts := store.PushedKey(remote.KeyCount)
	require.Len(t, counts, 11)
	assert.Equal(t, remote.Int(0), counts[0])
	assert.Equal(t, remote.Int(10), counts[10])
	assert.Len(t, store.PushedKey(remote.KeyCurrentDateTime), 11)

	// History at +0s and +60s, remotely and locally.
	assert.Len(t, store.PushedPrefix(remote.HistoryPrefix+"/"), 2)

	points, err := archive.RecentHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.InDelta(t, 35.0, points[0].Percent, 1e-9)
	assert.InDelta(t, 50.0, points[1].Percent, 1e-9)

	// Mirror
	mir.mu.Lock()
	assert.Len(t, mir.samples, 11)
	mir.mu.Unlock()

	// Metrics
	expected := `
# HELP irrigation_actuator_transitions_total Actuator state changes by target state and reason.
# TYPE irrigation_actuator_transitions_total counter
irrigation_actuator_transitions_total{reason="moisture below setpoint",to="ACTIVE"} 2
irrigation_actuator_transitions_total{reason="pulse elapsed",to="IDLE"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(met.Registry(), strings.NewReader(expected), "irrigation_actuator_transitions_total"))
}

// TestIntegrationRemoteUnreachable checks that the controller keeps running
// on its defaults while every remote call fails.
func TestIntegrationRemoteUnreachable(t *testing.T) {
	store := remote.NewFakeStore()
	for _, k := range remote.ConfigKeys {
		store.FailPull(k, remote.ErrNotConnected)
	}
	for _, k := range []string{remote.KeyRelay, remote.KeyCount, remote.KeyVoltageSensor, remote.KeyRelativeHumidity, remote.KeyCurrentDateTime} {
		store.FailPush(k, remote.ErrNotConnected)
	}

	met := metrics.New()
	clk := clock.NewFake(0)
	relay := gpio.NewFakeOutput()
	client := remote.NewDirect(store, time.Second, met.RemoteResult)

	loop := control.New(control.Deps{
		Clock:     clk,
		Sampler:   sensor.NewSampler(adc.NewFakeReader(35), identity, 1000),
		Scheduler: scheduler.New(client, scheduler.DefaultPeriods),
		Client:    client,
		Relay:     relay,
		Observer:  met,
		Config:    logic.DefaultConfig,
	})

	loop.Start()
	loop.Tick()
	for i := 0; i < 70; i++ {
		clk.Advance(time.Second)
		loop.Tick()
	}

	// Default idle dwell is 60s, then one 10s pulse.
	assert.Equal(t, logic.DefaultConfig, loop.Status().Setpoint)
	assert.Equal(t, []bool{false, true, false}, relay.Writes)
	assert.Equal(t, 1, loop.Status().Counts.Activations)
	assert.Zero(t, store.PushedCount(), "nothing reached the store")
	assert.False(t, loop.Status().WallClockOK)
}

// TestIntegrationSensorFailure checks that a failing probe freezes the
// controller while telemetry keeps flowing.
func TestIntegrationSensorFailure(t *testing.T) {
	store := remote.NewFakeStore()
	clk := clock.NewFake(0)
	relay := gpio.NewFakeOutput()
	led := gpio.NewFakeOutput()
	reader := adc.NewFakeReader(10)
	reader.ReadError = errors.New("i2c: remote i/o error")
	client := remote.NewDirect(store, time.Second, nil)

	loop := control.New(control.Deps{
		Clock:     clk,
		Wall:      &clock.FakeWall{Time: time.Date(2026, 6, 1, 5, 0, 0, 0, time.UTC), Valid: true},
		Sampler:   sensor.NewSampler(reader, identity, 1000),
		Scheduler: scheduler.New(client, scheduler.DefaultPeriods),
		Client:    client,
		Relay:     relay,
		LED:       led,
		Config:    logic.DefaultConfig,
	})

	loop.Start()
	loop.Tick()
	for i := 0; i < 120; i++ {
		clk.Advance(time.Second)
		loop.Tick()
	}

	assert.Equal(t, logic.StateIdle, loop.State())
	assert.Equal(t, []bool{false}, relay.Writes)
	assert.Len(t, store.PushedKey(remote.KeyCount), 13)
	for _, v := range store.PushedKey(remote.KeyRelativeHumidity) {
		assert.Equal(t, remote.Float(0), v)
	}
	// No history while the reading is invalid.
	assert.Equal(t, 13*4+1, store.PushedCount(), "telemetry entries plus the startup relay write")
	// Degraded blink period is shorter than a tick, so every tick toggles.
	assert.Len(t, led.Writes, 121)
}
