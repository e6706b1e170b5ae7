// Package control runs the irrigation control loop: sample the probe, sync
// with the remote store, evaluate the state machine and drive the relay.
package control

import (
	"log/slog"
	"time"

	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/remote"
	"github.com/sweeney/irrigation-controller/internal/scheduler"
	"github.com/sweeney/irrigation-controller/internal/sensor"
	"github.com/sweeney/irrigation-controller/internal/status"
)

// Observer is notified of readings and actuator events. Calls happen on the
// loop goroutine and must not block.
type Observer interface {
	ObserveReading(r sensor.Reading)
	ObserveEvent(ev logic.Event)
}

// Deps are the collaborators of a Loop. Wall, LED and Observer may be nil.
type Deps struct {
	Clock     clock.Source
	Wall      clock.Wall
	Sampler   *sensor.Sampler
	Scheduler *scheduler.Scheduler
	Client    remote.Client
	Relay     gpio.Output
	LED       gpio.Output
	Observer  Observer
	Config    logic.Config
}

// Loop owns the controller and every piece of hardware it drives. It is not
// safe for concurrent use; call Start, Tick and Stop from one goroutine.
type Loop struct {
	clk     clock.Source
	wall    clock.Wall
	sampler *sensor.Sampler
	sched   *scheduler.Scheduler
	client  remote.Client
	relay   gpio.Output
	led     *Indicator
	obs     Observer
	initial logic.Config

	ctrl       *logic.Controller
	reading    sensor.Reading
	wallTime   time.Time
	wallOK     bool
	lastReason logic.Reason
	now        clock.Millis
}

// New creates a Loop. Nothing touches hardware until Start.
func New(d Deps) *Loop {
	return &Loop{
		clk:     d.Clock,
		wall:    d.Wall,
		sampler: d.Sampler,
		sched:   d.Scheduler,
		client:  d.Client,
		relay:   d.Relay,
		led:     NewIndicator(d.LED),
		obs:     d.Observer,
		initial: d.Config,
	}
}

// Start creates the controller and forces the relay closed.
func (l *Loop) Start() {
	l.now = l.clk.Now()
	ctrl, ev := logic.NewController(l.initial, l.now)
	l.ctrl = ctrl
	l.apply(ev)
	slog.Info("control loop started",
		"setpoint", l.initial.DesiredMoisturePercent,
		"active_s", l.initial.ActiveDurationSec,
		"idle_s", l.initial.IdleDurationSec)
}

// Tick runs one pass of the loop.
func (l *Loop) Tick() {
	l.now = l.clk.Now()
	now := l.now

	if r, fresh, err := l.sampler.Sample(now); fresh {
		if err != nil {
			slog.Warn("moisture read failed", "err", err)
		}
		l.reading = r
		if l.obs != nil {
			l.obs.ObserveReading(r)
		}
	}
	l.led.Update(now, !l.reading.Valid())

	if l.wall != nil {
		l.wallTime, l.wallOK = l.wall.Now()
	}

	u := l.sched.Run(now, scheduler.Inputs{
		Reading: l.reading,
		State:   l.ctrl.State(),
		Wall:    l.wallTime,
		WallOK:  l.wallOK,
	})
	if !u.Empty() {
		prev := l.ctrl.Config()
		next := prev.Apply(u)
		if next != prev {
			slog.Info("config updated",
				"setpoint", next.DesiredMoisturePercent,
				"active_s", next.ActiveDurationSec,
				"idle_s", next.IdleDurationSec)
		}
		l.ctrl.SetConfig(next)
	}

	if ev, ok := l.ctrl.Evaluate(l.reading.Percent, now); ok {
		l.apply(ev)
	}
}

// Stop forces the actuator idle, closes the relay and turns the LED off.
// The relay key is pushed only if the actuator was open.
func (l *Loop) Stop() {
	if l.ctrl == nil {
		return
	}
	l.now = l.clk.Now()
	l.apply(l.ctrl.ForceIdle(l.now))
	l.led.Off()
}

func (l *Loop) apply(ev logic.Event) {
	changed := ev.From != ev.To
	if !changed && !ev.Forced {
		return
	}

	on := ev.To.On()
	if err := l.relay.Set(on); err != nil {
		slog.Error("relay write failed", "on", on, "err", err)
	}

	// Shutdown from IDLE has nothing new to report.
	if changed || ev.Reason == logic.ReasonStartup {
		l.client.Push(remote.Entry{Key: remote.KeyRelay, Value: remote.Bool(on)})
	}

	l.lastReason = ev.Reason
	if changed {
		slog.Info("actuator transition",
			"from", ev.From, "to", ev.To,
			"reason", ev.Reason, "moisture", ev.Percent)
	}
	if l.obs != nil {
		l.obs.ObserveEvent(ev)
	}
}

// State returns the current actuator state.
func (l *Loop) State() logic.State {
	if l.ctrl == nil {
		return ""
	}
	return l.ctrl.State()
}

// Reading returns the reading the last decision was based on.
func (l *Loop) Reading() sensor.Reading {
	return l.reading
}

// Status returns a snapshot of the loop for the status tracker.
func (l *Loop) Status() status.Control {
	if l.ctrl == nil {
		return status.Control{}
	}
	return status.Control{
		State:            l.ctrl.State(),
		StateFor:         clock.Since(l.ctrl.StateEnteredAt(), l.now).Duration(),
		MoisturePercent:  l.reading.Percent,
		Voltage:          l.reading.Voltage,
		Raw:              l.reading.Raw,
		ReadingValid:     l.reading.Valid(),
		Setpoint:         l.ctrl.Config(),
		Counts:           l.ctrl.Counts(),
		TelemetryCounter: l.sched.Stats().Counter,
		LastReason:       l.lastReason,
		WallClockOK:      l.wallOK,
	}
}
