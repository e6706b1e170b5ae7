// Package status provides a thread-safe status tracker for the irrigation
// controller. It is read by the HTTP handlers and the lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	SampleMs    int64
	PullMs      int64
	PushMs      int64
	HistoryMs   int64
	HeartbeatMs int64
	Broker      string
	Prefix      string
	HTTPAddr    string
	Inverted    bool
	RawMin      int
	RawMax      int
}

// Control is the control loop's view published once per tick.
type Control struct {
	State            logic.State
	StateFor         time.Duration
	MoisturePercent  float64
	Voltage          float64
	Raw              int
	ReadingValid     bool
	Setpoint         logic.Config
	Counts           logic.TransitionCounts
	TelemetryCounter int64
	LastReason       logic.Reason
	WallClockOK      bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Control
	Running         bool
	BootID          string
	StartTime       time.Time
	Now             time.Time
	RemoteConnected bool
	Network         *NetworkInfo
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, boot ID and config.
func NewTracker(startTime time.Time, bootID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces the control loop view.
// Called from runLoop on every tick.
func (t *Tracker) Update(c Control) {
	t.mu.Lock()
	t.snap.Control = c
	t.snap.Running = true
	t.mu.Unlock()
}

// SetRemoteConnected sets the remote store connection status.
func (t *Tracker) SetRemoteConnected(connected bool) {
	t.mu.Lock()
	t.snap.RemoteConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
