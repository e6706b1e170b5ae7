package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	BootID        string       `json:"boot_id"`
	Actuator      string       `json:"actuator"`
	StateSeconds  int64        `json:"state_seconds"`
	LastReason    string       `json:"last_reason,omitempty"`
	Ready         bool         `json:"ready"`
	Moisture      MoistureJSON `json:"moisture"`
	Setpoint      SetpointJSON `json:"setpoint"`
	Counts        CountsJSON   `json:"transition_counts"`
	Counter       int64        `json:"telemetry_counter"`
	WallClock     bool         `json:"wall_clock"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Remote        RemoteStatus `json:"remote"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MoistureJSON is the latest sensor reading.
type MoistureJSON struct {
	Percent float64 `json:"percent"`
	Voltage float64 `json:"voltage"`
	Raw     int     `json:"raw"`
	Valid   bool    `json:"valid"`
}

// SetpointJSON is the configuration held by the controller.
type SetpointJSON struct {
	DesiredPercent int `json:"desired_percent"`
	ActiveSeconds  int `json:"active_seconds"`
	IdleSeconds    int `json:"idle_seconds"`
}

// RemoteStatus reports remote store connection state.
type RemoteStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Prefix    string `json:"prefix"`
}

// CountsJSON is the JSON representation of transition counts.
type CountsJSON struct {
	Activations   int `json:"activations"`
	Deactivations int `json:"deactivations"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	SampleMs    int64  `json:"sample_ms"`
	PullMs      int64  `json:"pull_ms"`
	PushMs      int64  `json:"push_ms"`
	HistoryMs   int64  `json:"history_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	HTTPAddr    string `json:"http_addr"`
	Inverted    bool   `json:"calibration_inverted"`
	RawMin      int    `json:"calibration_raw_min"`
	RawMax      int    `json:"calibration_raw_max"`
}

func buildInner(snap Snapshot) StatusInner {
	actuator := string(snap.State)
	if actuator == "" {
		actuator = "UNKNOWN"
	}

	return StatusInner{
		BootID:       snap.BootID,
		Actuator:     actuator,
		StateSeconds: int64(snap.StateFor.Truncate(time.Second).Seconds()),
		LastReason:   string(snap.LastReason),
		Ready:        snap.Running,
		Moisture: MoistureJSON{
			Percent: snap.MoisturePercent,
			Voltage: snap.Voltage,
			Raw:     snap.Raw,
			Valid:   snap.ReadingValid,
		},
		Setpoint: SetpointJSON{
			DesiredPercent: snap.Setpoint.DesiredMoisturePercent,
			ActiveSeconds:  snap.Setpoint.ActiveDurationSec,
			IdleSeconds:    snap.Setpoint.IdleDurationSec,
		},
		Counts: CountsJSON{
			Activations:   snap.Counts.Activations,
			Deactivations: snap.Counts.Deactivations,
		},
		Counter:       snap.TelemetryCounter,
		WallClock:     snap.WallClockOK,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Remote: RemoteStatus{
			Connected: snap.RemoteConnected,
			Broker:    snap.Config.Broker,
			Prefix:    snap.Config.Prefix,
		},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			SampleMs:    snap.Config.SampleMs,
			PullMs:      snap.Config.PullMs,
			PushMs:      snap.Config.PushMs,
			HistoryMs:   snap.Config.HistoryMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			HTTPAddr:    snap.Config.HTTPAddr,
			Inverted:    snap.Config.Inverted,
			RawMin:      snap.Config.RawMin,
			RawMax:      snap.Config.RawMax,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for a lifecycle event pushed to
// the remote store (STARTUP, HEARTBEAT, SHUTDOWN).
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
