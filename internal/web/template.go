package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/irrigation-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"duration": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Irrigation Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.active { color: #0366d6; font-weight: bold; }
.idle { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Irrigation Controller</h1>

<h2>Actuator</h2>
<table>
<tr><th>State</th><td id="actuator" class="{{if eq .Actuator "ACTIVE"}}active{{else if eq .Actuator "IDLE"}}idle{{else}}unknown{{end}}">{{.Actuator}}</td></tr>
<tr><th>For</th><td>{{duration .StateFor}}</td></tr>
{{if .LastReason}}<tr><th>Last reason</th><td>{{.LastReason}}</td></tr>{{end}}
<tr><th>Ready</th><td>{{if .Running}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Moisture</h2>
<table>
<tr><th>Moisture</th><td id="moisture">{{if .ReadingValid}}{{printf "%.1f" .MoisturePercent}}%{{else}}no reading{{end}}</td></tr>
<tr><th>Probe</th><td>{{printf "%.3f" .Voltage}}V (raw {{.Raw}})</td></tr>
<tr><th>Setpoint</th><td>{{.Setpoint.DesiredMoisturePercent}}%</td></tr>
<tr><th>Active time</th><td>{{.Setpoint.ActiveDurationSec}}s</td></tr>
<tr><th>Idle time</th><td>{{.Setpoint.IdleDurationSec}}s</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Remote</th><td class="{{if .RemoteConnected}}connected{{else}}disconnected{{end}}">{{if .RemoteConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Prefix</th><td>{{.Config.Prefix}}</td></tr>
<tr><th>Wall clock</th><td>{{if .WallClockOK}}synced{{else}}not synced{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counters</h2>
<table>
<tr><th>Activations</th><td>{{.Counts.Activations}}</td></tr>
<tr><th>Deactivations</th><td>{{.Counts.Deactivations}}</td></tr>
<tr><th>Telemetry</th><td>{{.TelemetryCounter}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{duration .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Boot</th><td>{{.BootID}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Sample</th><td>{{.Config.SampleMs}}ms</td></tr>
<tr><th>Pull / push</th><td>{{.Config.PullMs}}ms / {{.Config.PushMs}}ms</td></tr>
<tr><th>History</th><td>{{.Config.HistoryMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Calibration</th><td>{{if .Config.Inverted}}inverted{{else}}direct{{end}}, raw {{.Config.RawMin}}-{{.Config.RawMax}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/history.json">History</a> · <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has an Uptime method but the template needs plain fields.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Actuator string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Actuator: stateOrUnknown(string(snap.State)),
	}
	return indexTmpl.Execute(w, data)
}

func stateOrUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}
