// Package metrics exposes controller activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/remote"
	"github.com/sweeney/irrigation-controller/internal/sensor"
)

const namespace = "irrigation"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	moisture     prometheus.Gauge
	voltage      prometheus.Gauge
	readings     *prometheus.CounterVec
	actuator     prometheus.Gauge
	transitions  *prometheus.CounterVec
	remoteOps    *prometheus.CounterVec
	connected    prometheus.Gauge
	telemetry    prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors on a private registry, alongside the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		moisture: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "moisture_percent",
			Help:      "Latest calibrated soil moisture reading.",
		}),
		voltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_voltage_volts",
			Help:      "Latest raw probe voltage.",
		}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_readings_total",
			Help:      "Probe samples taken, by validity.",
		}, []string{"result"}),
		actuator: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actuator_active",
			Help:      "1 while the water actuator is open.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuator_transitions_total",
			Help:      "Actuator state changes by target state and reason.",
		}, []string{"to", "reason"}),
		remoteOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_operations_total",
			Help:      "Remote store key operations by op, key and result.",
		}, []string{"op", "key", "result"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_connected",
			Help:      "1 while the remote store session is up.",
		}),
		telemetry: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "telemetry_counter",
			Help:      "Telemetry cycles attempted since startup.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.moisture,
		m.voltage,
		m.readings,
		m.actuator,
		m.transitions,
		m.remoteOps,
		m.connected,
		m.telemetry,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveReading records a fresh probe sample.
func (m *Metrics) ObserveReading(r sensor.Reading) {
	if m == nil {
		return
	}
	if !r.Valid() {
		m.readings.WithLabelValues("invalid").Inc()
		return
	}
	m.readings.WithLabelValues("valid").Inc()
	m.moisture.Set(r.Percent)
	m.voltage.Set(r.Voltage)
}

// ObserveEvent records an actuator event. Forced writes that do not change
// state only refresh the state gauge.
func (m *Metrics) ObserveEvent(ev logic.Event) {
	if m == nil {
		return
	}
	if ev.To.On() {
		m.actuator.Set(1)
	} else {
		m.actuator.Set(0)
	}
	if ev.From != ev.To {
		m.transitions.WithLabelValues(string(ev.To), string(ev.Reason)).Inc()
	}
}

// RemoteResult counts one remote key operation. It satisfies
// remote.ResultFunc.
func (m *Metrics) RemoteResult(op remote.Op, key string, err error) {
	if m == nil {
		return
	}
	m.remoteOps.WithLabelValues(string(op), keyLabel(key), resultLabel(err)).Inc()
}

// SetRemoteConnected records the remote session state.
func (m *Metrics) SetRemoteConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// SetTelemetryCounter records the scheduler's telemetry counter.
func (m *Metrics) SetTelemetryCounter(n int64) {
	if m == nil {
		return
	}
	m.telemetry.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and their duration for route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// keyLabel folds per-sample history keys into one label value.
func keyLabel(key string) string {
	if strings.HasPrefix(key, remote.HistoryPrefix+"/") {
		return remote.HistoryPrefix
	}
	return key
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, remote.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, remote.ErrTimeout):
		return "timeout"
	case errors.Is(err, remote.ErrNoValue):
		return "no_value"
	case errors.Is(err, remote.ErrType):
		return "bad_type"
	default:
		return "error"
	}
}
