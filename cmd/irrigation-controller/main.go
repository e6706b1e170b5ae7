// Command irrigation-controller reads a soil moisture probe, drives a water
// valve relay with hysteresis and syncs config and telemetry over MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	"github.com/sweeney/irrigation-controller/internal/adc"
	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/control"
	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/metrics"
	"github.com/sweeney/irrigation-controller/internal/mirror"
	"github.com/sweeney/irrigation-controller/internal/remote"
	"github.com/sweeney/irrigation-controller/internal/scheduler"
	"github.com/sweeney/irrigation-controller/internal/sensor"
	"github.com/sweeney/irrigation-controller/internal/status"
	"github.com/sweeney/irrigation-controller/internal/storage"
	"github.com/sweeney/irrigation-controller/internal/web"
)

// envMQTTPassword keeps the broker password off the command line.
const envMQTTPassword = "IRRIGATION_MQTT_PASSWORD"

type config struct {
	tick        time.Duration
	sample      time.Duration
	pull        time.Duration
	push        time.Duration
	history     time.Duration
	heartbeat   time.Duration
	syncTimeout time.Duration
	queueSize   int

	cal        sensor.Calibration
	i2cBus     string
	i2cAddr    uint
	adcChannel int

	gpioChip       string
	pinRelay       int
	pinLED         int
	relayActiveLow bool

	broker   string
	prefix   string
	mqttUser string

	httpAddr     string
	dbPath       string
	kafkaBrokers string
	kafkaTopic   string

	defaults     logic.Config
	printReading bool
}

func main() {
	var cfg config
	flag.DurationVar(&cfg.tick, "tick", 100*time.Millisecond, "Control loop tick interval")
	flag.DurationVar(&cfg.sample, "sample", time.Second, "Moisture sampling period")
	flag.DurationVar(&cfg.pull, "pull", 10*time.Second, "Remote config pull period")
	flag.DurationVar(&cfg.push, "push", 10*time.Second, "Telemetry push period")
	flag.DurationVar(&cfg.history, "history", time.Minute, "History append period")
	flag.DurationVar(&cfg.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.DurationVar(&cfg.syncTimeout, "sync-timeout", 5*time.Second, "Timeout for each remote operation")
	flag.IntVar(&cfg.queueSize, "queue", remote.DefaultQueueSize, "Pending remote operations before the oldest is dropped")

	flag.IntVar(&cfg.cal.RawMin, "raw-min", sensor.DefaultCalibration.RawMin, "Raw ADC count mapped to 0% (100% when inverted)")
	flag.IntVar(&cfg.cal.RawMax, "raw-max", sensor.DefaultCalibration.RawMax, "Raw ADC count mapped to 100% (0% when inverted)")
	flag.BoolVar(&cfg.cal.Inverted, "inverted", sensor.DefaultCalibration.Inverted, "Higher raw counts mean drier soil")
	flag.Float64Var(&cfg.cal.VRef, "vref", sensor.DefaultCalibration.VRef, "ADC reference voltage")
	flag.IntVar(&cfg.cal.FullScale, "full-scale", sensor.DefaultCalibration.FullScale, "ADC full-scale count")
	flag.StringVar(&cfg.i2cBus, "i2c-bus", adc.DefaultBus, "I2C bus name (empty for the first bus)")
	flag.UintVar(&cfg.i2cAddr, "i2c-addr", adc.DefaultAddress, "I2C address of the ADC")
	flag.IntVar(&cfg.adcChannel, "adc-channel", adc.DefaultChannel, "ADC channel of the moisture probe")

	flag.StringVar(&cfg.gpioChip, "gpio-chip", gpio.DefaultChip, "GPIO chip")
	flag.IntVar(&cfg.pinRelay, "pin-relay", gpio.DefaultPinRelay, "BCM pin number for the valve relay")
	flag.IntVar(&cfg.pinLED, "pin-led", gpio.DefaultPinLED, "BCM pin number for the status LED (-1 to disable)")
	flag.BoolVar(&cfg.relayActiveLow, "relay-active-low", false, "Relay board energises on a low line")

	flag.StringVar(&cfg.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.StringVar(&cfg.prefix, "prefix", remote.DefaultPrefix, "MQTT topic prefix for all keys")
	flag.StringVar(&cfg.mqttUser, "mqtt-user", "", "MQTT username (password from "+envMQTTPassword+")")

	flag.StringVar(&cfg.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.StringVar(&cfg.dbPath, "db", "", "SQLite history archive path (empty to disable)")
	flag.StringVar(&cfg.kafkaBrokers, "kafka-brokers", "", "Comma-separated Kafka brokers for the telemetry mirror (empty to disable)")
	flag.StringVar(&cfg.kafkaTopic, "kafka-topic", mirror.DefaultTopic, "Kafka topic for the telemetry mirror")

	flag.IntVar(&cfg.defaults.DesiredMoisturePercent, "setpoint", logic.DefaultConfig.DesiredMoisturePercent, "Moisture setpoint until the first config pull")
	flag.IntVar(&cfg.defaults.ActiveDurationSec, "active", logic.DefaultConfig.ActiveDurationSec, "Minimum watering time in seconds until the first config pull")
	flag.IntVar(&cfg.defaults.IdleDurationSec, "idle", logic.DefaultConfig.IdleDurationSec, "Minimum idle time in seconds until the first config pull")

	flag.BoolVar(&cfg.printReading, "print-reading", false, "Print one moisture reading and exit")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")

	flag.Parse()

	setupLogging(*logLevel)

	if err := run(cfg); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      l,
		TimeFormat: time.DateTime,
	})))
}

func run(cfg config) error {
	if err := cfg.cal.Validate(); err != nil {
		return err
	}

	// Initialize ADC
	reader, err := adc.NewGroveReader(cfg.i2cBus, uint16(cfg.i2cAddr), cfg.adcChannel)
	if err != nil {
		return fmt.Errorf("init adc: %w", err)
	}
	defer reader.Close()

	// Print reading mode
	if cfg.printReading {
		raw, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read adc: %w", err)
		}
		fmt.Println(formatReading(cfg.cal.Convert(raw, 0)))
		return nil
	}

	// Initialize GPIO
	relay, err := gpio.NewRealOutput(cfg.gpioChip, cfg.pinRelay, cfg.relayActiveLow)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer relay.Close()

	var led gpio.Output
	if cfg.pinLED >= 0 {
		out, err := gpio.NewRealOutput(cfg.gpioChip, cfg.pinLED, false)
		if err != nil {
			slog.Warn("status led unavailable", "pin", cfg.pinLED, "err", err)
		} else {
			defer out.Close()
			led = out
		}
	}

	bootID := uuid.NewString()
	met := metrics.New()

	// Initialize MQTT
	store, err := remote.NewMQTTStore(remote.MQTTOptions{
		Broker:   cfg.broker,
		ClientID: "irrigation-" + bootID[:8],
		Username: cfg.mqttUser,
		Password: os.Getenv(envMQTTPassword),
		Prefix:   cfg.prefix,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer store.Close()

	worker := remote.NewWorker(store, cfg.syncTimeout, cfg.queueSize, met.RemoteResult)

	var opts []scheduler.Option
	var history web.HistorySource
	if cfg.dbPath != "" {
		db, err := storage.Open(cfg.dbPath)
		if err != nil {
			return fmt.Errorf("init history archive: %w", err)
		}
		defer db.Close()
		archiver := storage.NewArchiver(db, storage.DefaultArchiveBuffer)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.syncTimeout)
			defer cancel()
			if err := archiver.Close(ctx); err != nil {
				slog.Warn("history archive not drained", "err", err)
			}
		}()
		opts = append(opts, scheduler.WithArchive(archiver))
		history = db
	}
	if cfg.kafkaBrokers != "" {
		km, err := mirror.NewKafka(strings.Split(cfg.kafkaBrokers, ","), cfg.kafkaTopic, bootID)
		if err != nil {
			return fmt.Errorf("init kafka mirror: %w", err)
		}
		defer km.Close()
		opts = append(opts, scheduler.WithMirror(km))
	}

	sched := scheduler.New(worker, scheduler.Periods{
		Pull:    clock.FromDuration(cfg.pull),
		Push:    clock.FromDuration(cfg.push),
		History: clock.FromDuration(cfg.history),
	}, opts...)

	sampler := sensor.NewSampler(reader, cfg.cal, clock.FromDuration(cfg.sample))
	loop := control.New(control.Deps{
		Clock:     clock.NewMonotonic(time.Now()),
		Wall:      clock.SystemWall{},
		Sampler:   sampler,
		Scheduler: sched,
		Client:    worker,
		Relay:     relay,
		LED:       led,
		Observer:  met,
		Config:    cfg.defaults,
	})

	// Initialize status tracker (before STARTUP so snapshot is available)
	cal := sampler.Calibration()
	tracker := status.NewTracker(time.Now(), bootID, status.Config{
		TickMs:      cfg.tick.Milliseconds(),
		SampleMs:    cfg.sample.Milliseconds(),
		PullMs:      cfg.pull.Milliseconds(),
		PushMs:      cfg.push.Milliseconds(),
		HistoryMs:   cfg.history.Milliseconds(),
		HeartbeatMs: cfg.heartbeat.Milliseconds(),
		Broker:      cfg.broker,
		Prefix:      cfg.prefix,
		HTTPAddr:    cfg.httpAddr,
		Inverted:    cal.Inverted,
		RawMin:      cal.RawMin,
		RawMax:      cal.RawMax,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Start HTTP status server
	if cfg.httpAddr != "" {
		srv := web.New(cfg.httpAddr, tracker, web.Options{History: history, Metrics: met})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		slog.Info("http status server listening", "addr", cfg.httpAddr)
	}

	slog.Info("started",
		"boot_id", bootID,
		"tick", cfg.tick,
		"sample", cfg.sample,
		"broker", cfg.broker,
		"prefix", cfg.prefix,
		"heartbeat", cfg.heartbeat)

	ticker := time.NewTicker(cfg.tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(loop, worker, store, tracker, met, cfg.heartbeat, time.Now, ticker.C, sigCh)

	// Give queued pushes (relay off, SHUTDOWN) a chance to reach the broker.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.syncTimeout)
	defer cancel()
	if cerr := worker.Close(ctx); cerr != nil {
		slog.Warn("remote queue not drained", "pending", worker.Pending(), "err", cerr)
	}
	return err
}

// connectionStatus reports remote session health.
type connectionStatus interface {
	Connected() bool
}

func runLoop(loop *control.Loop, client remote.Client, conn connectionStatus, tracker *status.Tracker, met *metrics.Metrics, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	refresh := func() {
		st := loop.Status()
		met.SetTelemetryCounter(st.TelemetryCounter)
		if conn != nil {
			up := conn.Connected()
			met.SetRemoteConnected(up)
			tracker.SetRemoteConnected(up)
		}
		tracker.Update(st)
	}
	pushStatus := func(event, reason string) {
		payload := status.FormatStatusEvent(tracker.Snapshot(), event, reason)
		client.Push(remote.Entry{Key: remote.KeyStatus, Value: remote.String(payload)})
	}

	loop.Start()
	refresh()
	pushStatus("STARTUP", "")
	slog.Info("published startup event")

	lastHeartbeat := now()

	for {
		select {
		case s := <-sig:
			signalName := signalString(s)
			slog.Info("shutting down", "signal", signalName)
			loop.Stop()
			refresh()
			pushStatus("SHUTDOWN", signalName)
			slog.Info("published shutdown event")
			return nil

		case <-tick:
			loop.Tick()
			refresh()

			if heartbeat <= 0 {
				continue
			}
			t := now()
			if t.Sub(lastHeartbeat) < heartbeat {
				continue
			}
			lastHeartbeat = t
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			slog.Info("heartbeat",
				"uptime", snap.Uptime().Truncate(time.Second),
				"state", snap.State,
				"moisture", snap.MoisturePercent,
				"activations", snap.Counts.Activations,
				"counter", snap.TelemetryCounter)
			pushStatus("HEARTBEAT", "")
		}
	}
}

func signalString(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func formatReading(r sensor.Reading) string {
	return fmt.Sprintf("Moisture: %.1f%% (raw %d, %.3fV)", r.Percent, r.Raw, r.Voltage)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
