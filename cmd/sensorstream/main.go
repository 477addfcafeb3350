// Package main implements the entry point for the sensorstream simulator.
// It wires the sensor registry, stream broker, anomaly detector and alert
// manager into a pipeline and serves the frame stream over WebSocket,
// optionally mirroring it to NATS.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/sensorstream/alerter"
	"github.com/c360/sensorstream/broker"
	"github.com/c360/sensorstream/component"
	"github.com/c360/sensorstream/config"
	"github.com/c360/sensorstream/detector"
	"github.com/c360/sensorstream/engine"
	"github.com/c360/sensorstream/health"
	"github.com/c360/sensorstream/metric"
	"github.com/c360/sensorstream/output/natsbridge"
	"github.com/c360/sensorstream/output/recorder"
	"github.com/c360/sensorstream/output/webhook"
	"github.com/c360/sensorstream/output/websocket"
	"github.com/c360/sensorstream/registry"
	"github.com/c360/sensorstream/sensor"
)

// Build information constants.
const (
	Version = "0.1.0"
	appName = "sensorstream"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := config.LoadOrDefault(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}

	if cliCfg.Validate {
		fmt.Println("configuration is valid")
		return nil
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	logger.Info("starting sensorstream",
		"version", Version,
		"config", cliCfg.ConfigPath,
		"sensors", len(cfg.Sensors))

	metricsRegistry := metric.NewRegistry()

	eng, err := buildPipeline(cfg, logger, metricsRegistry)
	if err != nil {
		return err
	}

	group := component.NewGroup(logger)
	group.Add(eng)

	if cfg.Gateway.Enabled {
		gwCfg := websocket.Config{
			Host:         cfg.Gateway.Host,
			Port:         cfg.Gateway.Port,
			Path:         cfg.Gateway.Path,
			PingInterval: cfg.Gateway.PingInterval.Std(),
		}
		group.Add(websocket.New(gwCfg, eng, logger, websocket.WithMetrics(metricsRegistry)))
	}

	if cfg.NATS.Enabled {
		brCfg := natsbridge.DefaultConfig()
		brCfg.URL = cfg.NATS.URL
		brCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		brCfg.UseJetStream = cfg.NATS.UseJetStream
		brCfg.StreamName = cfg.NATS.StreamName
		group.Add(natsbridge.New(brCfg, eng, logger, natsbridge.WithMetrics(metricsRegistry)))
	}

	if cfg.Recorder.Enabled {
		recCfg := recorder.Config{
			Directory:     cfg.Recorder.Directory,
			FilePrefix:    cfg.Recorder.FilePrefix,
			Append:        cfg.Recorder.Append,
			FlushInterval: cfg.Recorder.FlushInterval.Std(),
		}
		group.Add(recorder.New(recCfg, eng, logger))
	}

	if cfg.Webhook.Enabled {
		whCfg := webhook.DefaultConfig()
		whCfg.URL = cfg.Webhook.URL
		whCfg.Headers = cfg.Webhook.Headers
		whCfg.Timeout = cfg.Webhook.Timeout.Std()
		group.Add(webhook.New(whCfg, eng, logger))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := group.Start(ctx); err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	monitor := health.NewMonitor()
	monitor.Watch(ctx, eng.Name(), 5*time.Second, func() health.Status {
		return health.FromState(eng.Name(), eng.State())
	})

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry,
			monitor.Healthy, logger)
		if err := metricsServer.Start(); err != nil {
			_ = group.Stop(cliCfg.ShutdownTimeout)
			return fmt.Errorf("starting metrics server: %w", err)
		}
		logger.Info("metrics endpoint up", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	var firstErr error
	if err := group.Stop(cliCfg.ShutdownTimeout); err != nil {
		firstErr = err
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(cliCfg.ShutdownTimeout); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildPipeline assembles the four pipeline stages and registers the
// configured sensors.
func buildPipeline(cfg *config.Config, logger *slog.Logger, metricsRegistry *metric.Registry) (*engine.Engine, error) {
	reg := registry.New(logger, metricsRegistry.CoreMetrics())

	brk := broker.New(logger,
		broker.WithQueueCapacity(cfg.Broker.QueueCapacity),
		broker.WithPolicy(cfg.OverflowPolicy()),
		broker.WithBacklog(cfg.Broker.Backlog),
		broker.WithMetrics(metricsRegistry),
	)

	det, err := detector.New(cfg.Detector, logger, detector.WithMetrics(metricsRegistry))
	if err != nil {
		return nil, fmt.Errorf("building detector: %w", err)
	}

	alm := alerter.New(logger,
		alerter.WithCooldown(cfg.Alerter.Cooldown.Std()),
		alerter.WithMetrics(metricsRegistry),
	)

	eng := engine.New(reg, brk, det, alm, logger,
		engine.WithTickResolution(cfg.Engine.TickResolution.Std()),
		engine.WithMetrics(metricsRegistry),
	)

	for _, spec := range cfg.Sensors {
		id, err := eng.RegisterSensor(sensor.Config{
			Kind:             spec.Kind,
			Mean:             spec.Mean,
			NoiseAmplitude:   spec.NoiseAmplitude,
			DriftRate:        spec.DriftRate,
			SamplingInterval: spec.SamplingInterval.Std(),
			Location:         spec.Location,
			Name:             spec.Name,
			Seed:             spec.Seed,
		})
		if err != nil {
			return nil, fmt.Errorf("registering sensor %q: %w", spec.Name, err)
		}
		logger.Info("sensor registered", "id", id, "kind", spec.Kind, "name", spec.Name)
	}

	return eng, nil
}
