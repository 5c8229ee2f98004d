package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/automaxprocs/maxprocs"

	appenum "github.com/sitescout/sitescout/internal/app/enumeration"
	appscan "github.com/sitescout/sitescout/internal/app/scanning"
	"github.com/sitescout/sitescout/internal/config"
	"github.com/sitescout/sitescout/internal/config/envloader"
	"github.com/sitescout/sitescout/internal/config/fileloader"
	"github.com/sitescout/sitescout/internal/domain/enumeration"
	"github.com/sitescout/sitescout/internal/domain/events"
	"github.com/sitescout/sitescout/internal/infra/browser"
	"github.com/sitescout/sitescout/internal/infra/eventbus/kafka"
	"github.com/sitescout/sitescout/internal/infra/eventbus/memory"
	storage "github.com/sitescout/sitescout/internal/infra/storage/scanning/memory"
	"github.com/sitescout/sitescout/pkg/common/logger"
	"github.com/sitescout/sitescout/pkg/common/otel"
)

const serviceType = "orchestrator"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	configPath := flag.String("config", "", "path to the orchestrator config file")
	fromEnv := flag.Bool("env", true, "layer SITESCOUT_-prefixed environment variables over the config file")
	target := flag.String("target", "", "submit one scan for this target, stream its progress, then exit")
	flag.Parse()

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("ORCHESTRATOR-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	logger := logger.NewWithMetadata(os.Stdout, logger.LevelDebug, svcName, traceIDFn, logEvents, metadata)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cfg, err := loadConfig(ctx, *configPath, *fromEnv)
	if err != nil {
		logger.Error(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	var tracer trace.Tracer = noop.NewTracerProvider().Tracer(serviceType)
	if cfg.Telemetry.Enabled {
		tp, telemetryTeardown, err := otel.InitTelemetry(logger, otel.Config{
			ServiceName:      svcName,
			ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
			Host:             hostname,
			Probability:      cfg.Telemetry.SampleRate,
			ResourceAttributes: map[string]string{
				"library.language": "go",
				"service.type":     serviceType,
			},
			InsecureExporter: true,
		})
		if err != nil {
			logger.Error(ctx, "failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		defer telemetryTeardown(ctx)
		tracer = tp.Tracer(serviceType)
	}
	// The global meter provider is the SDK one when telemetry is enabled and
	// a no-op otherwise, so instruments are safe to record on either way.
	meterProvider := otelapi.GetMeterProvider()

	var publisher events.DomainEventPublisher
	if cfg.Kafka.Enabled {
		kafkaPub, err := kafka.ConnectWithRetry(&kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: fmt.Sprintf("%s-%s", serviceType, hostname),
		}, logger, tracer)
		if err != nil {
			logger.Error(ctx, "failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaPub.Close()
		publisher = kafkaPub
	} else {
		publisher = memory.NewBroker()
	}

	enabledNames := make(map[string]struct{}, len(cfg.Enumerators.Enabled))
	for _, name := range cfg.Enumerators.Enabled {
		enabledNames[name] = struct{}{}
	}

	registry := enumeration.NewRegistry()
	webScanner := appenum.NewWebScanner(logger)
	desc := webScanner.Descriptor()
	if _, ok := enabledNames[desc.Name()]; !ok {
		// Registered but excluded from default "all enabled" submissions.
		desc = enumeration.NewDescriptor(desc.Name(), desc.RequiredConfig(), desc.Description(), false)
	}
	if err := registry.Register(desc, webScanner); err != nil {
		logger.Error(ctx, "failed to register enumerator", "error", err)
		os.Exit(1)
	}
	for _, d := range registry.List() {
		logger.Info(ctx, "Enumerator registered", "name", d.Name(), "enabled", d.Enabled())
	}

	poolMetrics, err := browser.NewPoolMetrics(meterProvider)
	if err != nil {
		logger.Error(ctx, "failed to create pool metrics", "error", err)
		os.Exit(1)
	}

	pool, err := browser.NewPool(browser.PoolConfig{
		Capacity:          cfg.Pool.Capacity,
		AcquireTimeout:    cfg.Pool.AcquireTimeout,
		LaunchesPerSecond: cfg.Pool.LaunchesPerSecond,
	}, browser.ChromeLauncher(browser.InstanceConfig{
		ChromiumPath: cfg.Pool.ChromiumPath,
		Headless:     cfg.Pool.Headless,
		NoSandbox:    cfg.Pool.NoSandbox,
		PageTimeout:  cfg.Pool.PageTimeout,
	}), poolMetrics, logger)
	if err != nil {
		logger.Error(ctx, "failed to create browser pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := storage.NewScanStore()

	correlator := appscan.NewCorrelator(logger, tracer)
	go func() {
		if err := correlator.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "correlator stopped unexpectedly", "error", err)
		}
	}()

	progress := appscan.NewProgressPublisher(cfg.Progress.BufferSize, logger, tracer)

	schedulerMetrics, err := appscan.NewSchedulerMetrics(meterProvider)
	if err != nil {
		logger.Error(ctx, "failed to create scheduler metrics", "error", err)
		os.Exit(1)
	}

	scheduler := appscan.NewScheduler(appscan.SchedulerConfig{
		TaskTimeout:  cfg.Scheduler.TaskTimeout,
		ScanDeadline: cfg.Scheduler.ScanDeadline,
		GracePeriod:  cfg.Scheduler.GracePeriod,
	}, registry, pool, store, correlator, progress, publisher, schedulerMetrics, logger, tracer)

	orchestrator := appscan.NewScanOrchestrator(
		scheduler, registry, store, progress, cfg.Enumerators.Options, logger, tracer)

	logger.Info(ctx, "Orchestrator ready",
		"pool_capacity", cfg.Pool.Capacity,
		"task_timeout", cfg.Scheduler.TaskTimeout,
		"kafka_enabled", cfg.Kafka.Enabled,
	)

	if *target != "" {
		if err := runSingleScan(ctx, orchestrator, *target, logger); err != nil {
			logger.Error(ctx, "scan failed", "target", *target, "error", err)
		}
	} else {
		// No target given: stay up for an attached transport surface until
		// signalled.
		sig := <-sigCh
		logger.Info(ctx, "Shutdown signal received", "signal", sig.String())
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := scheduler.Stop(drainCtx); err != nil {
		logger.Warn(ctx, "shutdown drain incomplete", "error", err)
	}
	correlator.Stop()
	logger.Info(ctx, "Orchestrator stopped")
}

// runSingleScan submits one scan with the default enumerators and logs its
// progress stream until the scan goes terminal.
func runSingleScan(ctx context.Context, orchestrator *appscan.ScanOrchestrator, target string, logger *logger.Logger) error {
	id, err := orchestrator.SubmitScan(ctx, target, nil, nil)
	if err != nil {
		return err
	}
	logger.Info(ctx, "Scan submitted", "scan_id", id, "target", target)

	updates, err := orchestrator.StreamProgress(ctx, id)
	if err != nil {
		return err
	}
	for update := range updates {
		logger.Info(ctx, "Scan progress",
			"scan_id", id,
			"status", update.Status(),
			"percent_complete", update.PercentComplete(),
			"operation", update.CurrentOperation(),
		)
	}

	scan, err := orchestrator.GetScan(ctx, id)
	if err != nil {
		return err
	}
	for field, values := range scan.Result().Fields() {
		logger.Info(ctx, "Scan findings", "scan_id", id, "field", field, "count", len(values), "values", values)
	}
	logger.Info(ctx, "Scan finished", "scan_id", id, "status", scan.Status())
	return nil
}

// loadConfig picks the loader for the deployment: env-layered when -env is
// set, plain file otherwise, defaults when neither is available.
func loadConfig(ctx context.Context, path string, fromEnv bool) (*config.Config, error) {
	if fromEnv {
		return envloader.NewEnvLoader(path).Load(ctx)
	}
	if path != "" {
		return fileloader.NewFileLoader(path).Load(ctx)
	}
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
