package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/cmd"
	"github.com/cryptodashboard/reportgen/pkg/config"
	"github.com/cryptodashboard/reportgen/pkg/eventbus"
	"github.com/cryptodashboard/reportgen/pkg/events"
	"github.com/cryptodashboard/reportgen/pkg/indexing"
	"github.com/cryptodashboard/reportgen/pkg/log"
	"github.com/cryptodashboard/reportgen/pkg/metrics"
	"github.com/cryptodashboard/reportgen/pkg/otelhelper"
	"github.com/cryptodashboard/reportgen/pkg/progress"
	"github.com/cryptodashboard/reportgen/pkg/scheduler"
	"github.com/cryptodashboard/reportgen/pkg/services"
	"github.com/cryptodashboard/reportgen/pkg/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPort  = 8000
	drainTimeout = 2 * time.Minute
)

func main() {
	command := &cli.Command{
		Name:                  "reportgen-api",
		Usage:                 "Serve the crypto market report generator",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres://... or sqlite:///path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL of the market snapshot cache; empty disables real-time data",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "gemini-api-key",
				Usage:   "Gemini API key used by generation runs",
				Sources: cli.EnvVars("GEMINI_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "prompts-dir",
				Usage:   "Directory holding the .env.* prompt files",
				Value:   "./prompts",
				Sources: cli.EnvVars("PROMPTS_DIR"),
			},
			&cli.StringFlag{
				Name:    "palette",
				Usage:   "Stylesheet whose :root block is injected into prompts",
				Sources: cli.EnvVars("PALETTE_CSS"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML tuning file",
				Sources: cli.EnvVars("REPORTGEN_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "google-service-account-json",
				Usage:   "Service account key for the Google Indexing API",
				Sources: cli.EnvVars("GOOGLE_SERVICE_ACCOUNT_JSON"),
			},
			&cli.StringFlag{
				Name:    "google-credentials-file",
				Usage:   "Path to the service account key file",
				Sources: cli.EnvVars("GOOGLE_APPLICATION_CREDENTIALS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing report generator API")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return err
	}

	var tracer trace.Tracer

	if command.Bool("tracing") {
		t, shutdown, err := otelhelper.NewTracer(ctx, "reportgen-api")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()

		tracer = t
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	snapshots, err := cmd.NewSnapshotSource(ctx, logger, command.String("redis-url"), cfg.Snapshot)
	if err != nil {
		// Real-time data is optional; reports are generated without it.
		logger.WarnContext(ctx, "Market snapshot cache unavailable", "error", err)

		snapshots = nil
	}

	if snapshots != nil {
		defer func() {
			if err := snapshots.Close(); err != nil {
				logger.Error("Failed to close snapshot cache", "error", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(registry)

	tracker := progress.NewTracker(logger)

	pipeline, err := cmd.NewReportPipeline(logger, cmd.PipelineOptions{
		PromptsDir:  command.String("prompts-dir"),
		PalettePath: command.String("palette"),
		Config:      cfg.Pipeline,
		Store:       persistence,
		Progress:    tracker,
		Snapshots:   snapshots,
		Metrics:     recorder,
		Tracer:      tracer,
	})
	if err != nil {
		return err
	}

	generator := services.NewGenerator(pipeline, tracker, command.String("gemini-api-key"), logger,
		services.WithMaxAttempts(cfg.Pipeline.MaxAttempts),
		services.WithEventPublisher(eventBus),
		services.WithRunObserver(recorder.RunStarted),
	)

	if cfg.Indexing.Enabled {
		registerNotifier(ctx, command, cfg.Indexing, eventBus)
	}

	if err := eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to report events: %w", err)
	}

	var (
		sched       *scheduler.Scheduler
		schedStatus web.SchedulerStatus
	)

	if cfg.Scheduler.Enabled {
		sched = scheduler.New(cfg.Scheduler, scheduler.RunnerFunc(func(ctx context.Context) error {
			_, err := generator.Generate(ctx, events.TriggerScheduler)

			return err
		}), logger, scheduler.WithPruner(tracker))

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		schedStatus = sched
	}

	api := NewAPI(logger, generator, tracker, services.NewReports(persistence, eventBus, logger), schedStatus, recorder.Handler())

	serveErr := api.Serve(ctx, command.Int("port"))

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(drainCtx); err != nil {
			logger.Error("Failed to stop scheduler", "error", err)
		}
	}

	if err := generator.Shutdown(drainCtx); err != nil {
		logger.Error("In-flight report generation cancelled", "error", err)
	}

	return serveErr
}

// registerNotifier subscribes the indexing notifier to report events. Missing
// credentials only disable notifications.
func registerNotifier(ctx context.Context, command *cli.Command, cfg indexing.Config, bus eventbus.EventSubscriber) {
	logger := log.WithModule("indexing")

	cfg.CredentialsJSON = command.String("google-service-account-json")
	if file := command.String("google-credentials-file"); file != "" {
		cfg.CredentialsFile = file
	}

	notifier, err := indexing.NewServiceAccountNotifier(ctx, cfg, logger)
	if err != nil {
		logger.WarnContext(ctx, "Search indexing notifications disabled", "error", err)

		return
	}

	if err := notifier.Register(bus); err != nil {
		logger.WarnContext(ctx, "Failed to register indexing notifier", "error", err)
	}
}
