package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/cmd"
	"github.com/cryptodashboard/reportgen/pkg/config"
	"github.com/cryptodashboard/reportgen/pkg/events"
	"github.com/cryptodashboard/reportgen/pkg/log"
	"github.com/cryptodashboard/reportgen/pkg/market"
	"github.com/cryptodashboard/reportgen/pkg/otelhelper"
	"github.com/cryptodashboard/reportgen/pkg/progress"
	"github.com/cryptodashboard/reportgen/pkg/services"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const defaultStreamMaxLen = 1000

func runGenerate(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("cli").With("action", "generate")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return err
	}

	var tracer trace.Tracer

	if command.Bool("tracing") {
		t, shutdown, err := otelhelper.NewTracer(ctx, "reportgen")
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

	snapshots, err := cmd.NewSnapshotSource(ctx, logger, command.String("redis-url"), cfg.Snapshot)
	if err != nil {
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

	tracker := progress.NewTracker(logger)

	pipeline, err := cmd.NewReportPipeline(logger, cmd.PipelineOptions{
		PromptsDir:  command.String("prompts-dir"),
		PalettePath: command.String("palette"),
		Config:      cfg.Pipeline,
		Store:       persistence,
		Progress:    tracker,
		Snapshots:   snapshots,
		Tracer:      tracer,
	})
	if err != nil {
		return err
	}

	generator := services.NewGenerator(pipeline, tracker, command.String("gemini-api-key"), logger,
		services.WithMaxAttempts(cfg.Pipeline.MaxAttempts),
	)

	result, genErr := generator.Generate(ctx, events.TriggerCLI)

	if err := printJSON(os.Stdout, result); err != nil {
		return err
	}

	return genErr
}

func runMigrate(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("cli").With("action", "migrate")

	// Opening the store applies pending migrations.
	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	if err := persistence.HealthCheck(ctx); err != nil {
		return errors.Join(err, persistence.Close(ctx))
	}

	logger.InfoContext(ctx, "Database is up to date")

	return persistence.Close(ctx)
}

func runNextRun(_ context.Context, command *cli.Command) error {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return err
	}

	return printNextRun(os.Stdout, cfg, time.Now())
}

func printNextRun(w io.Writer, cfg config.Config, now time.Time) error {
	if !cfg.Scheduler.Enabled {
		_, err := fmt.Fprintln(w, "scheduler disabled")

		return err
	}

	next, err := cfg.Scheduler.Next(now)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%s (in %s)\n", next.Format(time.RFC3339), next.Sub(now).Round(time.Minute))

	return err
}

func runSnapshotPush(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("cli").With("action", "snapshot-push")

	path := command.Args().First()
	if path == "" {
		return errors.New("snapshot file is required")
	}

	snapshot, err := readSnapshot(path)
	if err != nil {
		return err
	}

	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return err
	}

	source, err := market.NewRedisSource(ctx, logger, command.String("redis-url"), cfg.Snapshot)
	if err != nil {
		return err
	}

	defer func() {
		if err := source.Close(); err != nil {
			logger.Error("Failed to close snapshot cache", "error", err)
		}
	}()

	id, err := source.Publish(ctx, snapshot, int64(command.Int("max-len")))
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Snapshot published", "id", id, "fields", len(snapshot))

	return nil
}

func readSnapshot(path string) (market.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshot market.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot file: %w", err)
	}

	if err := market.Validate(snapshot); err != nil {
		return nil, err
	}

	return snapshot, nil
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}
