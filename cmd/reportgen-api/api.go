// Package main provides the report generator API server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/progress"
	"github.com/cryptodashboard/reportgen/pkg/services"
	"github.com/cryptodashboard/reportgen/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger    *slog.Logger
	generator web.Generator
	progress  *progress.Tracker
	reports   *services.Reports
	scheduler web.SchedulerStatus
	metrics   http.Handler
	validate  *validator.Validate
}

const shutdownTimeout = 10 * time.Second

// NewAPI builds the API. sched and metrics may be nil.
func NewAPI(
	logger *slog.Logger,
	generator web.Generator,
	progress *progress.Tracker,
	reports *services.Reports,
	sched web.SchedulerStatus,
	metrics http.Handler,
) *API {
	return &API{
		logger:    logger,
		generator: generator,
		progress:  progress,
		reports:   reports,
		scheduler: sched,
		metrics:   metrics,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.generator, a.progress, a.reports, a.scheduler, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			_, ok := a.reports.HealthCheck(c.Context())

			return ok
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Crypto Report Generator API")
	})

	if a.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(a.metrics))
	}

	handlers.Register(app)

	return app
}

// Serve listens on port until ctx is cancelled, then drains open connections.
func (a *API) Serve(ctx context.Context, port int) error {
	app := a.App()
	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "API listening", "port", port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		return app.ShutdownWithContext(shutdownCtx)
	}
}
