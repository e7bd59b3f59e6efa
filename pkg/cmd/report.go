package cmd

import (
	"log/slog"

	"github.com/cryptodashboard/reportgen/pkg/llm"
	"github.com/cryptodashboard/reportgen/pkg/market"
	"github.com/cryptodashboard/reportgen/pkg/metrics"
	"github.com/cryptodashboard/reportgen/pkg/otelhelper"
	"github.com/cryptodashboard/reportgen/pkg/prompts"
	"github.com/cryptodashboard/reportgen/pkg/report"
	"github.com/cryptodashboard/reportgen/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// PipelineOptions collects what NewReportPipeline needs. Snapshots, Metrics
// and Tracer are optional.
type PipelineOptions struct {
	PromptsDir  string
	PalettePath string
	Config      report.Config
	Store       report.ReportStore
	Progress    report.ProgressReporter
	Snapshots   *market.RedisSource
	Backends    llm.BackendFactory
	Metrics     *metrics.Recorder
	Tracer      trace.Tracer
}

// NewReportPipeline loads the prompts and assembles the report graph with
// logging, tracing and metrics middleware.
func NewReportPipeline(logger *slog.Logger, opts PipelineOptions) (*report.Pipeline, error) {
	source, err := prompts.NewEnvSource(logger, opts.PromptsDir, opts.PalettePath)
	if err != nil {
		return nil, err
	}

	backends := opts.Backends
	if backends == nil {
		backends = llm.NewGeminiFactory()
	}

	deps := report.Dependencies{
		Prompts:  source,
		Store:    opts.Store,
		Progress: opts.Progress,
		Backends: backends,
		Logger:   logger,
	}

	// A nil *RedisSource must not become a non-nil interface.
	if opts.Snapshots != nil {
		deps.Snapshots = opts.Snapshots
	}

	middleware := []workflow.Middleware[*report.State]{report.LoggingMiddleware(logger)}

	if opts.Tracer != nil {
		middleware = append(middleware, otelhelper.StageMiddleware(opts.Tracer))
	}

	pipelineOpts := []report.Option{report.WithConfig(opts.Config)}

	if opts.Metrics != nil {
		middleware = append(middleware, opts.Metrics.StageMiddleware())
		pipelineOpts = append(pipelineOpts, report.WithCallerOptions(llm.WithCallObserver(opts.Metrics.ObserveCall)))
	}

	pipelineOpts = append(pipelineOpts, report.WithMiddleware(middleware...))

	return report.New(deps, pipelineOpts...)
}
