// Package metrics exposes Prometheus collectors for report generation.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/report"
	"github.com/cryptodashboard/reportgen/pkg/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reportgen"

// Recorder holds the report generation collectors.
type Recorder struct {
	gatherer prometheus.Gatherer

	stagesTotal   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	inFlight      prometheus.Gauge
}

// NewRecorder registers the collectors on reg. A nil reg uses a private registry.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)

	return &Recorder{
		gatherer: reg,
		stagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_executions_total",
				Help:      "Stage executions by stage and outcome",
			},
			[]string{"stage", "status"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of workflow stages in seconds",
				Buckets:   []float64{0.01, 0.1, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_calls_total",
				Help:      "Backend call attempts by operation and error type",
			},
			[]string{"operation", "error_type"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_call_duration_seconds",
				Help:      "Duration of backend call attempts in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished report generation runs by outcome",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of report generation runs in seconds",
				Buckets:   []float64{30, 60, 120, 300, 600, 900, 1800},
			},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runs_in_flight",
				Help:      "Report generation runs currently executing",
			},
		),
	}
}

// StageMiddleware counts stage executions. A stage that leaves Success false
// is recorded as "failed", a stage that latched the rate limit stop as
// "rate_limited".
func (r *Recorder) StageMiddleware() workflow.Middleware[*report.State] {
	return func(name string, next workflow.NodeFunc[*report.State]) workflow.NodeFunc[*report.State] {
		return func(ctx context.Context, state *report.State) (*report.State, error) {
			started := time.Now()

			out, err := next(ctx, state)

			r.stageDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
			r.stagesTotal.WithLabelValues(name, stageStatus(out, err)).Inc()

			return out, err
		}
	}
}

func stageStatus(state *report.State, err error) string {
	switch {
	case err != nil:
		return "error"
	case state == nil:
		return "error"
	case state.RateLimitStop:
		return "rate_limited"
	case !state.Success:
		return "failed"
	default:
		return "success"
	}
}

// ObserveCall matches llm.CallObserver.
func (r *Recorder) ObserveCall(operation, errType string, duration time.Duration) {
	if errType == "" {
		errType = "none"
	}

	r.callsTotal.WithLabelValues(operation, errType).Inc()
	r.callDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RunStarted marks a run in flight. The returned func records its outcome.
func (r *Recorder) RunStarted() func(result report.Result) {
	r.inFlight.Inc()
	started := time.Now()

	return func(result report.Result) {
		r.inFlight.Dec()
		r.runDuration.Observe(time.Since(started).Seconds())

		status := "failed"
		if result.Success {
			status = "success"
		}

		r.runsTotal.WithLabelValues(status).Inc()
	}
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
