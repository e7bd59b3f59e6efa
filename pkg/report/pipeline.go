package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/llm"
	"github.com/cryptodashboard/reportgen/pkg/market"
	"github.com/cryptodashboard/reportgen/pkg/prompts"
	"github.com/cryptodashboard/reportgen/pkg/workflow"
	"github.com/google/uuid"
)

// Node names of the report graph.
const (
	NodePrepare   = "prepare"
	NodeResearch  = "research"
	NodeValidate  = "validate"
	NodeReport    = "report"
	NodeHTML      = "html"
	NodeJS        = "javascript"
	NodeCSS       = "css"
	NodeInterface = "interface"
	NodeExtract   = "extract"
	NodeTranslate = "translate"
	NodePersist   = "persist"
)

const engineErrorVerdict = "ERROR"

var (
	ErrMissingPrompts  = errors.New("prompt source is required")
	ErrMissingStore    = errors.New("report store is required")
	ErrMissingProgress = errors.New("progress reporter is required")
	ErrMissingBackend  = errors.New("backend factory is required")
)

// Dependencies are the collaborators of a pipeline. Snapshots is optional.
type Dependencies struct {
	Prompts   prompts.Source
	Snapshots market.Source
	Store     ReportStore
	Progress  ProgressReporter
	Backends  llm.BackendFactory
	Logger    *slog.Logger
}

type Option func(*Pipeline)

func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// WithMiddleware wraps every stage. The first middleware is the outermost.
func WithMiddleware(middleware ...workflow.Middleware[*State]) Option {
	return func(p *Pipeline) {
		p.middleware = append(p.middleware, middleware...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithCallerOptions configures the backend caller created for each run.
func WithCallerOptions(opts ...llm.CallerOption) Option {
	return func(p *Pipeline) {
		p.callOpts = append(p.callOpts, opts...)
	}
}

// WithSleep replaces the wait between persistence retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) {
		p.sleep = sleep
	}
}

// Pipeline runs the report graph for one session at a time per call.
type Pipeline struct {
	graph  *workflow.Graph[*State]
	deps   Dependencies
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	middleware []workflow.Middleware[*State]
	callOpts   []llm.CallerOption
}

// Result is the outcome of a run. Its shape is the same for every outcome.
type Result struct {
	Success          bool     `json:"success"`
	SessionID        string   `json:"session_id"`
	ReportID         *int64   `json:"report_id"`
	HTML             string   `json:"html_content"`
	CSS              string   `json:"css_content"`
	JS               string   `json:"js_content"`
	Research         string   `json:"research_content"`
	Errors           []string `json:"error_messages"`
	ExecutionTime    float64  `json:"execution_time"`
	ValidationResult string   `json:"validation_result"`
	InterfaceAttempt int      `json:"interface_attempt"`
	ResearchAttempts int      `json:"research_attempts"`
	RateLimited      bool     `json:"rate_limited"`
}

func New(deps Dependencies, opts ...Option) (*Pipeline, error) {
	switch {
	case deps.Prompts == nil:
		return nil, ErrMissingPrompts
	case deps.Store == nil:
		return nil, ErrMissingStore
	case deps.Progress == nil:
		return nil, ErrMissingProgress
	case deps.Backends == nil:
		return nil, ErrMissingBackend
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	p := &Pipeline{
		deps:   deps,
		cfg:    DefaultConfig(),
		logger: deps.Logger.With("module", "report_pipeline"),
		now:    time.Now,
		sleep:  sleepContext,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.cfg = p.cfg.withDefaults()

	graph, err := p.build()
	if err != nil {
		return nil, err
	}

	p.graph = graph

	return p, nil
}

func (p *Pipeline) Config() Config {
	return p.cfg
}

// Nodes returns the node names of the assembled graph.
func (p *Pipeline) Nodes() []string {
	return p.graph.Nodes()
}

func (p *Pipeline) build() (*workflow.Graph[*State], error) {
	nodes := &Nodes{
		prompts:   p.deps.Prompts,
		snapshots: p.deps.Snapshots,
		store:     p.deps.Store,
		progress:  p.deps.Progress,
		backends:  p.deps.Backends,
		cfg:       p.cfg,
		logger:    p.deps.Logger,
		now:       p.now,
		callOpts:  p.callOpts,
		sleep:     p.sleep,
	}

	graph := workflow.New[*State](workflow.WithLogger(p.logger))
	graph.Use(p.middleware...)

	graph.AddNode(NodePrepare, nodes.Prepare)
	graph.AddNode(NodeResearch, nodes.Research)
	graph.AddNode(NodeValidate, nodes.Validate)
	graph.AddNode(NodeReport, nodes.Report)
	graph.AddNode(NodeTranslate, nodes.Translate)
	graph.AddNode(NodePersist, nodes.Persist)

	graph.SetEntryPoint(NodePrepare)
	graph.AddConditionalEdges(NodePrepare, RouteAfterPrepare, map[string]string{
		RouteContinue: NodeResearch,
		RouteEnd:      workflow.End,
	})
	graph.AddEdge(NodeResearch, NodeValidate)
	graph.AddConditionalEdges(NodeValidate, RouteAfterValidate, map[string]string{
		RouteRetry:    NodeResearch,
		RouteContinue: NodeReport,
		RouteEnd:      workflow.End,
	})

	limit := p.cfg.MaxComponentAttempts

	switch p.cfg.InterfaceMode {
	case InterfaceCombined:
		graph.AddNode(NodeInterface, nodes.Interface)
		graph.AddNode(NodeExtract, nodes.Extract)

		graph.AddEdge(NodeReport, NodeInterface)
		graph.AddEdge(NodeInterface, NodeExtract)
		graph.AddConditionalEdges(NodeExtract, RouteAfterExtract(limit), componentRoutes(NodeInterface, NodeTranslate))
	case InterfaceComponents:
		graph.AddNode(NodeHTML, nodes.HTML)
		graph.AddNode(NodeJS, nodes.JS)
		graph.AddNode(NodeCSS, nodes.CSS)

		graph.AddEdge(NodeReport, NodeHTML)
		graph.AddConditionalEdges(NodeHTML, RouteAfterHTML(limit), componentRoutes(NodeHTML, NodeJS))
		graph.AddConditionalEdges(NodeJS, RouteAfterJS(limit), componentRoutes(NodeJS, NodeCSS))
		graph.AddConditionalEdges(NodeCSS, RouteAfterCSS(limit), componentRoutes(NodeCSS, NodeTranslate))
	default:
		return nil, fmt.Errorf("unknown interface mode %q", p.cfg.InterfaceMode)
	}

	graph.AddEdge(NodeTranslate, NodePersist)
	graph.AddEdge(NodePersist, workflow.End)

	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report graph: %w", err)
	}

	return graph, nil
}

func componentRoutes(retry, next string) map[string]string {
	return map[string]string{
		RouteRetry:    retry,
		RouteContinue: next,
		RouteEnd:      workflow.End,
	}
}

// Run executes one report generation. It never panics and always returns a
// Result. The progress record of the session is finalized exactly once:
// by the persist stage on success, by Run otherwise.
func (p *Pipeline) Run(ctx context.Context, in Input) Result {
	started := p.now()

	if in.SessionID == "" {
		in.SessionID = uuid.NewString()
	}

	if in.MaxAttempts <= 0 {
		in.MaxAttempts = p.cfg.MaxAttempts
	}

	p.deps.Progress.Start(in.SessionID, TotalSteps)

	logger := p.logger.With("session_id", in.SessionID)
	logger.InfoContext(ctx, "report generation started", "max_attempts", in.MaxAttempts, "interface_mode", p.cfg.InterfaceMode)

	final, err := p.graph.Run(ctx, NewState(in, started))

	elapsed := p.now().Sub(started).Seconds()

	if err != nil {
		logger.ErrorContext(ctx, "report workflow failed", "error", err)
		p.deps.Progress.Error(in.SessionID, err.Error())

		return Result{
			Success:          false,
			SessionID:        in.SessionID,
			Errors:           []string{err.Error()},
			ExecutionTime:    elapsed,
			ValidationResult: engineErrorVerdict,
		}
	}

	result := p.result(final, elapsed)

	if !result.Success {
		message := failureMessage(final)
		p.deps.Progress.Error(in.SessionID, message)
		logger.WarnContext(ctx, "report generation finished without a report",
			"rate_limited", final.RateLimitStop,
			"research_attempts", final.ResearchAttempt,
			"error", message)

		return result
	}

	logger.InfoContext(ctx, "report generation completed",
		"report_id", *result.ReportID,
		"research_attempts", final.ResearchAttempt,
		"duration_seconds", elapsed)

	return result
}

func (p *Pipeline) result(state *State, elapsed float64) Result {
	attempts := state.HTMLAttempt
	if p.cfg.InterfaceMode == InterfaceCombined {
		attempts = state.InterfaceAttempt
	}

	errs := make([]string, len(state.Errors))
	copy(errs, state.Errors)

	return Result{
		Success:          state.ReportID != nil && !state.RateLimitStop,
		SessionID:        state.SessionID,
		ReportID:         state.ReportID,
		HTML:             deref(state.HTML),
		CSS:              deref(state.CSS),
		JS:               deref(state.JS),
		Research:         deref(state.Research),
		Errors:           errs,
		ExecutionTime:    elapsed,
		ValidationResult: string(state.Verdict),
		InterfaceAttempt: attempts,
		ResearchAttempts: state.ResearchAttempt,
		RateLimited:      state.RateLimitStop,
	}
}

func failureMessage(state *State) string {
	if len(state.Errors) == 0 {
		return "report generation finished without a report"
	}

	return strings.Join(state.Errors, ", ")
}

// LoggingMiddleware logs the start and end of every stage.
func LoggingMiddleware(logger *slog.Logger) workflow.Middleware[*State] {
	return func(name string, next workflow.NodeFunc[*State]) workflow.NodeFunc[*State] {
		return func(ctx context.Context, state *State) (*State, error) {
			started := time.Now()

			logger.DebugContext(ctx, "stage started", "stage", name, "session_id", state.SessionID)

			out, err := next(ctx, state)
			if err != nil {
				logger.ErrorContext(ctx, "stage returned error", "stage", name, "session_id", state.SessionID, "error", err)

				return out, err
			}

			logger.InfoContext(ctx, "stage finished",
				"stage", name,
				"session_id", out.SessionID,
				"success", out.Success,
				"rate_limit_stop", out.RateLimitStop,
				"duration", time.Since(started))

			return out, nil
		}
	}
}
