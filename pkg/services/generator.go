package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/eventbus"
	"github.com/cryptodashboard/reportgen/pkg/events"
	"github.com/cryptodashboard/reportgen/pkg/report"
	"github.com/google/uuid"
)

// Runner executes one report generation run.
type Runner interface {
	Run(ctx context.Context, in report.Input) report.Result
}

// ProgressStarter creates the progress record of a new session.
type ProgressStarter interface {
	Start(sessionID string, totalSteps int)
}

// RunObserver is called when a run starts; the returned func receives its result.
type RunObserver func() func(report.Result)

type GeneratorOption func(*Generator)

func WithMaxAttempts(n int) GeneratorOption {
	return func(g *Generator) {
		g.maxAttempts = n
	}
}

func WithRunObserver(observer RunObserver) GeneratorOption {
	return func(g *Generator) {
		g.observer = observer
	}
}

func WithEventPublisher(publisher eventbus.EventPublisher) GeneratorOption {
	return func(g *Generator) {
		g.publisher = publisher
	}
}

// Generator launches report generation runs outside the request lifecycle.
type Generator struct {
	runner      Runner
	progress    ProgressStarter
	publisher   eventbus.EventPublisher
	observer    RunObserver
	logger      *slog.Logger
	apiKey      string
	maxAttempts int

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewGenerator(runner Runner, progress ProgressStarter, apiKey string, logger *slog.Logger, opts ...GeneratorOption) *Generator {
	base, cancel := context.WithCancel(context.Background())

	g := &Generator{
		runner:   runner,
		progress: progress,
		logger:   logger.With("module", "generator"),
		apiKey:   apiKey,
		base:     base,
		cancel:   cancel,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// APIKeyStatus reports whether an API key is configured and its length.
func (g *Generator) APIKeyStatus() (bool, int) {
	key := strings.TrimSpace(g.apiKey)

	return key != "", len(key)
}

// Start allocates a session, pre-creates its progress record and runs the
// pipeline in the background. The run does not inherit ctx.
func (g *Generator) Start(ctx context.Context, trigger string) (string, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		return "", NewValidationError("Start", "API_KEY_MISSING", "GEMINI_API_KEY is not configured", ErrAPIKeyMissing)
	}

	if !g.track() {
		return "", ErrGeneratorClosed
	}

	sessionID := uuid.NewString()
	g.progress.Start(sessionID, report.TotalSteps)
	g.publish(ctx, sessionID, events.NewReportGenerationStarted(sessionID, trigger))

	g.logger.InfoContext(ctx, "report generation scheduled", "session_id", sessionID, "trigger", trigger)

	go func() {
		defer g.wg.Done()

		g.run(g.base, sessionID, trigger)
	}()

	return sessionID, nil
}

// Generate runs the pipeline synchronously on ctx. A run that ends without a
// report returns the result together with ErrGenerationFailed.
func (g *Generator) Generate(ctx context.Context, trigger string) (report.Result, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		return report.Result{}, ErrAPIKeyMissing
	}

	if !g.track() {
		return report.Result{}, ErrGeneratorClosed
	}
	defer g.wg.Done()

	sessionID := uuid.NewString()
	g.progress.Start(sessionID, report.TotalSteps)
	g.publish(ctx, sessionID, events.NewReportGenerationStarted(sessionID, trigger))

	result := g.run(ctx, sessionID, trigger)
	if !result.Success {
		return result, fmt.Errorf("%w: %s", ErrGenerationFailed, strings.Join(result.Errors, ", "))
	}

	return result, nil
}

func (g *Generator) track() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}

	g.wg.Add(1)

	return true
}

func (g *Generator) run(ctx context.Context, sessionID, trigger string) report.Result {
	started := time.Now()

	var done func(report.Result)
	if g.observer != nil {
		done = g.observer()
	}

	result := g.runner.Run(ctx, report.Input{
		SessionID:   sessionID,
		APIKey:      g.apiKey,
		MaxAttempts: g.maxAttempts,
	})

	if done != nil {
		done(result)
	}

	if result.Success && result.ReportID != nil {
		g.publish(ctx, sessionID, events.NewReportPublished(sessionID, *result.ReportID, trigger, result.ResearchAttempts, time.Since(started)))

		return result
	}

	g.publish(ctx, sessionID, events.NewReportGenerationFailed(sessionID, trigger, result.Errors, result.RateLimited, result.ValidationResult))

	return result
}

func (g *Generator) publish(ctx context.Context, key string, event eventbus.Event) {
	if g.publisher == nil {
		return
	}

	// Runs cancelled at shutdown still report their outcome.
	if err := g.publisher.Publish(context.WithoutCancel(ctx), key, event); err != nil {
		g.logger.ErrorContext(ctx, "failed to publish report event", "event_type", event.GetType(), "session_id", key, "error", err)
	}
}

// Shutdown rejects new runs and waits for in-flight ones. When ctx expires
// first, in-flight runs are cancelled and ctx.Err is returned.
func (g *Generator) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})

	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.cancel()

		return nil
	case <-ctx.Done():
		g.cancel()
		<-done

		return ctx.Err()
	}
}
