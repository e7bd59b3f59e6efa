package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const DefaultBackoffUnit = 20 * time.Second

// ProgressReporter receives human readable progress lines for a session.
type ProgressReporter interface {
	Detail(sessionID, details string)
}

// CallObserver is notified once per backend attempt.
type CallObserver func(operation string, errType string, duration time.Duration)

// Caller wraps a Backend with bounded linear-backoff retries.
// Rate limit failures are returned immediately so the pipeline can stop.
type Caller struct {
	backend     Backend
	logger      *slog.Logger
	reporter    ProgressReporter
	observer    CallObserver
	backoffUnit time.Duration

	mu            sync.Mutex
	lastRateLimit time.Time
	calls         int
}

type CallerOption func(*Caller)

func WithProgressReporter(reporter ProgressReporter) CallerOption {
	return func(c *Caller) {
		c.reporter = reporter
	}
}

func WithCallObserver(observer CallObserver) CallerOption {
	return func(c *Caller) {
		c.observer = observer
	}
}

// WithBackoffUnit sets the delay multiplied by the attempt number between retries.
func WithBackoffUnit(unit time.Duration) CallerOption {
	return func(c *Caller) {
		c.backoffUnit = unit
	}
}

func NewCaller(backend Backend, logger *slog.Logger, opts ...CallerOption) *Caller {
	caller := &Caller{
		backend:     backend,
		logger:      logger.With("module", "llm_caller"),
		backoffUnit: DefaultBackoffUnit,
	}

	for _, opt := range opts {
		opt(caller)
	}

	return caller
}

// Call sends req to the backend at most maxRetries times.
//
// The returned error is an *Error whose Type tells the three outcomes apart:
// ErrorTypeRateLimit stops the run, ErrorTypeExhausted means every attempt
// failed, auth and bad prompt errors are surfaced without retrying.
func (c *Caller) Call(ctx context.Context, model string, req Request, maxRetries int) (string, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr *Error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		c.report(req.SessionID, fmt.Sprintf("calling backend (%s), attempt %d/%d", req.Operation, attempt, maxRetries))

		started := time.Now()
		text, err := c.backend.Generate(ctx, model, req)

		c.mu.Lock()
		c.calls++
		c.mu.Unlock()

		if err == nil && strings.TrimSpace(text) == "" {
			err = NewError(ErrorTypeEmptyResponse, "backend returned empty text")
		}

		if err == nil {
			c.observe(req.Operation, "", time.Since(started))

			return text, nil
		}

		lastErr = Wrap(err)
		c.observe(req.Operation, lastErr.Type.String(), time.Since(started))

		c.logger.WarnContext(ctx, "backend call failed",
			"operation", req.Operation,
			"attempt", attempt,
			"max_attempts", maxRetries,
			"error_type", lastErr.Type.String(),
			"error", lastErr)

		if lastErr.Type == ErrorTypeRateLimit {
			c.mu.Lock()
			c.lastRateLimit = time.Now()
			c.mu.Unlock()

			c.report(req.SessionID, fmt.Sprintf("backend rate limited during %s, stopping", req.Operation))

			return "", lastErr
		}

		if !lastErr.Type.Retryable() {
			return "", lastErr
		}

		if attempt == maxRetries {
			break
		}

		delay := c.backoffUnit * time.Duration(attempt)
		c.report(req.SessionID, fmt.Sprintf("backend error during %s, retrying in %s", req.Operation, delay))

		select {
		case <-ctx.Done():
			return "", &Error{Type: ErrorTypeTransient, Err: ctx.Err(), Message: "cancelled while waiting to retry"}
		case <-time.After(delay):
		}
	}

	return "", &Error{
		Type:    ErrorTypeExhausted,
		Err:     lastErr,
		Message: fmt.Sprintf("%s failed after %d attempts: %v", req.Operation, maxRetries, lastErr),
	}
}

// LastRateLimit returns when this caller last saw a rate limit, zero if never.
func (c *Caller) LastRateLimit() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastRateLimit
}

// Calls returns the number of backend attempts made so far.
func (c *Caller) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

func (c *Caller) report(sessionID, details string) {
	if c.reporter == nil || sessionID == "" {
		return
	}

	c.reporter.Detail(sessionID, details)
}

func (c *Caller) observe(operation, errType string, duration time.Duration) {
	if c.observer != nil {
		c.observer(operation, errType, duration)
	}
}
