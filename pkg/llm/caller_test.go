package llm_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type scriptedBackend struct {
	mu        sync.Mutex
	responses []response
	calls     int
}

type response struct {
	text string
	err  error
}

func (b *scriptedBackend) Generate(_ context.Context, _ string, _ llm.Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.calls
	b.calls++

	if idx >= len(b.responses) {
		idx = len(b.responses) - 1
	}

	return b.responses[idx].text, b.responses[idx].err
}

type detailRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *detailRecorder) Detail(_ string, details string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = append(r.lines, details)
}

func newCaller(backend llm.Backend, reporter llm.ProgressReporter) *llm.Caller {
	return llm.NewCaller(backend, slog.Default(),
		llm.WithBackoffUnit(time.Millisecond),
		llm.WithProgressReporter(reporter),
	)
}

func TestCaller_SucceedsFirstAttempt(t *testing.T) {
	backend := &scriptedBackend{responses: []response{{text: "hello"}}}
	reporter := &detailRecorder{}

	text, err := newCaller(backend, reporter).Call(context.Background(), "m", llm.Request{SessionID: "s", Operation: "research"}, 3)

	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, []string{"calling backend (research), attempt 1/3"}, reporter.lines)
}

func TestCaller_RetriesTransientThenSucceeds(t *testing.T) {
	backend := &scriptedBackend{responses: []response{
		{err: errors.New("connection reset by peer")},
		{text: ""},
		{text: "ok"},
	}}

	caller := newCaller(backend, nil)
	text, err := caller.Call(context.Background(), "m", llm.Request{Operation: "html"}, 3)

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, backend.calls)
	assert.Equal(t, 3, caller.Calls())
}

func TestCaller_RateLimitFailsFast(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "api error 429", err: genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}},
		{name: "message quota", err: errors.New("You exceeded your current quota")},
		{name: "resource exhausted", err: errors.New("rpc error: RESOURCE_EXHAUSTED")},
		{name: "rate limit text", err: errors.New("rate limit reached")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &scriptedBackend{responses: []response{{err: tt.err}, {text: "never"}}}
			caller := newCaller(backend, nil)

			text, err := caller.Call(context.Background(), "m", llm.Request{Operation: "research"}, 3)

			require.Error(t, err)
			assert.Empty(t, text)
			assert.True(t, llm.IsRateLimit(err))
			assert.Equal(t, 1, backend.calls)
			assert.False(t, caller.LastRateLimit().IsZero())
		})
	}
}

func TestCaller_ExhaustsRetries(t *testing.T) {
	backend := &scriptedBackend{responses: []response{{err: errors.New("503 service unavailable")}}}

	_, err := newCaller(backend, nil).Call(context.Background(), "m", llm.Request{Operation: "css"}, 2)

	require.Error(t, err)
	assert.Equal(t, llm.ErrorTypeExhausted, llm.TypeOf(err))
	assert.False(t, llm.IsRateLimit(err))
	assert.Contains(t, err.Error(), "css failed after 2 attempts")
	assert.Equal(t, 2, backend.calls)
}

func TestCaller_AuthErrorIsNotRetried(t *testing.T) {
	backend := &scriptedBackend{responses: []response{{err: genai.APIError{Code: 403, Message: "permission denied"}}}}

	_, err := newCaller(backend, nil).Call(context.Background(), "m", llm.Request{}, 3)

	require.Error(t, err)
	assert.Equal(t, llm.ErrorTypeAuth, llm.TypeOf(err))
	assert.Equal(t, 1, backend.calls)
}

func TestCaller_ContextCancelledDuringBackoff(t *testing.T) {
	backend := &scriptedBackend{responses: []response{{err: errors.New("timeout")}}}
	caller := llm.NewCaller(backend, slog.Default(), llm.WithBackoffUnit(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := caller.Call(ctx, "m", llm.Request{}, 3)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, backend.calls)
}

func TestCaller_ObserverSeesEveryAttempt(t *testing.T) {
	backend := &scriptedBackend{responses: []response{{err: errors.New("eof")}, {text: "done"}}}

	var outcomes []string

	caller := llm.NewCaller(backend, slog.Default(),
		llm.WithBackoffUnit(time.Millisecond),
		llm.WithCallObserver(func(_ string, errType string, _ time.Duration) {
			outcomes = append(outcomes, errType)
		}),
	)

	_, err := caller.Call(context.Background(), "m", llm.Request{Operation: "js"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"transient", ""}, outcomes)
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected llm.ErrorType
	}{
		{name: "server error", err: genai.APIError{Code: 500}, expected: llm.ErrorTypeTransient},
		{name: "bad request", err: genai.APIError{Code: 400, Message: "invalid argument"}, expected: llm.ErrorTypeBadPrompt},
		{name: "unauthorized", err: genai.APIError{Code: 401}, expected: llm.ErrorTypeAuth},
		{name: "deadline", err: context.DeadlineExceeded, expected: llm.ErrorTypeTransient},
		{name: "classified", err: llm.NewError(llm.ErrorTypeEmptyResponse, "x"), expected: llm.ErrorTypeEmptyResponse},
		{name: "unknown", err: errors.New("something odd"), expected: llm.ErrorTypeUnknown},
		{name: "status code in text", err: errors.New("upstream returned 503"), expected: llm.ErrorTypeTransient},
		{name: "unexpected eof", err: errors.New("unexpected EOF"), expected: llm.ErrorTypeTransient},
		{name: "number that is not a status", err: errors.New("prompt exceeds 5000 tokens"), expected: llm.ErrorTypeUnknown},
		{name: "word containing eof", err: errors.New("geofence lookup failed"), expected: llm.ErrorTypeUnknown},
		{name: "429 inside a larger number", err: errors.New("request id 14290 rejected"), expected: llm.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, llm.TypeOf(tt.err))
		})
	}
}
