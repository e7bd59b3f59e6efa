package report

import (
	"context"
	"database/sql/driver"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/llm"
	"github.com/cryptodashboard/reportgen/pkg/models"
	"github.com/cryptodashboard/reportgen/pkg/progress"
	"github.com/cryptodashboard/reportgen/pkg/prompts"
	"github.com/cryptodashboard/reportgen/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	text string
	err  error
}

// scriptedBackend answers per operation; the last reply of an operation repeats.
type scriptedBackend struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   map[string]int
	prompts map[string][]string
}

func newScriptedBackend(replies map[string][]reply) *scriptedBackend {
	return &scriptedBackend{
		replies: replies,
		calls:   map[string]int{},
		prompts: map[string][]string{},
	}
}

func (b *scriptedBackend) Generate(_ context.Context, _ string, req llm.Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.calls[req.Operation]
	b.calls[req.Operation]++
	b.prompts[req.Operation] = append(b.prompts[req.Operation], req.Prompt)

	script, ok := b.replies[req.Operation]
	if !ok || len(script) == 0 {
		return "", errors.New("unexpected operation " + req.Operation)
	}

	if idx >= len(script) {
		idx = len(script) - 1
	}

	return script[idx].text, script[idx].err
}

func (b *scriptedBackend) callCount(operation string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.calls[operation]
}

type memoryStore struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	reports []models.Report
}

func (s *memoryStore) SaveReport(_ context.Context, report *models.Report) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]

		return 0, err
	}

	s.reports = append(s.reports, *report)

	return int64(len(s.reports)), nil
}

func testPrompts() prompts.Static {
	return prompts.Static{
		prompts.ResearchValidation: "Research the market on <<@day>>/<<@month>>/<<@year>> using {{REAL_TIME_DATA}}",
		prompts.GenerateReport:     "Write a report from: {content}",
		prompts.CreateReport:       "Build the page",
		prompts.CreateHTML:         "Build HTML",
		prompts.CreateJavaScript:   "Build JS",
		prompts.CreateCSS:          "Build CSS",
		prompts.TranslateHTML:      "Translate this HTML: {content}",
		prompts.TranslateJS:        "Translate this JS: {js_content}",
	}
}

func happyReplies() map[string][]reply {
	return map[string][]reply{
		"research":             {{text: "Market analysis\nRESULT: PASS"}},
		"report":               {{text: "# Daily report"}},
		"html":                 {{text: "```html\n<div>bao cao</div>\n```"}},
		"javascript":           {{text: "```javascript\nconsole.log('vi')\n```"}},
		"css":                  {{text: "```css\nbody { color: #111; }\n```"}},
		"interface":            {{text: "```html\n<div>page</div>\n```\n```css\nbody{}\n```\n```js\nrun()\n```"}},
		"translate_html":       {{text: "```html\n<div>report</div>\n```"}},
		"translate_javascript": {{text: "console.log('en')"}},
	}
}

type harness struct {
	pipeline *Pipeline
	backend  *scriptedBackend
	store    *memoryStore
	tracker  *progress.Tracker
	visits   map[string]int
	sleeps   []time.Duration
}

func newHarness(t *testing.T, replies map[string][]reply, cfg Config) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	h := &harness{
		backend: newScriptedBackend(replies),
		store:   &memoryStore{},
		tracker: progress.NewTracker(logger),
		visits:  map[string]int{},
	}

	counting := func(name string, next workflow.NodeFunc[*State]) workflow.NodeFunc[*State] {
		return func(ctx context.Context, state *State) (*State, error) {
			h.visits[name]++

			return next(ctx, state)
		}
	}

	pipeline, err := New(Dependencies{
		Prompts:  testPrompts(),
		Store:    h.store,
		Progress: h.tracker,
		Backends: func(context.Context, string) (llm.Backend, error) { return h.backend, nil },
		Logger:   logger,
	},
		WithConfig(cfg),
		WithMiddleware(counting, LoggingMiddleware(logger)),
		WithSleep(func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)

			return nil
		}),
	)
	require.NoError(t, err)

	h.pipeline = pipeline

	return h
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.BackoffUnit = 0
	cfg.SaveBackoff = 10 * time.Millisecond

	return cfg
}

func TestPipeline_FailThenPass(t *testing.T) {
	replies := happyReplies()
	replies["research"] = []reply{
		{text: "First pass\nRESULT: FAIL"},
		{text: "Second pass\nRESULT: PASS"},
	}

	h := newHarness(t, replies, fastConfig())

	result := h.pipeline.Run(context.Background(), Input{SessionID: "s-1", APIKey: "key", MaxAttempts: 3})

	require.True(t, result.Success, result.Errors)
	require.NotNil(t, result.ReportID)
	assert.Equal(t, int64(1), *result.ReportID)
	assert.Equal(t, "PASS", result.ValidationResult)
	assert.Equal(t, "s-1", result.SessionID)
	assert.Contains(t, result.Research, "Second pass")
	assert.Empty(t, result.HTML)
	assert.Equal(t, 1, result.InterfaceAttempt)

	assert.Equal(t, map[string]int{
		NodePrepare:   1,
		NodeResearch:  2,
		NodeValidate:  2,
		NodeReport:    1,
		NodeHTML:      1,
		NodeJS:        1,
		NodeCSS:       1,
		NodeTranslate: 1,
		NodePersist:   1,
	}, h.visits)

	require.Len(t, h.store.reports, 1)
	saved := h.store.reports[0]
	assert.Equal(t, "<div>bao cao</div>", saved.HTML)
	assert.Equal(t, "console.log('vi')", saved.JS)
	assert.Equal(t, "body { color: #111; }", saved.CSS)
	assert.Equal(t, "<div>report</div>", saved.HTMLEn)
	assert.Equal(t, "console.log('en')", saved.JSEn)

	record, ok := h.tracker.Get("s-1")
	require.True(t, ok)
	assert.Equal(t, progress.StatusCompleted, record.Status)
	assert.Equal(t, 100, record.Percentage)
	require.NotNil(t, record.ReportID)
	assert.Equal(t, int64(1), *record.ReportID)
}

func TestPipeline_ResearchPromptCarriesSnapshotNotice(t *testing.T) {
	h := newHarness(t, happyReplies(), fastConfig())

	result := h.pipeline.Run(context.Background(), Input{SessionID: "s-2", APIKey: "key"})
	require.True(t, result.Success, result.Errors)

	research := h.backend.prompts["research"]
	require.Len(t, research, 1)
	assert.NotContains(t, research[0], prompts.SnapshotToken)
	assert.NotContains(t, research[0], "<<@day>>")
	assert.Contains(t, research[0], "Real-time data unavailable")

	assert.Equal(t, []string{"Write a report from: Market analysis\nRESULT: PASS"}, h.backend.prompts["report"])
	assert.True(t, strings.HasSuffix(h.backend.prompts["html"][0], "**REPORT CONTENT:**\n\n# Daily report"))
	assert.Equal(t, "Translate this JS: console.log('vi')", h.backend.prompts["translate_javascript"][0])
}

func TestPipeline_RateLimitedResearch(t *testing.T) {
	replies := happyReplies()
	replies["research"] = []reply{{err: llm.NewError(llm.ErrorTypeRateLimit, "quota exceeded")}}

	h := newHarness(t, replies, fastConfig())

	result := h.pipeline.Run(context.Background(), Input{SessionID: "s-3", APIKey: "key"})

	assert.False(t, result.Success)
	assert.Nil(t, result.ReportID)
	assert.Empty(t, result.HTML)
	assert.Empty(t, result.Research)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "rate limit")
	assert.True(t, result.RateLimited)
	assert.Equal(t, 1, result.ResearchAttempts)

	assert.Equal(t, 1, h.backend.callCount("research"))
	assert.Zero(t, h.backend.callCount("report"))
	assert.Zero(t, h.visits[NodeReport])
	assert.Zero(t, h.store.calls)

	record, ok := h.tracker.Get("s-3")
	require.True(t, ok)
	assert.Equal(t, progress.StatusError, record.Status)
	assert.Contains(t, record.Details, "rate limit")
}

func TestPipeline_ValidationExhausted(t *testing.T) {
	replies := happyReplies()
	replies["research"] = []reply{{text: "RESULT: FAIL"}}

	h := newHarness(t, replies, fastConfig())

	result := h.pipeline.Run(context.Background(), Input{SessionID: "s-4", APIKey: "key", MaxAttempts: 2})

	assert.False(t, result.Success)
	assert.Equal(t, "FAIL", result.ValidationResult)
	assert.Equal(t, 2, h.visits[NodeResearch])
	assert.Zero(t, h.visits[NodeReport])
	assert.Contains(t, result.Errors, "research validation failed after 2 attempts")
}

func TestPipeline_MissingAPIKey(t *testing.T) {
	h := newHarness(t, happyReplies(), fastConfig())

	result := h.pipeline.Run(context.Background(), Input{SessionID: "s-5", APIKey: "   "})

	assert.False(t, result.Success)
	assert.Equal(t, []string{"API key is missing"}, result.Errors)
	assert.Equal(t, map[string]int{NodePrepare: 1}, h.visits)

	record, ok := h.tracker.Get("s-5")
	require.True(t, ok)
	assert.Equal(t, progress.StatusError, record.Status)
}

func TestPipeline_ComponentRetry(t *testing.T) {
	replies := happyReplies()
	replies["html"] = []reply{
		{text: "Sorry, here is a summary instead."},
		{text: "```html\n<div>second</div>\n```"},
	}

	h := newHarness(t, replies, fastConfig())

	result := h.pipeline.Run(context.Background(), Input{SessionID: "s-6", APIKey: "key"})

	require.True(t, result.Success, result.Errors)
	assert.Equal(t, 2, h.visits[NodeHTML])
	assert.Equal(t, 2, result.InterfaceAttempt)
	assert.Equal(t, "<div>second</div>", h.store.reports[0].HTML)
	assert.Contains(t, result.Errors, "could not extract HTML from the model response")
}

func TestPipeline_CombinedInterface(t *testing.T) {
	replies := happyReplies()
	replies["interface"] = []reply{
		{text: "No page today."},
		{text: "```html\n<div>page</div>\n```\n```css\nbody{}\n```\n```js\nrun()\n```"},
	}

	cfg := fastConfig()
	cfg.InterfaceMode = InterfaceCombined

	h := newHarness(t, replies, cfg)

	assert.NotContains(t, h.pipeline.Nodes(), NodeHTML)

	result := h.pipeline.Run(context.Background(), Input{SessionID: "s-7", APIKey: "key"})

	require.True(t, result.Success, result.Errors)
	assert.Equal(t, 2, h.visits[NodeInterface])
	assert.Equal(t, 2, h.visits[NodeExtract])
	assert.Zero(t, h.visits[NodeHTML])
	assert.Equal(t, 2, result.InterfaceAttempt)

	saved := h.store.reports[0]
	assert.Equal(t, "<div>page</div>", saved.HTML)
	assert.Equal(t, "body{}", saved.CSS)
	assert.Equal(t, "run()", saved.JS)
}

func TestPipeline_CombinedInterfaceRetriesEmptyHTML(t *testing.T) {
	replies := happyReplies()
	replies["interface"] = []reply{
		{text: "```html\n\n```\nsome prose"},
		{text: "```html\n<div>page</div>\n```"},
	}

	cfg := fastConfig()
	cfg.InterfaceMode = InterfaceCombined

	h := newHarness(t, replies, cfg)

	result := h.pipeline.Run(context.Background(), Input{SessionID: "s-7b", APIKey: "key"})

	require.True(t, result.Success, result.Errors)
	assert.Equal(t, 2, h.visits[NodeInterface])
	assert.Equal(t, 2, h.visits[NodeExtract])
	assert.Equal(t, 1, h.visits[NodePersist])
	assert.Equal(t, "<div>page</div>", h.store.reports[0].HTML)
}

func TestPipeline_EngineErrorResult(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	tracker := progress.NewTracker(logger)
	backend := newScriptedBackend(happyReplies())

	failing := func(name string, next workflow.NodeFunc[*State]) workflow.NodeFunc[*State] {
		return func(ctx context.Context, state *State) (*State, error) {
			if name == NodeReport {
				panic("boom")
			}

			return next(ctx, state)
		}
	}

	pipeline, err := New(Dependencies{
		Prompts:  testPrompts(),
		Store:    &memoryStore{},
		Progress: tracker,
		Backends: func(context.Context, string) (llm.Backend, error) { return backend, nil },
		Logger:   logger,
	}, WithConfig(fastConfig()), WithMiddleware(failing))
	require.NoError(t, err)

	result := pipeline.Run(context.Background(), Input{SessionID: "s-8", APIKey: "key"})

	assert.False(t, result.Success)
	assert.Equal(t, "ERROR", result.ValidationResult)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "boom")
	assert.Empty(t, result.Research)

	record, ok := tracker.Get("s-8")
	require.True(t, ok)
	assert.Equal(t, progress.StatusError, record.Status)
}

func TestPipeline_SessionIDGenerated(t *testing.T) {
	h := newHarness(t, happyReplies(), fastConfig())

	result := h.pipeline.Run(context.Background(), Input{APIKey: "key"})

	assert.NotEmpty(t, result.SessionID)

	_, ok := h.tracker.Get(result.SessionID)
	assert.True(t, ok)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Dependencies{})
	require.ErrorIs(t, err, ErrMissingPrompts)

	_, err = New(Dependencies{Prompts: testPrompts()})
	require.ErrorIs(t, err, ErrMissingStore)

	_, err = New(Dependencies{Prompts: testPrompts(), Store: &memoryStore{}, Progress: progress.NewTracker(slog.Default())},
		WithConfig(Config{InterfaceMode: "sideways"}))
	require.ErrorIs(t, err, ErrMissingBackend)
}

func TestPersist_RetriesTransientErrors(t *testing.T) {
	h := newHarness(t, happyReplies(), fastConfig())
	h.store.errs = []error{driver.ErrBadConn, errors.New("SSL error: decryption failed or bad record mac")}

	result := h.pipeline.Run(context.Background(), Input{SessionID: "s-9", APIKey: "key"})

	require.True(t, result.Success, result.Errors)
	assert.Equal(t, 3, h.store.calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, h.sleeps)
}

func TestPersist_DoesNotRetryPermanentErrors(t *testing.T) {
	h := newHarness(t, happyReplies(), fastConfig())
	h.store.errs = []error{errors.New("duplicate key value violates unique constraint")}

	result := h.pipeline.Run(context.Background(), Input{SessionID: "s-10", APIKey: "key"})

	assert.False(t, result.Success)
	assert.Equal(t, 1, h.store.calls)
	assert.Empty(t, h.sleeps)
}
