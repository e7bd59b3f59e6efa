package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/llm"
	"github.com/cryptodashboard/reportgen/pkg/market"
	"github.com/cryptodashboard/reportgen/pkg/models"
	"github.com/cryptodashboard/reportgen/pkg/prompts"
)

// Progress steps reported by the stages.
const (
	StepPrepare = iota + 1
	StepResearch
	StepValidate
	StepReport
	StepHTML
	StepJS
	StepCSS
	StepTranslate
	StepPersist

	TotalSteps = StepPersist
)

// ProgressReporter is the progress side channel of a run. Stages only record
// details on failure; the error status is set once by Pipeline.Run when the
// run ends without a report.
type ProgressReporter interface {
	Start(sessionID string, totalSteps int)
	Advance(sessionID string, step int, stepName, details string)
	Detail(sessionID, details string)
	Complete(sessionID string, success bool, reportID *int64)
	Error(sessionID, message string)
}

// ReportStore persists finished reports.
type ReportStore interface {
	SaveReport(ctx context.Context, report *models.Report) (int64, error)
}

// Nodes holds the collaborators shared by the stage functions.
type Nodes struct {
	prompts   prompts.Source
	snapshots market.Source
	store     ReportStore
	progress  ProgressReporter
	backends  llm.BackendFactory
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	callOpts  []llm.CallerOption
	sleep     func(ctx context.Context, d time.Duration) error
}

func (n *Nodes) requiredPrompts() []string {
	names := []string{prompts.ResearchValidation, prompts.GenerateReport, prompts.TranslateHTML, prompts.TranslateJS}

	if n.cfg.InterfaceMode == InterfaceCombined {
		return append(names, prompts.CreateReport)
	}

	return append(names, prompts.CreateHTML, prompts.CreateJavaScript, prompts.CreateCSS)
}

// Prepare checks the credential, resolves every prompt the graph needs,
// creates the backend client and loads the market snapshot.
func (n *Nodes) Prepare(ctx context.Context, state *State) (*State, error) {
	if state.RateLimitStop {
		return state, nil
	}

	n.progress.Advance(state.SessionID, StepPrepare, "Preparing", "Checking API key and loading prompts")

	if strings.TrimSpace(state.APIKey) == "" {
		state.fail("API key is missing")
		n.progress.Detail(state.SessionID, "API key is missing")

		return state, nil
	}

	if err := prompts.Require(n.prompts, n.requiredPrompts()...); err != nil {
		state.fail(fmt.Sprintf("failed to load prompts: %v", err))
		n.progress.Detail(state.SessionID, "Prompts could not be loaded")

		return state, nil
	}

	research, err := n.prompts.Prompt(prompts.ResearchValidation)
	if err != nil {
		state.fail(fmt.Sprintf("failed to load research prompt: %v", err))

		return state, nil
	}

	backend, err := n.backends(ctx, state.APIKey)
	if err != nil {
		state.fail(fmt.Sprintf("failed to create backend client: %v", err))
		n.progress.Detail(state.SessionID, "Backend client could not be created")

		return state, nil
	}

	opts := append([]llm.CallerOption{
		llm.WithProgressReporter(n.progress),
		llm.WithBackoffUnit(n.cfg.BackoffUnit),
	}, n.callOpts...)

	state.Client = llm.NewCaller(backend, n.logger, opts...)
	state.Model = n.cfg.Model
	state.ResearchPrompt = prompts.ReplaceDates(research, n.now())

	if state.MaxAttempts <= 0 {
		state.MaxAttempts = n.cfg.MaxAttempts
	}

	state.Snapshot = n.loadSnapshot(ctx, state.SessionID)
	state.Success = true

	n.progress.Detail(state.SessionID, "Preparation complete")

	return state, nil
}

func (n *Nodes) loadSnapshot(ctx context.Context, sessionID string) market.Snapshot {
	if n.snapshots == nil {
		return nil
	}

	snapshot, err := n.snapshots.Latest(ctx)
	if err != nil {
		n.logger.WarnContext(ctx, "market snapshot unavailable", "session_id", sessionID, "error", err)
		n.progress.Detail(sessionID, "Real-time market data unavailable, research will rely on search")

		return nil
	}

	n.progress.Detail(sessionID, fmt.Sprintf("Loaded real-time market data (%d fields)", len(snapshot)))

	return snapshot
}

// Research runs the combined research and self validation prompt.
func (n *Nodes) Research(ctx context.Context, state *State) (*State, error) {
	if state.RateLimitStop {
		return state, nil
	}

	state.ResearchAttempt++
	n.progress.Advance(state.SessionID, StepResearch,
		fmt.Sprintf("Researching market (attempt %d)", state.ResearchAttempt),
		"Collecting market data and validating the analysis")

	prompt := prompts.InjectSnapshot(state.ResearchPrompt, state.Snapshot)

	text, ok := n.call(ctx, state, "research", llm.Request{
		Prompt:          prompt,
		Temperature:     0.7,
		MaxOutputTokens: 60000,
		ThinkingBudget:  8192,
		GoogleSearch:    true,
	})
	if !ok {
		return state, nil
	}

	state.Research = ptr(text)
	state.Verdict = ParseVerdict(text)
	state.Success = state.Verdict != VerdictFail

	n.progress.Detail(state.SessionID,
		fmt.Sprintf("Research finished (%d chars), validation: %s", len(text), state.Verdict))

	return state, nil
}

// Validate derives the verdict from the research text without calling the backend.
func (n *Nodes) Validate(_ context.Context, state *State) (*State, error) {
	if state.RateLimitStop {
		return state, nil
	}

	n.progress.Advance(state.SessionID, StepValidate, "Validating research", "")

	if state.Research == nil {
		state.Verdict = VerdictFail
		state.fail("no research content to validate")
	} else {
		state.Verdict = ParseVerdict(*state.Research)
		state.Success = state.Verdict != VerdictFail
	}

	if state.Verdict == VerdictFail && state.ResearchAttempt >= state.MaxAttempts {
		state.fail(fmt.Sprintf("research validation failed after %d attempts", state.ResearchAttempt))
	}

	n.progress.Detail(state.SessionID, fmt.Sprintf("Validation result: %s", state.Verdict))

	return state, nil
}

// Report turns the research into the report draft.
func (n *Nodes) Report(ctx context.Context, state *State) (*State, error) {
	if state.RateLimitStop {
		return state, nil
	}

	state.ReportAttempt++
	n.progress.Advance(state.SessionID, StepReport,
		fmt.Sprintf("Writing report (attempt %d)", state.ReportAttempt), "Drafting the report from the research")

	if state.Research == nil {
		state.fail("no research content to write the report from")
		n.progress.Detail(state.SessionID, "No research content available")

		return state, nil
	}

	template, err := n.prompts.Prompt(prompts.GenerateReport)
	if err != nil {
		state.fail(fmt.Sprintf("failed to load report prompt: %v", err))

		return state, nil
	}

	text, ok := n.call(ctx, state, "report", llm.Request{
		Prompt:          prompts.Fill(template, *state.Research),
		Temperature:     0.5,
		MaxOutputTokens: 25000,
		ThinkingBudget:  4096,
	})
	if !ok {
		return state, nil
	}

	state.Report = ptr(text)
	state.Success = true

	n.progress.Detail(state.SessionID, fmt.Sprintf("Report drafted (%d chars)", len(text)))

	return state, nil
}

// call runs one backend request and records failures on the state.
// It returns false when the stage must stop.
func (n *Nodes) call(ctx context.Context, state *State, operation string, req llm.Request) (string, bool) {
	if state.Client == nil {
		state.fail(operation + ": backend client is not prepared")

		return "", false
	}

	req.SessionID = state.SessionID
	req.Operation = operation

	text, err := state.Client.Call(ctx, state.Model, req, n.cfg.CallRetries)
	if err == nil {
		return text, true
	}

	if llm.IsRateLimit(err) {
		state.stopOnRateLimit(fmt.Sprintf("rate limit reached during %s, stopping: %v", operation, err))
		n.progress.Detail(state.SessionID, fmt.Sprintf("Rate limit reached during %s, stopping", operation))

		return "", false
	}

	state.fail(fmt.Sprintf("%s failed: %v", operation, err))
	n.progress.Detail(state.SessionID, fmt.Sprintf("%s failed: %s", operation, llm.TypeOf(err)))

	return "", false
}
