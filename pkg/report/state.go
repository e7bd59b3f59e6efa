// Package report assembles the market report pipeline: the shared run state,
// the stage nodes, the routers between them and the graph that ties them together.
package report

import (
	"time"

	"github.com/cryptodashboard/reportgen/pkg/llm"
	"github.com/cryptodashboard/reportgen/pkg/market"
)

// Verdict is the outcome of the research self validation.
type Verdict string

const (
	VerdictPass    Verdict = "PASS"
	VerdictFail    Verdict = "FAIL"
	VerdictUnknown Verdict = "UNKNOWN"
)

// State is threaded through every stage of a run.
//
// Nil artifacts have not been produced. Attempt counters only grow.
// RateLimitStop is never cleared once set and Errors is only appended to.
type State struct {
	SessionID string
	CreatedAt time.Time

	APIKey      string
	MaxAttempts int

	ResearchAttempt  int
	ReportAttempt    int
	InterfaceAttempt int
	HTMLAttempt      int
	JSAttempt        int
	CSSAttempt       int

	Model          string
	Client         *llm.Caller
	ResearchPrompt string
	Snapshot       market.Snapshot

	Research  *string
	Report    *string
	Interface *string
	HTML      *string
	CSS       *string
	JS        *string
	HTMLEn    *string
	JSEn      *string

	Verdict       Verdict
	RateLimitStop bool
	Errors        []string
	// Success describes the last executed stage, not the run.
	Success bool

	ReportID *int64
}

// Input starts a run.
type Input struct {
	SessionID   string
	APIKey      string
	MaxAttempts int
}

// NewState returns the initial state for a run.
func NewState(in Input, now time.Time) *State {
	return &State{
		SessionID:   in.SessionID,
		CreatedAt:   now,
		APIKey:      in.APIKey,
		MaxAttempts: in.MaxAttempts,
		Errors:      []string{},
	}
}

func (s *State) fail(message string) {
	s.Errors = append(s.Errors, message)
	s.Success = false
}

func (s *State) stopOnRateLimit(message string) {
	s.fail(message)
	s.RateLimitStop = true
}

func deref(value *string) string {
	if value == nil {
		return ""
	}

	return *value
}

func ptr(value string) *string {
	return &value
}
