package llm

import "context"

// Request is a single prompt sent to the backend.
type Request struct {
	// SessionID routes progress details of this call; may be empty.
	SessionID string
	// Operation names the pipeline stage issuing the call (research, html, ...).
	Operation       string
	Prompt          string
	Temperature     float32
	MaxOutputTokens int32
	// ThinkingBudget is passed through when positive; zero leaves the model default.
	ThinkingBudget int32
	// GoogleSearch enables the search grounding tool.
	GoogleSearch bool
}

// Backend produces model text for a request.
type Backend interface {
	Generate(ctx context.Context, model string, req Request) (string, error)
}

// BackendFactory builds a Backend for an API credential.
type BackendFactory func(ctx context.Context, apiKey string) (Backend, error)

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, model string, req Request) (string, error)

func (f BackendFunc) Generate(ctx context.Context, model string, req Request) (string, error) {
	return f(ctx, model, req)
}
