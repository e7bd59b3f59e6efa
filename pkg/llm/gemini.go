package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// GeminiBackend calls the Gemini API through the genai SDK.
// The SDK client is created lazily on the first call.
type GeminiBackend struct {
	apiKey string

	once    sync.Once
	client  *genai.Client
	initErr error
}

func NewGeminiBackend(apiKey string) *GeminiBackend {
	return &GeminiBackend{apiKey: apiKey}
}

// NewGeminiFactory returns a BackendFactory producing Gemini backends.
func NewGeminiFactory() BackendFactory {
	return func(_ context.Context, apiKey string) (Backend, error) {
		if strings.TrimSpace(apiKey) == "" {
			return nil, NewError(ErrorTypeAuth, "missing API key")
		}

		return NewGeminiBackend(apiKey), nil
	}
}

func (g *GeminiBackend) Generate(ctx context.Context, model string, req Request) (string, error) {
	g.once.Do(func() {
		g.client, g.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})

	if g.initErr != nil {
		return "", NewError(ErrorTypeAuth, fmt.Sprintf("failed to create Gemini client: %v", g.initErr))
	}

	result, err := g.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), generationConfig(req))
	if err != nil {
		return "", Wrap(err)
	}

	if result == nil {
		return "", NewError(ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return "", NewError(ErrorTypeEmptyResponse, "Gemini API returned no text")
	}

	return text, nil
}

func generationConfig(req Request) *genai.GenerateContentConfig {
	temperature := req.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:    &temperature,
		CandidateCount: 1,
	}

	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = req.MaxOutputTokens
	}

	if req.ThinkingBudget > 0 {
		config.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(req.ThinkingBudget),
		}
	}

	if req.GoogleSearch {
		config.Tools = []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		}
	}

	return config
}
