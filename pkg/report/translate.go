package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/cryptodashboard/reportgen/pkg/llm"
	"github.com/cryptodashboard/reportgen/pkg/prompts"
)

// Translate produces the English HTML and JavaScript. The two translations are
// independent; a field that could not be translated stays nil.
func (n *Nodes) Translate(ctx context.Context, state *State) (*State, error) {
	if state.RateLimitStop {
		return state, nil
	}

	n.progress.Advance(state.SessionID, StepTranslate, "Translating", "Translating HTML and JavaScript to English")

	translated := 0

	if state.HTML != nil && strings.TrimSpace(*state.HTML) != "" {
		text, stop := n.translate(ctx, state, "html", prompts.TranslateHTML, prompts.ContentToken, *state.HTML)
		if stop {
			return state, nil
		}

		if text != "" {
			state.HTMLEn = ptr(text)
			translated++
		}
	}

	if state.JS != nil && strings.TrimSpace(*state.JS) != "" {
		text, stop := n.translate(ctx, state, "javascript", prompts.TranslateJS, prompts.JSContentToken, *state.JS)
		if stop {
			return state, nil
		}

		if text != "" {
			state.JSEn = ptr(text)
			translated++
		}
	}

	state.Success = state.HTMLEn != nil && state.JSEn != nil

	n.progress.Detail(state.SessionID, fmt.Sprintf("Translated %d of 2 contents", translated))

	return state, nil
}

// translate returns the cleaned translation, or "" when it failed. stop is
// true when the backend rate limited the run.
func (n *Nodes) translate(ctx context.Context, state *State, contentType, promptName, token, content string) (string, bool) {
	template, err := n.prompts.Prompt(promptName)
	if err != nil {
		state.Errors = append(state.Errors, fmt.Sprintf("failed to load %s translation prompt: %v", contentType, err))

		return "", false
	}

	n.progress.Detail(state.SessionID, fmt.Sprintf("Translating %s", contentType))

	operation := "translate_" + contentType

	if state.Client == nil {
		state.Errors = append(state.Errors, operation+": backend client is not prepared")

		return "", false
	}

	text, err := state.Client.Call(ctx, state.Model, llm.Request{
		SessionID:   state.SessionID,
		Operation:   operation,
		Prompt:      strings.ReplaceAll(template, token, content),
		Temperature: 0.1,
	}, n.cfg.CallRetries)
	if err != nil {
		if llm.IsRateLimit(err) {
			state.stopOnRateLimit(fmt.Sprintf("rate limit reached while translating %s, stopping: %v", contentType, err))
			n.progress.Detail(state.SessionID, fmt.Sprintf("Rate limit reached while translating %s", contentType))

			return "", true
		}

		state.Errors = append(state.Errors, fmt.Sprintf("translation of %s failed: %v", contentType, err))
		n.progress.Detail(state.SessionID, fmt.Sprintf("Translation of %s failed", contentType))

		return "", false
	}

	cleaned := StripFence(text)
	if cleaned == "" {
		state.Errors = append(state.Errors, fmt.Sprintf("translation of %s returned empty content", contentType))

		return "", false
	}

	return cleaned, false
}
