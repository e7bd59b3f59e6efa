package report

import (
	"context"
	"fmt"

	"github.com/cryptodashboard/reportgen/pkg/llm"
	"github.com/cryptodashboard/reportgen/pkg/prompts"
)

const (
	reportContentHeading  = "\n\n---\n\n**REPORT CONTENT:**\n\n"
	interfaceInputHeading = "\n\n---\n\n**REPORT CONTENT TO PROCESS:**\n\n"
	generatedHTMLHeading  = "\n\n---\n\n**GENERATED HTML:**\n\n"
)

func pageSource(state *State) *string {
	if state.Report != nil {
		return state.Report
	}

	return state.Research
}

// HTML renders the report into semantic HTML.
func (n *Nodes) HTML(ctx context.Context, state *State) (*State, error) {
	if state.RateLimitStop {
		return state, nil
	}

	state.HTMLAttempt++
	n.progress.Advance(state.SessionID, StepHTML,
		fmt.Sprintf("Creating HTML (attempt %d)", state.HTMLAttempt), "Rendering the report as HTML")

	source := pageSource(state)
	if source == nil {
		state.fail("no report content to render as HTML")

		return state, nil
	}

	text, ok := n.component(ctx, state, "html", prompts.CreateHTML, reportContentHeading+*source)
	if !ok {
		return state, nil
	}

	html := ExtractHTML(text)
	if html == "" {
		state.fail("could not extract HTML from the model response")
		n.progress.Detail(state.SessionID, "Model response contained no HTML")

		return state, nil
	}

	state.HTML = ptr(html)
	state.Success = true

	n.progress.Detail(state.SessionID, fmt.Sprintf("HTML created (%d chars)", len(html)))

	return state, nil
}

// JS generates the page script for the rendered HTML.
func (n *Nodes) JS(ctx context.Context, state *State) (*State, error) {
	if state.RateLimitStop {
		return state, nil
	}

	state.JSAttempt++
	n.progress.Advance(state.SessionID, StepJS,
		fmt.Sprintf("Creating JavaScript (attempt %d)", state.JSAttempt), "Adding interactivity to the HTML")

	if state.HTML == nil {
		state.fail("no HTML to generate JavaScript for")

		return state, nil
	}

	text, ok := n.component(ctx, state, "javascript", prompts.CreateJavaScript, generatedHTMLHeading+*state.HTML)
	if !ok {
		return state, nil
	}

	state.JS = ptr(ExtractJS(text))
	state.Success = true

	n.progress.Detail(state.SessionID, fmt.Sprintf("JavaScript created (%d chars)", len(*state.JS)))

	return state, nil
}

// CSS generates the page stylesheet for the rendered HTML.
func (n *Nodes) CSS(ctx context.Context, state *State) (*State, error) {
	if state.RateLimitStop {
		return state, nil
	}

	state.CSSAttempt++
	n.progress.Advance(state.SessionID, StepCSS,
		fmt.Sprintf("Creating CSS (attempt %d)", state.CSSAttempt), "Styling the HTML")

	if state.HTML == nil {
		state.fail("no HTML to generate CSS for")

		return state, nil
	}

	text, ok := n.component(ctx, state, "css", prompts.CreateCSS, generatedHTMLHeading+*state.HTML)
	if !ok {
		return state, nil
	}

	state.CSS = ptr(ExtractCSS(text))
	state.Success = true

	n.progress.Detail(state.SessionID, fmt.Sprintf("CSS created (%d chars)", len(*state.CSS)))

	return state, nil
}

// Interface generates the whole page in a single response.
func (n *Nodes) Interface(ctx context.Context, state *State) (*State, error) {
	if state.RateLimitStop {
		return state, nil
	}

	state.InterfaceAttempt++
	n.progress.Advance(state.SessionID, StepHTML,
		fmt.Sprintf("Creating interface (attempt %d)", state.InterfaceAttempt), "Generating HTML, CSS and JavaScript")

	source := pageSource(state)
	if source == nil {
		state.fail("no report content to build the interface from")

		return state, nil
	}

	text, ok := n.component(ctx, state, "interface", prompts.CreateReport, interfaceInputHeading+*source)
	if !ok {
		return state, nil
	}

	state.Interface = ptr(text)
	state.Success = true

	n.progress.Detail(state.SessionID, fmt.Sprintf("Interface generated (%d chars)", len(text)))

	return state, nil
}

// Extract splits the combined interface response into page parts.
func (n *Nodes) Extract(_ context.Context, state *State) (*State, error) {
	if state.RateLimitStop {
		return state, nil
	}

	n.progress.Advance(state.SessionID, StepJS, "Extracting page components", "")

	if state.Interface == nil {
		state.fail("no interface content to extract from")

		return state, nil
	}

	components := ExtractComponents(*state.Interface)
	if !components.OK || components.HTML == "" {
		state.fail(fmt.Sprintf("interface attempt %d produced no usable page", state.InterfaceAttempt))
		n.progress.Detail(state.SessionID, "No usable page found in the interface response")

		return state, nil
	}

	state.HTML = ptr(components.HTML)
	state.CSS = ptr(components.CSS)
	state.JS = ptr(components.JS)
	state.Success = true

	n.progress.Detail(state.SessionID, fmt.Sprintf("Extracted HTML %d, CSS %d, JS %d chars",
		len(components.HTML), len(components.CSS), len(components.JS)))

	return state, nil
}

func (n *Nodes) component(ctx context.Context, state *State, operation, promptName, input string) (string, bool) {
	template, err := n.prompts.Prompt(promptName)
	if err != nil {
		state.fail(fmt.Sprintf("failed to load %s prompt: %v", operation, err))

		return "", false
	}

	return n.call(ctx, state, operation, llm.Request{
		Prompt:      template + input,
		Temperature: 0.1,
	})
}
