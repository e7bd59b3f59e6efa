package report

import "strings"

// Route labels returned by the routers.
const (
	RouteContinue = "continue"
	RouteRetry    = "retry"
	RouteEnd      = "end"
)

func RouteAfterPrepare(state *State) string {
	if state.Success && !state.RateLimitStop {
		return RouteContinue
	}

	return RouteEnd
}

// RouteAfterValidate lets PASS and UNKNOWN through and retries research on
// FAIL until MaxAttempts research attempts have been made.
func RouteAfterValidate(state *State) string {
	if state.RateLimitStop {
		return RouteEnd
	}

	if state.Verdict == VerdictPass || state.Verdict == VerdictUnknown {
		return RouteContinue
	}

	if state.ResearchAttempt >= state.MaxAttempts {
		return RouteEnd
	}

	return RouteRetry
}

// ComponentRouter builds the router for a stage that produces one artifact.
// A blank artifact counts as missing.
func ComponentRouter(artifact func(*State) *string, attempts func(*State) int, maxAttempts int) func(*State) string {
	return func(state *State) string {
		if state.RateLimitStop {
			return RouteEnd
		}

		if state.Success && strings.TrimSpace(deref(artifact(state))) != "" {
			return RouteContinue
		}

		if attempts(state) >= maxAttempts {
			return RouteEnd
		}

		return RouteRetry
	}
}

func RouteAfterHTML(maxAttempts int) func(*State) string {
	return ComponentRouter(
		func(s *State) *string { return s.HTML },
		func(s *State) int { return s.HTMLAttempt },
		maxAttempts,
	)
}

func RouteAfterJS(maxAttempts int) func(*State) string {
	return ComponentRouter(
		func(s *State) *string { return s.JS },
		func(s *State) int { return s.JSAttempt },
		maxAttempts,
	)
}

func RouteAfterCSS(maxAttempts int) func(*State) string {
	return ComponentRouter(
		func(s *State) *string { return s.CSS },
		func(s *State) int { return s.CSSAttempt },
		maxAttempts,
	)
}

// RouteAfterExtract retries the combined interface stage.
func RouteAfterExtract(maxAttempts int) func(*State) string {
	return ComponentRouter(
		func(s *State) *string { return s.HTML },
		func(s *State) int { return s.InterfaceAttempt },
		maxAttempts,
	)
}
