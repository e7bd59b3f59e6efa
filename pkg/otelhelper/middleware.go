package otelhelper

import (
	"context"
	"errors"

	"github.com/cryptodashboard/reportgen/pkg/report"
	"github.com/cryptodashboard/reportgen/pkg/workflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errStageFailed = errors.New("stage failed")

// StageMiddleware opens one span per stage execution. Stage failures recorded
// in the state mark the span as errored without failing the run.
func StageMiddleware(tracer trace.Tracer) workflow.Middleware[*report.State] {
	return func(name string, next workflow.NodeFunc[*report.State]) workflow.NodeFunc[*report.State] {
		return func(ctx context.Context, state *report.State) (*report.State, error) {
			ctx, span := StartSpan(ctx, tracer, "stage."+name,
				attribute.String(StageKey, name),
				attribute.String(SessionIDKey, state.SessionID),
			)
			defer span.End()

			errCount := len(state.Errors)

			out, err := next(ctx, state)
			if err != nil {
				SetError(span, err, attribute.String(StageKey, name))

				return out, err
			}

			span.SetAttributes(
				attribute.Bool(StageSuccessKey, out.Success),
				attribute.Bool(RateLimitKey, out.RateLimitStop),
			)

			if out.Verdict != "" {
				span.SetAttributes(attribute.String(VerdictKey, string(out.Verdict)))
			}

			if out.ReportID != nil {
				span.SetAttributes(attribute.Int64(ReportIDKey, *out.ReportID))
			}

			if len(out.Errors) > errCount {
				SetError(span, errStageFailed, attribute.String("reportgen.stage.error", out.Errors[len(out.Errors)-1]))
			} else {
				span.SetStatus(codes.Ok, "")
			}

			return out, nil
		}
	}
}
