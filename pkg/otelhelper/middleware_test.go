package otelhelper

import (
	"context"
	"testing"

	"github.com/cryptodashboard/reportgen/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	return recorder, provider
}

func TestStageMiddleware_RecordsSpan(t *testing.T) {
	recorder, provider := newRecordingTracer(t)
	middleware := StageMiddleware(provider.Tracer("test"))

	id := int64(9)
	node := middleware(report.NodePersist, func(_ context.Context, s *report.State) (*report.State, error) {
		s.ReportID = &id
		s.Success = true

		return s, nil
	})

	_, err := node(context.Background(), &report.State{SessionID: "s-1"})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "stage.persist", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(SessionIDKey, "s-1"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int64(ReportIDKey, 9))
}

func TestStageMiddleware_MarksFailedStage(t *testing.T) {
	recorder, provider := newRecordingTracer(t)
	middleware := StageMiddleware(provider.Tracer("test"))

	node := middleware(report.NodeValidate, func(_ context.Context, s *report.State) (*report.State, error) {
		s.Verdict = report.VerdictFail
		s.Errors = append(s.Errors, "research validation failed after 3 attempts")

		return s, nil
	})

	_, err := node(context.Background(), &report.State{SessionID: "s-2"})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(VerdictKey, "FAIL"))
	require.Len(t, spans[0].Events(), 2)
}
