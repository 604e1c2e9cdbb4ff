package workerpresentation

import (
	"context"

	"github.com/google/uuid"
	"github.com/mojig27/web-site-sub001/internal/observability"
	"github.com/mojig27/web-site-sub001/internal/observability/logctx"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext binds a run-scoped logger for background work: run_id
// (generated unless attrs carries one), trace_id/span_id from the span in ctx
// when it is valid, and the caller's low-cardinality attrs such as "job".
func WithEventContext(ctx context.Context, base observability.Logger, attrs map[string]string) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}

	fields := make([]observability.Field, 0, len(attrs)+3)
	runID := attrs["run_id"]
	if runID == "" {
		runID = uuid.NewString()
	}
	fields = append(fields, observability.F("run_id", runID))

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	for k, v := range attrs {
		if k == "run_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}
	return logctx.With(ctx, base.With(fields...))
}
