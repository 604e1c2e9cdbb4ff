package application

import (
	"context"
	"time"

	domoutbox "github.com/mojig27/web-site-sub001/internal/domain/outbox"
	"github.com/mojig27/web-site-sub001/internal/observability"
	"github.com/mojig27/web-site-sub001/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	SpanPrefix = "UC."

	publishPeer    = "outbox"
	publishTimeout = 300 * time.Millisecond
)

// Telemetry holds the instruments every use case reports through: one span,
// the RED metrics and a single use_case_done log line per execution.
type Telemetry struct {
	tracer observability.Tracer
	log    observability.Logger

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewTelemetry(tel observability.Observability, service string) Telemetry {
	metrics := observability.MetricsOf(tel)
	return Telemetry{
		tracer:       observability.TracerOf(tel),
		log:          observability.LoggerOf(tel).With(observability.F("service", service)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

func (t Telemetry) Logger() observability.Logger { return t.log }

// Run is one execution of a use case. Set Outcome/Status on failure paths and
// call End exactly once, usually deferred.
type Run struct {
	Span   trace.Span
	Log    observability.Logger
	ctx    context.Context
	t      Telemetry
	name   string
	start  time.Time
	status string
	out    string
	fields []observability.Field
}

// Begin starts the span and binds a request logger carrying useCase and
// fields onto the returned context.
func (t Telemetry) Begin(ctx context.Context, useCase, spanName string, attrs []attribute.KeyValue, fields ...observability.Field) (context.Context, *Run) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := t.tracer.Start(ctx, SpanPrefix+spanName, attrs...)

	fields = append([]observability.Field{observability.F("use_case", useCase)}, fields...)
	ctx, logger := logctx.Enrich(ctx, t.log, fields...)

	return ctx, &Run{
		Span:   span,
		Log:    logger,
		ctx:    ctx,
		t:      t,
		name:   useCase,
		start:  time.Now(),
		status: "OK",
		out:    "success",
	}
}

// Fail records a non-success outcome and a machine-readable status.
func (r *Run) Fail(outcome, status string) {
	r.out, r.status = outcome, status
}

// Status overrides the status text while keeping the outcome.
func (r *Run) Status(status string) { r.status = status }

// With adds fields to the use_case_done line.
func (r *Run) With(fields ...observability.Field) {
	r.fields = append(r.fields, fields...)
}

func (r *Run) End(err error) {
	if err != nil && r.out == "success" {
		r.out, r.status = "error", "INTERNAL"
	}
	lat := time.Since(r.start).Seconds()

	if r.Span != nil {
		if err != nil {
			r.Span.RecordError(err)
			r.Span.SetStatus(codes.Error, r.status)
		} else {
			r.Span.SetStatus(codes.Ok, r.status)
		}
		r.Span.End()
	}

	r.t.reqCounter.Add(1,
		observability.L("use_case", r.name),
		observability.L("outcome", r.out),
	)
	r.t.durHistogram.Observe(lat, observability.L("use_case", r.name))

	fields := []observability.Field{
		observability.F("outcome", r.out),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}
	if sc := trace.SpanContextFromContext(r.ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	fields = append(fields, r.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}

	if r.out == "error" {
		r.Log.Error("use_case_done", fields...)
		return
	}
	r.Log.Info("use_case_done", fields...)
}

// Publish hands e to pub with a short deadline. Failures are logged and
// counted, never returned: every subscriber is fire-and-forget.
func (t Telemetry) Publish(ctx context.Context, pub domoutbox.Publisher, e domoutbox.Event) {
	if pub == nil || e == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	outcome := "success"
	if err := pub.Publish(pubCtx, e); err != nil {
		outcome = "error"
		logctx.FromOr(ctx, t.log).Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err),
		)
	}
	t.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	t.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
	)
}
