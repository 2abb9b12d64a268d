package modkit

import (
	"context"

	"go.opentelemetry.io/otel"
	otelattr "go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/GoCodeAlone/modkit"

// telemetry bundles the logger, metrics, tracer and event sink shared by the
// managers of one application. Every field may be left unset.
type telemetry struct {
	logger  Logger
	metrics *Metrics
	tracer  trace.Tracer
	emit    func(ctx context.Context, eventType string, data map[string]any)
}

func newTelemetry(logger Logger) *telemetry {
	return &telemetry{logger: loggerOrNop(logger)}
}

func (t *telemetry) log() Logger {
	if t == nil {
		return nopLogger{}
	}
	return loggerOrNop(t.logger)
}

func (t *telemetry) meter() *Metrics {
	if t == nil {
		return nil
	}
	return t.metrics
}

func (t *telemetry) startSpan(ctx context.Context, name string, attrs ...otelattr.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	if t != nil && t.tracer != nil {
		tracer = t.tracer
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (t *telemetry) event(ctx context.Context, eventType string, data map[string]any) {
	if t == nil || t.emit == nil {
		return
	}
	t.emit(ctx, eventType, data)
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
