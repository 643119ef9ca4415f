package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/agora/pkg/apperr"
)

// tracerName is the instrumentation scope of every Agora span.
const tracerName = "github.com/MrWong99/agora"

// CorrelationHeader carries the request's trace ID back to the client so a
// failed study-app call can be matched to the server log lines.
const CorrelationHeader = "X-Correlation-ID"

// errorKindKey is the span and metric attribute holding an [apperr.Kind].
const errorKindKey = attribute.Key("agora.error_kind")

// Tracer returns the Agora tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span under the Agora tracer. The caller must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID of the span in ctx, or "" when there is
// none.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

type routeKey struct{}

func withRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, routeKey{}, route)
}

// Route returns the API route pattern [Middleware] matched for the request
// that ctx belongs to, such as "/generate-quiz". It is "" outside a request.
func Route(ctx context.Context) string {
	r, _ := ctx.Value(routeKey{}).(string)
	return r
}

// Logger returns the default logger annotated with the request's trace and
// span IDs and its route, when ctx carries them.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if route := Route(ctx); route != "" {
		attrs = append(attrs, slog.String("route", route))
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}

// RecordError attaches err to the span in ctx, tagged with its apperr kind.
// Errors that reach clients as a 5xx also mark the span as failed; upstream
// 429 and 402 are recorded but leave the status unset.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err == nil || !span.IsRecording() {
		return
	}
	kind := apperr.KindOf(err)
	span.RecordError(err, trace.WithAttributes(errorKindKey.String(kind.String())))
	if apperr.HTTPStatus(err) >= 500 {
		span.SetStatus(codes.Error, kind.String())
	}
}
