package observe

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/agora/pkg/apperr"
)

// UnmatchedRoute labels requests that match no registered pattern, including
// CORS preflights and wrong-method calls.
const UnmatchedRoute = "unmatched"

// propagator reads and writes W3C trace context and baggage headers.
var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// Router resolves the pattern a request would be served by.
// [*http.ServeMux] implements it.
type Router interface {
	Handler(r *http.Request) (h http.Handler, pattern string)
}

// responseRecorder remembers the status and size of what the downstream
// handler wrote.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int
	header  bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.header {
		r.status, r.header = code, true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.header {
		r.status, r.header = http.StatusOK, true
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Unwrap exposes the wrapped writer to [http.ResponseController].
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware instruments API requests. Every request gets a server span that
// continues an incoming traceparent, an X-Correlation-ID response header, one
// agora.http.request.duration sample and a completion log line.
//
// Spans, samples and log lines are labelled with the route pattern routes
// resolves (for example "/chat") rather than the raw path, and with the
// apperr kind the API reported in the X-Error-Kind header. routes may be nil,
// in which case every request is labelled [UnmatchedRoute].
func Middleware(m *Metrics, routes Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeOf(routes, r)

			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(route),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()
			ctx = withRoute(ctx, route)

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set(CorrelationHeader, cid)
			}
			propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			elapsed := time.Since(start)
			errKind := rec.Header().Get(apperr.HeaderKind)

			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.status))
			if errKind != "" {
				span.SetAttributes(errorKindKey.String(errKind))
			}
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, statusDescription(rec.status, errKind))
			}

			m.RecordHTTPRequest(ctx, r.Method, route, rec.status, errKind, elapsed)

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.Int("status", rec.status),
				slog.Int("bytes", rec.written),
				slog.Duration("duration", elapsed),
			}
			if errKind != "" {
				attrs = append(attrs, slog.String("error_kind", errKind))
			}
			Logger(ctx).LogAttrs(ctx, level, "request completed", attrs...)
		})
	}
}

// routeOf returns the path part of the pattern routes would dispatch r to.
func routeOf(routes Router, r *http.Request) string {
	if routes == nil {
		return UnmatchedRoute
	}
	_, pattern := routes.Handler(r)
	if pattern == "" {
		return UnmatchedRoute
	}
	// "POST /chat" -> "/chat"
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

func statusDescription(status int, errKind string) string {
	if errKind != "" {
		return errKind
	}
	return http.StatusText(status)
}
