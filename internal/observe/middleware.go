package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// Routes of the status server.
const (
	RouteHealthz = "/healthz"
	RouteReadyz  = "/readyz"
	RouteMetrics = "/metrics"

	// RouteOther labels every path the server does not serve.
	RouteOther = "other"
)

// Route returns the route label for a request path. Unknown paths share
// [RouteOther] so that stray requests do not add metric series.
func Route(path string) string {
	switch path {
	case RouteHealthz, RouteReadyz, RouteMetrics:
		return path
	default:
		return RouteOther
	}
}

// statusWriter captures the status code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Middleware instruments the status server. Every request is timed by route.
// Health requests additionally run in a server span that continues an
// incoming W3C trace context, carry its trace ID in X-Correlation-ID, and are
// logged: at debug level when they succeed, at warn level when a readiness
// check fails. Metrics scrapes are neither traced nor logged.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := Route(r.URL.Path)
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			if route == RouteMetrics {
				next.ServeHTTP(sw, r)
				m.RecordHTTPRequest(r.Context(), r.Method, route, sw.status, time.Since(start).Seconds())
				return
			}

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(route),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			next.ServeHTTP(sw, r.WithContext(ctx))

			elapsed := time.Since(start)
			m.RecordHTTPRequest(ctx, r.Method, route, sw.status, elapsed.Seconds())
			span.SetAttributes(semconv.HTTPResponseStatusCode(sw.status))

			level := slog.LevelDebug
			if sw.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			Logger(ctx).LogAttrs(ctx, level, "status request",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", sw.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
