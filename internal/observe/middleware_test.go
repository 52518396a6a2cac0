package observe_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/voxwriter/internal/health"
	"github.com/MrWong99/voxwriter/internal/observe"
	audiomock "github.com/MrWong99/voxwriter/pkg/audio/mock"
)

const incomingTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

type statusServer struct {
	handler http.Handler
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
	logs    *bytes.Buffer
}

// newStatusServer wires the voxwriter status routes the way main does: the
// health handler with a capture check that fails, and the telemetry
// registry on /metrics, all behind Middleware.
func newStatusServer(t *testing.T) *statusServer {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	prevTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prevTP) })

	var logs bytes.Buffer
	prevLog := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prevLog) })

	tel, err := observe.Init(context.Background(), observe.ProviderConfig{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	mux := http.NewServeMux()
	health.New([]health.Checker{health.Capture(&audiomock.Device{})},
		health.WithState(func() string { return "idle" }),
	).Register(mux)
	mux.Handle("GET "+observe.RouteMetrics, tel.Handler())

	return &statusServer{
		handler: observe.Middleware(m)(mux),
		reader:  reader,
		spans:   exp,
		logs:    &logs,
	}
}

func (s *statusServer) get(path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// requestPoints returns the request duration data points keyed by route.
func (s *statusServer) requestPoints(t *testing.T) map[string]metricdata.HistogramDataPoint[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := s.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.HistogramDataPoint[float64])
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "voxwriter.http.request.duration" {
				continue
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("request duration is %T, want histogram", met.Data)
			}
			for _, dp := range hist.DataPoints {
				route, _ := dp.Attributes.Value("route")
				out[route.AsString()] = dp
			}
		}
	}
	return out
}

func TestRoute(t *testing.T) {
	tests := []struct{ path, want string }{
		{"/healthz", observe.RouteHealthz},
		{"/readyz", observe.RouteReadyz},
		{"/metrics", observe.RouteMetrics},
		{"/", observe.RouteOther},
		{"/readyz/extra", observe.RouteOther},
		{"/debug/pprof", observe.RouteOther},
	}
	for _, tt := range tests {
		if got := observe.Route(tt.path); got != tt.want {
			t.Errorf("Route(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestMiddleware_HealthzContinuesIncomingTrace(t *testing.T) {
	s := newStatusServer(t)
	h := http.Header{}
	h.Set("traceparent", "00-"+incomingTraceID+"-00f067aa0ba902b7-01")

	rec := s.get("/healthz", h)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != incomingTraceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, incomingTraceID)
	}

	spans := s.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /healthz" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if got := spans[0].SpanContext.TraceID().String(); got != incomingTraceID {
		t.Errorf("span trace id = %q, want %q", got, incomingTraceID)
	}
	if strings.Contains(s.logs.String(), "status request") {
		t.Errorf("successful health request logged above debug: %s", s.logs.String())
	}
}

func TestMiddleware_FailedReadinessLoggedAtWarn(t *testing.T) {
	s := newStatusServer(t)

	rec := s.get("/readyz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no input device") {
		t.Errorf("body = %s, want the capture failure", rec.Body.String())
	}

	logged := s.logs.String()
	for _, want := range []string{"level=WARN", "status request", "route=/readyz", "status=503", "trace_id="} {
		if !strings.Contains(logged, want) {
			t.Errorf("log missing %q: %s", want, logged)
		}
	}

	spans := s.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 503 {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code=503")
	}

	dp, ok := s.requestPoints(t)[observe.RouteReadyz]
	if !ok {
		t.Fatal("no request duration recorded for /readyz")
	}
	if v, _ := dp.Attributes.Value("status"); v.AsInt64() != 503 {
		t.Errorf("status attribute = %d, want 503", v.AsInt64())
	}
}

func TestMiddleware_MetricsScrapeNotTraced(t *testing.T) {
	s := newStatusServer(t)

	rec := s.get("/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("scrape is missing the Go runtime collector")
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != "" {
		t.Errorf("X-Correlation-ID = %q on a scrape", got)
	}
	if n := len(s.spans.GetSpans()); n != 0 {
		t.Errorf("scrape produced %d spans, want 0", n)
	}
	if s.logs.Len() != 0 {
		t.Errorf("scrape was logged: %s", s.logs.String())
	}

	dp, ok := s.requestPoints(t)[observe.RouteMetrics]
	if !ok || dp.Count != 1 {
		t.Errorf("metrics route points = %+v, want one sample", dp)
	}
}

func TestMiddleware_UnknownPathsShareRoute(t *testing.T) {
	s := newStatusServer(t)

	for _, path := range []string{"/", "/admin", "/readyz/extra"} {
		if rec := s.get(path, nil); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
		}
	}

	points := s.requestPoints(t)
	if len(points) != 1 {
		t.Errorf("routes recorded = %d, want 1", len(points))
	}
	if dp := points[observe.RouteOther]; dp.Count != 3 {
		t.Errorf("other count = %d, want 3", dp.Count)
	}
	for _, sp := range s.spans.GetSpans() {
		if sp.Name != "HTTP GET other" {
			t.Errorf("span name = %q, want %q", sp.Name, "HTTP GET other")
		}
	}
}
