package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func stubTransport(status int, err error) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if err != nil {
			return nil, err
		}
		return &http.Response{
			StatusCode: status,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader("{}")),
			Request:    req,
		}, nil
	})
}

func newRequest(t *testing.T, ctx context.Context, method string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, method, "http://example.test/posts/1/likes", nil)
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}
	return req
}

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(req)
			})
		}
	}

	rt := Chain(stubTransport(200, nil), tag("outer"), nil, tag("inner"))
	resp, err := rt.RoundTrip(newRequest(t, context.Background(), http.MethodGet))
	if err != nil {
		t.Fatalf("RoundTrip() error: %v", err)
	}
	resp.Body.Close()

	if strings.Join(order, ",") != "outer,inner" {
		t.Errorf("order = %v, want [outer inner]", order)
	}
}

func TestOperationContext(t *testing.T) {
	ctx := WithOperation(context.Background(), "like")
	if got := Operation(ctx); got != "like" {
		t.Errorf("Operation() = %q, want like", got)
	}
	if got := Operation(context.Background()); got != "" {
		t.Errorf("Operation() = %q, want empty", got)
	}
}

func TestPrometheusRecordsStatusAndErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg))
	ctx := WithOperation(context.Background(), "like")

	tests := []struct {
		name      string
		transport http.RoundTripper
		status    string
	}{
		{"ok", stubTransport(200, nil), "2xx"},
		{"unauthorized", stubTransport(401, nil), "401"},
		{"server error", stubTransport(503, nil), "5xx"},
		{"transport error", stubTransport(0, context.DeadlineExceeded), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := Chain(tt.transport, m.Middleware())
			resp, _ := rt.RoundTrip(newRequest(t, ctx, http.MethodPost))
			if resp != nil {
				resp.Body.Close()
			}
			if got := metricCounterValue(t, m.requestsTotal.WithLabelValues("like", "POST", tt.status)); got != 1 {
				t.Errorf("requests_total{status=%s} = %v, want 1", tt.status, got)
			}
		})
	}

	if got := metricCounterValue(t, m.requestErrors.WithLabelValues("like", "timeout")); got != 1 {
		t.Errorf("request_errors_total{timeout} = %v, want 1", got)
	}
	if got := metricHistogramCount(t, m.requestDuration.WithLabelValues("like")); got != 4 {
		t.Errorf("request_duration_seconds count = %d, want 4", got)
	}
}

func TestNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewMetrics(WithRegistry(reg))
	b := NewMetrics(WithRegistry(reg))
	if a.requestsTotal != b.requestsTotal {
		t.Error("second NewMetrics on the same registry should reuse collectors")
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.Canceled, "canceled"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("dial tcp: connection refused"), "connection_refused"},
		{errors.New("rate limit exceeded"), "rate_limit"},
		{errors.New("eof"), "network"},
	}
	for _, tt := range tests {
		if got := categorizeError(tt.err); got != tt.want {
			t.Errorf("categorizeError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestOpenTelemetryInjectsTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), parent)
	ctx = WithOperation(ctx, "editPost")

	var got *http.Request
	capture := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		got = req
		return stubTransport(200, nil).RoundTrip(req)
	})

	var extracted bool
	rt := Chain(capture, OpenTelemetry(
		WithPropagator(propagation.TraceContext{}),
		WithAttributeExtractor(func(*http.Request) []attribute.KeyValue {
			extracted = true
			return nil
		}),
	))
	resp, err := rt.RoundTrip(newRequest(t, ctx, http.MethodPatch))
	if err != nil {
		t.Fatalf("RoundTrip() error: %v", err)
	}
	resp.Body.Close()

	if got == nil {
		t.Fatal("transport was not called")
	}
	if tp := got.Header.Get("traceparent"); !strings.Contains(tp, "4bf92f3577b34da6a3ce929d0e0e4736") {
		t.Errorf("traceparent = %q, want parent trace id", tp)
	}
	if !extracted {
		t.Error("attribute extractor was not called")
	}
}

func TestOpenTelemetryFilterAndErrors(t *testing.T) {
	boom := errors.New("boom")
	var called bool
	rt := Chain(stubTransport(0, boom), OpenTelemetry(
		WithRequestFilter(func(*http.Request) bool {
			called = true
			return false
		}),
	))
	_, err := rt.RoundTrip(newRequest(t, context.Background(), http.MethodGet))
	if !errors.Is(err, boom) {
		t.Errorf("RoundTrip() error = %v, want boom", err)
	}
	if !called {
		t.Error("filter was not consulted")
	}

	rt = Chain(stubTransport(0, boom), OpenTelemetry())
	if _, err := rt.RoundTrip(newRequest(t, context.Background(), http.MethodGet)); !errors.Is(err, boom) {
		t.Errorf("traced RoundTrip() error = %v, want boom", err)
	}
}
