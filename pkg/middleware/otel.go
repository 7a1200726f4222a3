package middleware

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for agora clients.
const defaultTracerName = "agora"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "agora").
	TracerName string

	// TracerProvider overrides the global tracer provider.
	TracerProvider trace.TracerProvider

	// Propagator injects trace context into outgoing headers.
	// Default: otel.GetTextMapPropagator()
	Propagator propagation.TextMapPropagator

	// Filter determines which requests to trace.
	// If nil, all requests are traced.
	Filter func(req *http.Request) bool

	// AttributeExtractor extracts custom attributes from the request.
	AttributeExtractor func(req *http.Request) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithPropagator sets the propagator used for outgoing headers.
func WithPropagator(p propagation.TextMapPropagator) OTelOption {
	return func(c *OTelConfig) {
		c.Propagator = p
	}
}

// WithRequestFilter sets a filter function for requests.
func WithRequestFilter(filter func(req *http.Request) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(req *http.Request) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// OpenTelemetry creates middleware that traces every remote request.
//
// The middleware:
//   - Creates a client span per request with method, URL and operation
//   - Injects the trace context into the request headers
//   - Records transport errors and error statuses on the span
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracerProvider is given.
func OpenTelemetry(opts ...OTelOption) Middleware {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(config.TracerName)

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if config.Filter != nil && !config.Filter(req) {
				return next.RoundTrip(req)
			}

			op := Operation(req.Context())
			attrs := []attribute.KeyValue{
				attribute.String("http.method", req.Method),
				attribute.String("http.url", req.URL.String()),
			}
			if op != "" {
				attrs = append(attrs, attribute.String("agora.operation", op))
			}
			if id := req.Header.Get("X-Request-ID"); id != "" {
				attrs = append(attrs, attribute.String("agora.request_id", id))
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(req)...)
			}

			ctx, span := tracer.Start(req.Context(), spanName(req, op),
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			req = req.Clone(ctx)
			propagator := config.Propagator
			if propagator == nil {
				propagator = otel.GetTextMapPropagator()
			}
			propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

			resp, err := next.RoundTrip(req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return resp, err
			}

			span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
			if resp.StatusCode >= 400 {
				span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return resp, nil
		})
	}
}

func spanName(req *http.Request, op string) string {
	if op != "" {
		return fmt.Sprintf("agora.%s", op)
	}
	return fmt.Sprintf("HTTP %s", req.Method)
}
