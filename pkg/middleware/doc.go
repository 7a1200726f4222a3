// Package middleware provides observability wrappers for the HTTP transport
// used by the remote client.
//
// Every wrapper is a Middleware, a function from http.RoundTripper to
// http.RoundTripper, so they compose with Chain:
//
//	transport := middleware.Chain(http.DefaultTransport,
//	    middleware.OpenTelemetry(middleware.WithTracerName("agora")),
//	    middleware.Prometheus(middleware.WithNamespace("agora")),
//	)
//
// # OpenTelemetry
//
// OpenTelemetry starts a client span per request and injects the trace
// context into the outgoing headers. Spans are named after the remote
// operation when the request context carries one (see WithOperation).
//
// # Prometheus
//
// Prometheus records:
//   - agora_remote_requests_total: requests by operation, method and status class
//   - agora_remote_request_duration_seconds: round-trip latency by operation
//   - agora_remote_request_errors_total: transport errors by operation and type
package middleware
