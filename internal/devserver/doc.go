// Package devserver is an in-memory backend for local development and
// integration tests. It serves every endpoint the remote client calls,
// with either envelope shape, cookie sessions, the anonymous 401 or
// login-redirect behaviour, a websocket change-event hub at /events and
// Prometheus metrics at /metrics.
//
//	srv := devserver.New(devserver.Options{Seed: true})
//	err := srv.ListenAndServe(ctx, "localhost:8787", nil)
package devserver
