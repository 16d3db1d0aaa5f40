// Package transport provides the net/http middleware chain shared by every
// dbgate route: panic recovery, request ID assignment (X-Request-ID), and
// structured access logging via log/slog.
//
// Middleware are plain func(http.Handler) http.Handler values so they
// compose with tenant resolution, authorization and metrics middleware
// from other packages.
package transport
