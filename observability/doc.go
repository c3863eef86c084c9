// Package observability provides an OpenTelemetry-based metrics
// extension. Register it to record system-wide counters for job
// submissions, completions, requeues, dead letters, and per-chunk
// outcomes.
//
// For per-execution tracing and latency, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
