// Package observability provides structured logging and metrics for the
// gateway.
//
// This package implements:
//   - A zap logger factory configured from LOG_LEVEL and LOG_FORMAT
//   - Prometheus counters and histograms for dispatch attempts and fallbacks
//
// Metrics implements dispatch.Recorder so the dispatcher reports every
// attempt without importing prometheus itself.
package observability
