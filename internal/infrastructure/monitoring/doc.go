// Package monitoring provides Prometheus metrics for the probe engine.
//
// Metrics cover the full cycle lifecycle: cycles by outcome, trace events
// by kind, correlation records written, protocol violations, persistence
// failures, and cycle duration. The ops server exposes them on /metrics.
package monitoring
