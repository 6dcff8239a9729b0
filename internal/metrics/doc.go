// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Store operation counts and latencies by table and outcome
//   - Batch chunk outcomes and committed record counts
//   - Change events delivered to subscription handles
//   - Ingestion throughput and producer failures
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics
