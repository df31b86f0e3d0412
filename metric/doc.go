// Package metric provides Prometheus metrics for the simulation mirror.
//
// A MetricsRegistry wraps a private prometheus.Registry (never the global
// default) so tests and multiple clients in one process stay isolated. It
// carries a fixed set of core metrics (stream bytes/frames/drops per channel,
// reconcile batches, log ring size, command outcomes, published events) and
// lets components register their own collectors under a service name:
//
//	registry := metric.NewMetricsRegistry()
//	registry.CoreMetrics().RecordFrames("snapshot", len(payloads))
//
//	err := registry.RegisterCounter("logring", "buffer_writes", counter)
//
// Registering the same service/metric pair twice returns an invalid-class
// error. Server exposes the registry at /metrics (OpenMetrics enabled) and a
// pluggable /health endpoint.
package metric
