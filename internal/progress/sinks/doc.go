// Package sinks implements concrete progress consumers: structured logs,
// Prometheus collectors, the outcome ledger, and Pub/Sub completion
// notifications. Each sink satisfies progress.Sink.
package sinks
