// Package sinks implements progress consumers: structured logging,
// Prometheus collectors and a Redis stream. Each satisfies progress.Sink.
package sinks
