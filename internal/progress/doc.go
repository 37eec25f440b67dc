// Package progress carries crawl lifecycle events from the orchestrator to
// pluggable sinks. The Hub buffers events on a channel, batches them on a
// background goroutine, and never blocks the emitter.
package progress
