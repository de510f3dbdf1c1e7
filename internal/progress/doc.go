// Package progress provides the event primitives, non-blocking hub and emitter
// interface that the dispatcher and handlers use to report what happened to each
// link. The hub batches events on a background goroutine and fans them out to
// sinks such as the zap log sink or Prometheus counters.
package progress
