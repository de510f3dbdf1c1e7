// Package sinks implements concrete progress consumers: structured zap logging
// and Prometheus counters. Each sink satisfies progress.Sink.
package sinks
