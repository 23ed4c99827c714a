// Package metrics defines the sinks recording planning results, executed
// actions, verification checks and load watcher passes. PromSink and
// InfluxSink live in infra/metrics and can be combined with NewMultiSink.
package metrics
