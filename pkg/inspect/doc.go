// Package inspect records and serves what a runtime is doing.
//
// A Recorder is installed as flush hooks and keeps the most recent flushes
// in a ring buffer:
//
//	rec := inspect.NewRecorder(256)
//	rt := observ.NewRuntime(observ.WithHooks(rec))
//
// A Server exposes the recorder and the runtime's subscription graph over
// HTTP, with a WebSocket stream of flushes as they finish:
//
//	GET /graph         subscriptions per node and path
//	GET /stats         runtime counters
//	GET /flushes       recorded flushes, newest last
//	GET /flushes.jsonl the same as JSON lines
//	GET /metrics       Prometheus metrics
//	GET /events        WebSocket stream of flush records
//
// An S3Archive uploads recorded traces for later analysis. Traces hold
// flush statistics only, never node values.
package inspect
