// Package trace records what the simulator driver is doing.
//
// Tracing follows scripts through the driver and, at higher levels, every
// replayed op and borrow event. It is meant for diagnosing slow or stuck
// multi-script runs and for inspecting how a verdict was reached.
//
// # Usage
//
//	borrowsim run --trace=- --trace-level=detail scripts/*.toml
//
// # Architecture
//
//   - nopTracer: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to output (file/stderr)
//   - RingTracer: circular buffer, dumped on failure
//   - MultiTracer: combines several tracers
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: ring buffer only, dumped when a run fails
//   - LevelPhase: driver and per-script spans
//   - LevelDetail: replayed ops
//   - LevelDebug: every borrow event
//
// Events below a script span carry the script name and op position, so
// text output reads "moves@3 read (violation: ...)" and NDJSON output can be
// filtered by the "script" and "op" fields.
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx = trace.WithProgress(ctx, progress)
//
//	span := trace.BeginScript(trace.FromContext(ctx), "moves", runID)
//	span.Op(3, "read", "ok")
//	span.End("passed")
//	trace.ProgressFrom(ctx).Finish(true)
//
// A Heartbeat started with the same Progress reports how many scripts were
// replayed and marks beats where none finished as stalled.
package trace
