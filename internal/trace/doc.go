// Package trace records what a build is doing while it runs.
//
// Events are emitted into a Tracer carried by the context. With tracing off
// the Nop tracer is used and every call is a cheap no-op.
//
// # Usage
//
//	mach build src/index.html --trace=- --trace-level=detail
//
// # Tracers
//
//   - Nop: discards everything
//   - StreamTracer: writes each event immediately (text or NDJSON)
//   - RingTracer: keeps the last N events, dumped when a build fails
//   - MultiTracer: fans out to several tracers
//
// # Scopes and levels
//
// Scopes go from coarse to fine: driver (CLI), stage (resolve, transform,
// bundle, package, emit), asset (one file inside a stage) and plugin (one
// resolver or transformer call). LevelPhase shows driver and stage events,
// LevelDetail adds assets, LevelDebug shows everything.
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeStage, "bundle", 0)
//	defer span.End("")
package trace
