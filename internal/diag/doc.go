// Package diag defines the non-fatal diagnostics a build accumulates.
//
// # Purpose
//
// Fatal conditions are plain Go errors (see package failure) and stop the
// build. Everything else that a user may want to know about, such as an
// imported binding that is never used or a glob that matched nothing, is a
// Diagnostic collected into a Bag and returned alongside the build result.
//
// # Model
//
//   - Severity is Info or Warning; anything worse is an error.
//   - Code is a stable numeric identifier with a short title.
//   - Location names the file (project-relative when known) and an optional
//     byte range inside it.
//
// Phases report through the Reporter interface so that they never depend on
// how diagnostics are stored. BagReporter is the usual adapter.
//
// # Concurrency
//
// A Bag is safe for concurrent use; graph building reports from many
// workers at once. Sort and Dedup make the final listing independent of the
// order workers happened to run in.
package diag
