// Package preflight checks that a scan can run before any archive is opened.
//
// The checks cover:
//   - the scan root (exists, is a readable directory)
//   - the pattern set (every definition compiles)
//   - the temp directory (writable, room for one materialized database)
//   - the report directory (writable)
//   - the open file limit (workers hold an archive and a database each)
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Target{Root: "/cases/2024-117"})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
