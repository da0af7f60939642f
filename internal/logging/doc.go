// Package logging assembles structured slog loggers and formatting helpers used
// across mediadiff.
//
// It owns the console/JSON handlers, level and output plumbing, and the
// context-aware helpers that tag log lines with job IDs, stages, worker slots
// and correlation IDs. NewNop provides a discard logger for tests and wiring
// code that cannot fail.
package logging
