// Package logging assembles the structured slog loggers used across draftdrop.
//
// It owns the console and JSON handlers, fans records out to the terminal and
// the daemon log file, and exposes context-aware helpers so pipeline code can
// tag log lines with item IDs, stages, and correlation IDs. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
