// Package logging assembles structured slog loggers and formatting helpers used
// across the episode processing pipeline.
//
// It owns the console and JSON handlers, routes output to stdout and an
// optional log file, and exposes context-aware helpers so stage code tags
// every line with the run identifier, stage, and asset being processed. A
// no-op logger is provided for tests and for wiring code that cannot fail.
package logging
