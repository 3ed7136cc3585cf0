// Package logging assembles structured slog loggers and formatting helpers used
// by the manager, the downloader and the CLI.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and defines the field names (session_id, job_id, worker_id) that
// let a single job be followed across both processes. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
