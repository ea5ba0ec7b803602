// Package logging builds slog loggers for the CLI: a console handler for
// human-facing output and a JSON handler for machine consumption, with
// optional mirroring to a log file under the configured log directory.
package logging
