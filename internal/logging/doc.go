// Package logging provides structured logging for mcpc built on log/slog.
//
// The package offers a colorized text handler for terminal output, a JSON
// handler for log files and machine consumption, verbosity-to-level mapping
// for the -v flag, and a test logger that routes output through testing.T.
package logging
