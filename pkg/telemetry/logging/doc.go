// Package logging constructs the process-wide structured logger. It wraps
// log/slog with level and format parsing from configuration and an optional
// redaction handler that masks protected health information before log
// records reach the writer.
package logging
