// Package logging builds the slog logger used for console output. This is
// operational logging only; the durable pipe-delimited audit trail lives in
// package runlog.
package logging
