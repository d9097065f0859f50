// Package logging provides structured logging utilities for newsdigest.
//
// Everything logs through log/slog. Handlers always write to stderr because
// stdout carries command output and, in serve mode, the MCP stdio stream.
//
// # Usage Patterns
//
// Build the process logger once from configuration:
//
//	logger, err := logging.New(os.Stderr, "info", "text")
//
// Scope it per operation and attach consistent attributes:
//
//	log := logging.WithOperation(logger, "gmail.fetch")
//	log.Info("messages listed", logging.Count(len(ids)), logging.Query(q))
//
// Tokens and API keys are never logged directly; use SanitizeToken.
package logging
