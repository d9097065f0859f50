// Package resources provides read-only MCP resources describing how the
// server is configured: the effective settings, with secrets redacted, and
// the prompt instructions sent to the language model.
package resources
