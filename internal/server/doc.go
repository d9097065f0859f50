// Package server holds the state shared by the MCP tools and the optional
// HTTP listener exposing metrics and health probes.
//
// ServerContext builds the Gmail and language model clients lazily, on the
// first tool call that needs them, and caches them per account. The
// MetricsServer serves the instrumentation provider's Prometheus registry
// on /metrics next to /healthz and /readyz.
package server
