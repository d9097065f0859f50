// Package instrumentation provides OpenTelemetry instrumentation for newsdigest.
//
// # Metrics
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Gmail API calls by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of Gmail API call durations
//
// OAuth Authentication Metrics:
//   - oauth_auth_total: Counter of authentication outcomes (success, failure, cached)
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// Language Model Metrics:
//   - llm_completions_total: Counter of chat completions by model, kind, status
//   - llm_completion_duration_seconds: Histogram of chat completion durations
//   - llm_tokens_total: Counter of prompt and completion tokens reported by the API
//
// Digest Metrics:
//   - digest_articles_total: Counter of non-empty articles extracted
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Exporters
//
// Metrics go to a per-provider Prometheus registry by default. The serve
// command exposes it over HTTP; one-shot commands can dump it with
// Provider.WriteTextfile for the node exporter textfile collector. OTLP and
// stdout exporters are available for metrics and traces.
//
// # Configuration
//
// Configuration comes from environment variables:
//
//	INSTRUMENTATION_ENABLED=true
//	METRICS_EXPORTER=prometheus        # prometheus, otlp, stdout
//	TRACING_EXPORTER=none              # otlp, stdout, none
//	OTEL_EXPORTER_OTLP_ENDPOINT=localhost:4318
//	OTEL_TRACES_SAMPLER_ARG=0.1
//	METRICS_DETAILED_LABELS=false
//	AUDIT_LOGGING_ENABLED=true
package instrumentation
