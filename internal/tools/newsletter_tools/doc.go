// Package newsletter_tools exposes the newsletter pipeline as MCP tools.
//
// Available tools:
//   - newsletter_fetch: Decoded bodies of the matching newsletter emails
//   - newsletter_articles: Extracted articles as JSON
//   - newsletter_topics: Markdown bullet list of clustered topics
//   - newsletter_summary: Multi-paragraph markdown digest
//
// Every tool accepts optional account, query, days and allPages arguments
// selecting the emails. Failures are reported as tool errors.
package newsletter_tools
