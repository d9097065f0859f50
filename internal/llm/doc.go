// Package llm asks a hosted chat completion model for a clustered topic
// list and a multi-paragraph digest of newsletter articles.
//
// Each operation builds a two-message prompt (a fixed assistant persona
// and one user message), makes a single non-streaming request with a
// bounded output length and returns the trimmed reply. There is no retry
// and no chunking of oversized input.
package llm
