// Package cmd implements the command-line interface for newsdigest.
//
// This package provides the following commands:
//   - fetch: Print the decoded bodies of recent newsletter emails
//   - digest: Extract articles and print a topic list and summary
//   - auth google: Authorize Gmail access and store the token
//   - auth openai: Store the OpenAI API key in the OS keyring
//   - serve: Start the MCP server to provide tools for AI assistants
//   - version: Display version information
//
// The fetch command is the default command when no subcommand is specified.
package cmd
