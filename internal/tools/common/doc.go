// Package common provides helpers shared by the MCP tool packages:
// argument parsing and the instrumented handler wrapper.
package common
