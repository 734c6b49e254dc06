// Package mcp exposes message extraction as MCP tools over stdio.
//
// Tools:
//   - messages_extract: apply a page snapshot and return the new messages
//   - collector_status: report pipeline counters and open sessions
package mcp
