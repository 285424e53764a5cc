// Package server exposes toolhost over MCP (streamable HTTP).
//
// Two groups of tools are registered on one MCP server:
//
//   - administrative tools (server_list, server_get, server_create,
//     server_update, server_enable, server_disable, server_start,
//     server_stop, server_restart, server_remove, server_logs,
//     server_stats, tool_calls), backed by the admin service;
//   - AI-layer tools (tool_execute, tool_servers), backed by the gateway.
//
// Tool results are JSON documents in a single text content. Failures are
// tool results flagged isError carrying the error message.
//
// Every tool accepts an optional ownerId argument. Authentication is not
// handled here; callers are trusted to pass their own owner id.
package server
