package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

type toolHandler func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)

type toolDef struct {
	tool    mcp.Tool
	handler toolHandler
}

func ownerArg() mcp.ToolOption {
	return mcp.WithString("ownerId", mcp.Description("Owner to act as; empty acts for every owner"))
}

func idArg() mcp.ToolOption {
	return mcp.WithString("id", mcp.Required(), mcp.Description("Server id"))
}

func (s *Server) tools() []toolDef {
	return []toolDef{
		{
			tool: mcp.NewTool("server_list",
				mcp.WithDescription("List server definitions with their runtime state"),
				ownerArg(),
				mcp.WithBoolean("enabledOnly", mcp.Description("Only list enabled servers")),
			),
			handler: s.handleServerList,
		},
		{
			tool:    mcp.NewTool("server_get", mcp.WithDescription("Show one server definition"), idArg(), ownerArg()),
			handler: s.handleServerGet,
		},
		{
			tool: mcp.NewTool("server_create",
				mcp.WithDescription("Register a new tool-provider server; the command must resolve on this host"),
				mcp.WithString("name", mcp.Required(), mcp.Description("Server name")),
				mcp.WithString("description", mcp.Description("What the server provides")),
				mcp.WithString("command", mcp.Required(), mcp.Description("Executable name or path")),
				mcp.WithArray("args", mcp.WithStringItems(), mcp.Description("Arguments, may use templates")),
				mcp.WithObject("env", mcp.Description("Environment overrides, may use templates")),
				mcp.WithBoolean("enabled", mcp.Description("Whether the server may be started (default true)")),
				ownerArg(),
			),
			handler: s.handleServerCreate,
		},
		{
			tool: mcp.NewTool("server_update",
				mcp.WithDescription("Change a server definition; a running server is restarted when its launch configuration changes"),
				idArg(),
				mcp.WithString("name", mcp.Description("Server name")),
				mcp.WithString("description", mcp.Description("What the server provides")),
				mcp.WithString("command", mcp.Description("Executable name or path")),
				mcp.WithArray("args", mcp.WithStringItems(), mcp.Description("Arguments, may use templates")),
				mcp.WithObject("env", mcp.Description("Environment overrides, may use templates")),
				mcp.WithBoolean("enabled", mcp.Description("Whether the server may be started")),
				ownerArg(),
			),
			handler: s.handleServerUpdate,
		},
		{
			tool:    mcp.NewTool("server_enable", mcp.WithDescription("Allow a server to be started"), idArg(), ownerArg()),
			handler: s.handleServerEnable,
		},
		{
			tool:    mcp.NewTool("server_disable", mcp.WithDescription("Stop a server and prevent it from starting"), idArg(), ownerArg()),
			handler: s.handleServerDisable,
		},
		{
			tool:    mcp.NewTool("server_start", mcp.WithDescription("Start a server and wait until it is ready"), idArg(), ownerArg()),
			handler: s.handleServerStart,
		},
		{
			tool:    mcp.NewTool("server_stop", mcp.WithDescription("Stop a running server"), idArg(), ownerArg()),
			handler: s.handleServerStop,
		},
		{
			tool:    mcp.NewTool("server_restart", mcp.WithDescription("Stop and start a server"), idArg(), ownerArg()),
			handler: s.handleServerRestart,
		},
		{
			tool:    mcp.NewTool("server_remove", mcp.WithDescription("Stop a server and delete its definition"), idArg(), ownerArg()),
			handler: s.handleServerRemove,
		},
		{
			tool: mcp.NewTool("server_logs",
				mcp.WithDescription("Show the most recent stderr output of a server"),
				idArg(),
				mcp.WithNumber("lines", mcp.Description("Number of lines (default all retained)")),
				ownerArg(),
			),
			handler: s.handleServerLogs,
		},
		{
			tool:    mcp.NewTool("server_stats", mcp.WithDescription("Aggregate the tool calls of a server"), idArg(), ownerArg()),
			handler: s.handleServerStats,
		},
		{
			tool: mcp.NewTool("tool_calls",
				mcp.WithDescription("Query the tool call audit log, newest first"),
				mcp.WithString("serverId", mcp.Description("Only calls to this server")),
				mcp.WithString("toolName", mcp.Description("Only calls of this tool")),
				mcp.WithString("since", mcp.Description("Only calls at or after this RFC 3339 time")),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 50)")),
				ownerArg(),
			),
			handler: s.handleToolCalls,
		},
		{
			tool: mcp.NewTool("tool_execute",
				mcp.WithDescription("Call a tool on a running server"),
				mcp.WithString("serverId", mcp.Required(), mcp.Description("Server id")),
				mcp.WithString("toolName", mcp.Required(), mcp.Description("Tool to call")),
				mcp.WithObject("parameters", mcp.Description("Tool arguments")),
				ownerArg(),
			),
			handler: s.handleToolExecute,
		},
		{
			tool: mcp.NewTool("tool_servers",
				mcp.WithDescription("List the running, healthy servers of an owner and the tools they offer"),
				ownerArg(),
			),
			handler: s.handleToolServers,
		},
	}
}
