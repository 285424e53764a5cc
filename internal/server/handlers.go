package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"toolhost/internal/admin"
	"toolhost/internal/api"
)

const defaultToolCallsLimit = 50

func (s *Server) handleServerList(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	enabledOnly, _ := args["enabledOnly"].(bool)
	views, err := s.admin.List(ctx, ownerOf(args), enabledOnly)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(views)
}

func (s *Server) handleServerGet(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	id, res := requireString(args, "id")
	if res != nil {
		return res, nil
	}
	view, err := s.admin.Get(ctx, ownerOf(args), id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(view)
}

func (s *Server) handleServerCreate(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	name, res := requireString(args, "name")
	if res != nil {
		return res, nil
	}
	command, res := requireString(args, "command")
	if res != nil {
		return res, nil
	}
	req := admin.CreateRequest{Name: name, Command: command}
	req.Description, _ = args["description"].(string)
	var err error
	if req.Args, err = stringSlice(args, "args"); err != nil {
		return errorResult(err), nil
	}
	if req.Env, err = stringMap(args, "env"); err != nil {
		return errorResult(err), nil
	}
	if v, ok := args["enabled"].(bool); ok {
		req.Enabled = &v
	}

	def, err := s.admin.Create(ctx, ownerOf(args), req)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(def)
}

func (s *Server) handleServerUpdate(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	id, res := requireString(args, "id")
	if res != nil {
		return res, nil
	}
	var req admin.UpdateRequest
	if v, ok := args["name"].(string); ok {
		req.Name = &v
	}
	if v, ok := args["description"].(string); ok {
		req.Description = &v
	}
	if v, ok := args["command"].(string); ok {
		req.Command = &v
	}
	if _, ok := args["args"]; ok {
		v, err := stringSlice(args, "args")
		if err != nil {
			return errorResult(err), nil
		}
		req.Args = &v
	}
	if _, ok := args["env"]; ok {
		v, err := stringMap(args, "env")
		if err != nil {
			return errorResult(err), nil
		}
		req.Env = &v
	}
	if v, ok := args["enabled"].(bool); ok {
		req.Enabled = &v
	}

	def, err := s.admin.Update(ctx, ownerOf(args), id, req)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(def)
}

func (s *Server) handleServerEnable(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return s.definitionOp(ctx, args, s.admin.Enable)
}

func (s *Server) handleServerDisable(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return s.definitionOp(ctx, args, s.admin.Disable)
}

func (s *Server) definitionOp(ctx context.Context, args map[string]interface{}, op func(context.Context, string, string) (api.ServerDefinition, error)) (*mcp.CallToolResult, error) {
	id, res := requireString(args, "id")
	if res != nil {
		return res, nil
	}
	def, err := op(ctx, ownerOf(args), id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(def)
}

func (s *Server) handleServerStart(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return s.lifecycleOp(ctx, args, "started", s.admin.Start)
}

func (s *Server) handleServerStop(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return s.lifecycleOp(ctx, args, "stopped", s.admin.Stop)
}

func (s *Server) handleServerRestart(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return s.lifecycleOp(ctx, args, "restarted", s.admin.Restart)
}

func (s *Server) handleServerRemove(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return s.lifecycleOp(ctx, args, "removed", s.admin.Remove)
}

func (s *Server) lifecycleOp(ctx context.Context, args map[string]interface{}, verb string, op func(context.Context, string, string) error) (*mcp.CallToolResult, error) {
	id, res := requireString(args, "id")
	if res != nil {
		return res, nil
	}
	if err := op(ctx, ownerOf(args), id); err != nil {
		return errorResult(err), nil
	}
	return textResult(fmt.Sprintf("Server %s %s", id, verb)), nil
}

func (s *Server) handleServerLogs(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	id, res := requireString(args, "id")
	if res != nil {
		return res, nil
	}
	lines, err := s.admin.Logs(ctx, ownerOf(args), id, intArg(args, "lines"))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(lines)
}

func (s *Server) handleServerStats(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	id, res := requireString(args, "id")
	if res != nil {
		return res, nil
	}
	stats, err := s.admin.Stats(ctx, ownerOf(args), id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(stats)
}

func (s *Server) handleToolCalls(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	query := api.ToolCallQuery{Limit: intArg(args, "limit")}
	if query.Limit <= 0 {
		query.Limit = defaultToolCallsLimit
	}
	query.ServerID, _ = args["serverId"].(string)
	query.ToolName, _ = args["toolName"].(string)
	if since, _ := args["since"].(string); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return errorResult(fmt.Errorf("invalid since %q: %w", since, err)), nil
		}
		query.Since = t
	}

	records, err := s.admin.ToolCalls(ctx, ownerOf(args), query)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(records)
}

func (s *Server) handleToolExecute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	serverID, res := requireString(args, "serverId")
	if res != nil {
		return res, nil
	}
	toolName, res := requireString(args, "toolName")
	if res != nil {
		return res, nil
	}
	params, ok := args["parameters"].(map[string]interface{})
	if !ok && args["parameters"] != nil {
		return errorResult(fmt.Errorf("parameters must be an object")), nil
	}
	if owner := ownerOf(args); owner != "" {
		if err := s.admin.Authorize(ctx, owner, serverID); err != nil {
			return errorResult(err), nil
		}
	}

	result, err := s.gateway.ExecuteTool(ctx, serverID, toolName, params)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleToolServers(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	servers, err := s.gateway.ListServers(ctx, ownerOf(args))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(servers)
}

func ownerOf(args map[string]interface{}) string {
	owner, _ := args["ownerId"].(string)
	return owner
}

// requireString returns the named argument, or an error result when it is
// missing or empty.
func requireString(args map[string]interface{}, name string) (string, *mcp.CallToolResult) {
	v, _ := args[name].(string)
	if v == "" {
		return "", mcp.NewToolResultError(fmt.Sprintf("%s is required", name))
	}
	return v, nil
}

// intArg reads a JSON number; absent or malformed values read as 0.
func intArg(args map[string]interface{}, name string) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

func stringSlice(args map[string]interface{}, name string) ([]string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", name, i)
			}
			out = append(out, str)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s must be an array of strings", name)
}

func stringMap(args map[string]interface{}, name string) (map[string]string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for key, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s.%s must be a string", name, key)
			}
			out[key] = str
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s must be an object of strings", name)
}

func textResult(text string) *mcp.CallToolResult {
	return mcp.NewToolResultText(text)
}

func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return textResult(string(data)), nil
}
