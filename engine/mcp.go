package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the engine's tools on an MCP server, so an agent
// can inspect and manage fixes on the live session.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	e.registerListFixesTool(srv)
	e.registerToggleFixTool(srv)
	e.registerCloseFixTool(srv)
	e.registerDocumentTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// registerTool wires a typed endpoint as an MCP tool: decode arguments,
// run, marshal the response as text content. Tool errors become MCP errors
// rather than protocol failures.
func registerTool[Req any](srv *mcp.Server, tool *mcp.Tool, run func(ctx context.Context, req *Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, call *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var req Req
		if len(call.Params.Arguments) > 0 {
			if err := json.Unmarshal(call.Params.Arguments, &req); err != nil {
				var res mcp.CallToolResult
				res.SetError(errors.New("invalid arguments: " + err.Error()))
				return &res, nil
			}
		}

		resp, err := run(ctx, &req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func (e *Engine) registerListFixesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "checkra_list_fixes",
		Description: "List every applied fix with its original and fixed markup and current state.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, _ *struct{}) (any, error) {
		return map[string]any{"fixes": e.Patches()}, nil
	})
}

type fixIDRequest struct {
	ID string `json:"id"`
}

func (e *Engine) registerToggleFixTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "checkra_toggle_fix",
		Description: "Toggle a fix between its fixed and original content.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Fix ID"},
		}, []string{"id"}),
	}
	registerTool(srv, tool, func(ctx context.Context, req *fixIDRequest) (any, error) {
		if err := e.TogglePatch(req.ID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "toggled", "id": req.ID}, nil
	})
}

func (e *Engine) registerCloseFixTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "checkra_close_fix",
		Description: "Remove a fix, restoring the original content where it replaced anything.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Fix ID"},
		}, []string{"id"}),
	}
	registerTool(srv, tool, func(ctx context.Context, req *fixIDRequest) (any, error) {
		if err := e.ClosePatch(req.ID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "closed", "id": req.ID}, nil
	})
}

func (e *Engine) registerDocumentTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "checkra_document",
		Description: "Serialise the current live document, applied fixes and markers included.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, _ *struct{}) (any, error) {
		return map[string]string{"html": e.Document()}, nil
	})
}
