package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/voxpilot/wire"
)

// RegisterMCP registers the assistant's tools on an MCP server so an
// agent can drive the session alongside the voice path.
func (d *Dispatcher) RegisterMCP(srv *mcp.Server) {
	d.registerStatusTool(srv)
	d.registerAnalyzeTool(srv)
	d.registerActionTool(srv)
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

// addTool registers a tool whose endpoint result is marshalled into a
// single text content block; endpoint errors become tool errors.
func addTool(srv *mcp.Server, tool *mcp.Tool, endpoint func(ctx context.Context, req *mcp.CallToolRequest) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := endpoint(ctx, req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func (d *Dispatcher) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "voxpilot_status",
		Description: "Report the assistant's current state: URL, dispatcher mode, activation and conversation flags.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(ctx context.Context, req *mcp.CallToolRequest) (any, error) {
		return d.Info(), nil
	})
}

func (d *Dispatcher) registerAnalyzeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "voxpilot_analyze_page",
		Description: "Send the current page to the backend for analysis. Fails if a request is already in flight or the page was already analyzed.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(ctx context.Context, req *mcp.CallToolRequest) (any, error) {
		if err := d.Analyze(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"status": "requested"}, nil
	})
}

type actionRequest struct {
	ActionType  string            `json:"action_type"`
	Target      string            `json:"target,omitempty"`
	Value       string            `json:"value,omitempty"`
	ElementType string            `json:"element_type,omitempty"`
	Attributes  map[string]string `json:"element_attributes,omitempty"`
}

func (d *Dispatcher) registerActionTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "voxpilot_execute_action",
		Description: "Execute one page action: click, input, scroll or navigate against a described element.",
		InputSchema: inputSchema(map[string]any{
			"action_type":  map[string]any{"type": "string", "enum": []any{"click", "input", "scroll", "navigate"}, "description": "Action kind"},
			"target":       map[string]any{"type": "string", "description": "Element text, CSS selector, or scroll direction"},
			"value":        map[string]any{"type": "string", "description": "Input text, scroll amount, or destination URL"},
			"element_type": map[string]any{"type": "string", "description": "Element kind hint: button, link, input"},
			"element_attributes": map[string]any{
				"type":        "object",
				"description": "Exact attribute matches, e.g. {\"id\": \"submit\"}",
			},
		}, []string{"action_type"}),
	}
	addTool(srv, tool, func(ctx context.Context, req *mcp.CallToolRequest) (any, error) {
		var r actionRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		err := d.Execute(ctx, wire.Action{
			Type:        r.ActionType,
			Target:      r.Target,
			Value:       r.Value,
			ElementType: r.ElementType,
			Attributes:  r.Attributes,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "done"}, nil
	})
}
