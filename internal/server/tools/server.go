// Package tools exposes Google Sheets and Drive operations as MCP tools.
// Handlers obtain their API clients exclusively from the request-scoped
// binding established by the gateway.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/gsheetsmcp/internal/logging"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/reqctx"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ServerName    = "gsheets"
	ServerVersion = "1.0.0"
)

type Registry struct {
	mcp    *server.MCPServer
	tools  []mcp.Tool
	logger logging.Logger
}

// New builds the MCP server with every tool registered.
func New(logger logging.Logger) *Registry {
	r := &Registry{
		mcp:    server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		logger: logger.With("module", "tools"),
	}

	r.registerValueTools()
	r.registerSheetTools()
	r.registerDimensionTools()
	r.registerDriveTools()

	return r
}

// MCP returns the underlying server for transports to mount.
func (r *Registry) MCP() *server.MCPServer { return r.mcp }

// Tools returns the registered tool definitions in registration order.
func (r *Registry) Tools() []mcp.Tool {
	out := make([]mcp.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// handlerFunc is a tool handler that receives the handles resolved for its
// request. The handles stay valid for the whole call even if the binding is
// released meanwhile.
type handlerFunc func(ctx context.Context, h *reqctx.Handles, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

func (r *Registry) add(tool mcp.Tool, handler handlerFunc) {
	r.tools = append(r.tools, tool)
	r.mcp.AddTool(tool, r.wrap(tool.Name, handler))
}

// wrap rejects calls made outside a credential binding and reports handler
// errors as tool errors.
func (r *Registry) wrap(name string, handler handlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log := logging.FromContext(ctx, r.logger).With("tool", name)

		h, ok := reqctx.Current(ctx)
		if !ok {
			log.Warn(ctx, "tool called without credential context")
			return mcp.NewToolResultError("not authenticated"), nil
		}

		res, err := handler(ctx, h, req)
		if err != nil {
			log.Warn(ctx, "tool failed", "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		log.Debug(ctx, "tool succeeded")
		return res, nil
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
