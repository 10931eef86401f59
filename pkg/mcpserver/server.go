// Package mcpserver exposes the browser actions as MCP tools.
//
// Every tool returns the action's result envelope as a single JSON text
// content. Failed actions set IsError so MCP clients can count them, but
// the envelope still carries the classified error text.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/entrhq/browsersteps/pkg/actions"
	"github.com/entrhq/browsersteps/pkg/browser"
)

// Name is the MCP implementation name.
const Name = "browsersteps"

// NewServer creates an MCP server with every action registered.
func NewServer(version string, executor *actions.Executor, session browser.Session) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: Name, Version: version}, nil)
	Register(srv, executor, session)
	return srv
}

// Register adds one tool per action to srv.
func Register(srv *mcp.Server, executor *actions.Executor, session browser.Session) {
	for _, desc := range actions.Descriptors() {
		name := desc.Name
		srv.AddTool(&mcp.Tool{
			Name:        name,
			Description: desc.Description,
			InputSchema: desc.InputSchema,
			Annotations: annotations(name),
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args []byte
			if req.Params != nil {
				args = req.Params.Arguments
			}
			action, err := actions.Parse(name, args)
			if err != nil {
				return toolResult(actions.Failure(err)), nil
			}
			return toolResult(executor.Execute(ctx, session, action)), nil
		})
	}
}

func toolResult(res actions.Result) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.JSON()}},
		IsError: res.Failed(),
	}
}

func annotations(name string) *mcp.ToolAnnotations {
	open := true
	switch name {
	case actions.NameLatestDownload:
		return &mcp.ToolAnnotations{Title: "Latest download", ReadOnlyHint: true, IdempotentHint: true}
	case actions.NameUploadFile:
		return &mcp.ToolAnnotations{Title: "Upload file", OpenWorldHint: &open}
	case actions.NameClickAndDownload:
		return &mcp.ToolAnnotations{Title: "Click and download", OpenWorldHint: &open}
	default:
		return &mcp.ToolAnnotations{Title: "Force click", OpenWorldHint: &open}
	}
}
