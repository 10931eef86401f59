package browser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/entrhq/browsersteps/pkg/actions"
	"github.com/entrhq/browsersteps/pkg/agent/tools"
	"github.com/entrhq/browsersteps/pkg/browser"
)

// ToolRegistry owns the browser tools for one session.
type ToolRegistry struct {
	executor *actions.Executor
	session  browser.Session
	tools    []tools.Tool
}

// NewToolRegistry creates a registry whose tools run on session.
func NewToolRegistry(executor *actions.Executor, session browser.Session) *ToolRegistry {
	return &ToolRegistry{
		executor: executor,
		session:  session,
	}
}

// RegisterTools creates and returns all browser tools, in action order.
func (r *ToolRegistry) RegisterTools() []tools.Tool {
	if len(r.tools) > 0 {
		return r.tools
	}
	r.tools = []tools.Tool{
		NewUploadFileTool(r),
		NewClickAndDownloadTool(r),
		NewLatestDownloadTool(r),
		NewForceClickTool(r),
	}
	return r.tools
}

// GetTool returns the tool called name.
func (r *ToolRegistry) GetTool(name string) (tools.Tool, bool) {
	for _, t := range r.RegisterTools() {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Dispatch parses the first tool call in text and executes it. It returns
// the tool output and the text surrounding the call. An error means no
// runnable call was found; action failures are reported in the output.
func (r *ToolRegistry) Dispatch(ctx context.Context, text string) (string, string, error) {
	call, remaining, err := tools.ParseToolCall(text)
	if err != nil {
		return "", text, err
	}
	tool, ok := r.GetTool(call.ToolName)
	if !ok {
		return "", remaining, fmt.Errorf("unknown tool: %s", call.ToolName)
	}
	out, _, err := tool.Execute(ctx, call.GetArgumentsXML())
	return out, remaining, err
}

// maxPending bounds the model output buffered while waiting for a call to close.
const maxPending = 1024 * 1024

const (
	openTag  = "<tool>"
	closeTag = "</tool>"
)

// Serve reads model output from in and runs every tool call it contains,
// one at a time, writing each result envelope to out as a single line.
// Text outside tool calls is discarded. A call that cannot be parsed or
// names an unknown tool is answered with a ValidationError envelope.
// Serve returns when in is exhausted or ctx is done.
func (r *ToolRegistry) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxPending)

	var pending string
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		pending += scanner.Text() + "\n"

		for {
			end := strings.Index(pending, closeTag)
			if end < 0 {
				break
			}
			end += len(closeTag)
			call := pending[:end]
			pending = pending[end:]

			result, _, err := r.Dispatch(ctx, call)
			if err != nil {
				result = actions.Failure(actions.NewError(actions.KindValidation, "%v", err)).JSON()
			}
			if _, err := fmt.Fprintln(out, result); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
		}

		// Keep only a call that has opened but not closed yet.
		if start := strings.LastIndex(pending, openTag); start >= 0 {
			pending = pending[start:]
		} else {
			pending = ""
		}
		if len(pending) > maxPending {
			result := actions.Failure(actions.NewError(actions.KindValidation,
				"tool call exceeds maximum size of %d bytes", maxPending)).JSON()
			if _, err := fmt.Fprintln(out, result); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
			pending = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read tool calls: %w", err)
	}
	return nil
}
