// Package tools defines the contract between an agent loop and the
// capabilities it can invoke, along with the XML call format the loop's
// model emits.
package tools

import (
	"context"
	"encoding/xml"
)

// Tool represents a capability an agent loop can invoke. Tools are called
// through XML-formatted tool calls:
//
//	<tool>
//	<server_name>local</server_name>
//	<tool_name>click_and_wait_for_download</tool_name>
//	<arguments>
//	  <index>12</index>
//	</arguments>
//	</tool>
type Tool interface {
	// Name returns the unique identifier for this tool (e.g., "upload_file")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's input parameters
	Schema() map[string]interface{}

	// Execute runs the tool with the given XML arguments.
	// Returns: (result string, metadata map, error)
	// Metadata is optional and can be nil.
	Execute(ctx context.Context, argumentsXML []byte) (string, map[string]interface{}, error)
}

// ToolCall represents a parsed tool invocation from the model's response
type ToolCall struct {
	XMLName    xml.Name       `xml:"tool"`
	ServerName string         `xml:"server_name"`
	ToolName   string         `xml:"tool_name"`
	Arguments  ArgumentsBlock `xml:"arguments"`
}

// ArgumentsBlock holds the raw XML of the arguments element
type ArgumentsBlock struct {
	InnerXML []byte `xml:",innerxml"`
}

// GetArgumentsXML returns the arguments wrapped in <arguments> tags for unmarshaling.
func (tc *ToolCall) GetArgumentsXML() []byte {
	out := make([]byte, 0, len(tc.Arguments.InnerXML)+len("<arguments></arguments>"))
	out = append(out, "<arguments>"...)
	out = append(out, tc.Arguments.InnerXML...)
	return append(out, "</arguments>"...)
}

// BaseToolSchema creates a common JSON schema structure for a tool
// with the given properties and required fields
func BaseToolSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
