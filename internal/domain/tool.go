package domain

import "context"

// ToolDefinition advertises a tool: its name, a description for the
// caller, and a JSON Schema "parameters" object for its arguments.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"inputSchema"`
}

// ToolProvider contributes tools to a host registry and handles calls for them.
//
// Handle reports handled=false when the name does not belong to the provider,
// which lets the host fall through to the next provider. It never returns a
// Go error: every failure is carried in the ToolResult.
type ToolProvider interface {
	Tools() []ToolDefinition
	Handle(ctx context.Context, name string, args map[string]any) (result ToolResult, handled bool)
}
