// Package mcpserver publishes the tool registry as a Model Context
// Protocol server.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"formbridge/internal/domain"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Dispatcher is the subset of tool.Registry the server needs.
type Dispatcher interface {
	GetDefinitions() []domain.ToolDefinition
	Execute(ctx context.Context, name string, args map[string]any) (domain.ToolResult, error)
}

type Config struct {
	Name    string
	Version string
	Logger  *slog.Logger
}

type Server struct {
	mcp    *mcp.Server
	tools  Dispatcher
	logger *slog.Logger
}

// New registers every definition currently known to tools. Definitions
// added to the registry afterwards are not published.
func New(tools Dispatcher, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{
		mcp:    mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		tools:  tools,
		logger: cfg.Logger,
	}
	for _, def := range tools.GetDefinitions() {
		s.mcp.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Parameters,
		}, s.handler(def.Name))
	}
	return s
}

// Run serves over stdin/stdout until ctx is done or the client hangs up.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves a single session over t.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := decodeArguments(req.Params.Arguments)
		if err != nil {
			return errorResult(err.Error()), nil
		}

		result, err := s.tools.Execute(ctx, name, args)
		if err != nil {
			s.logger.Warn("mcp tool call failed", "tool", name, "err", err)
			return errorResult(err.Error()), nil
		}

		text, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
			IsError: result.IsError(),
		}, nil
	}
}

func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errors.New("arguments must be a JSON object")
	}
	return args, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	text, _ := json.Marshal(map[string]string{"error": msg})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		IsError: true,
	}
}
