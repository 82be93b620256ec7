package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"formbridge/internal/domain"
	"formbridge/internal/tool"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// formsStub answers like the forms provider without touching the network.
type formsStub struct{}

func (formsStub) Tools() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name:        "gravityforms_get_form",
			Description: "Get a specific form",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"form_id": {Type: "integer", Description: "The form ID"},
			}, []string{"form_id"}),
		},
		{
			Name:        "gravityforms_list_forms",
			Description: "List forms",
			Parameters:  tool.ToolParameters(nil, nil),
		},
	}
}

func (formsStub) Handle(ctx context.Context, name string, args map[string]any) (domain.ToolResult, bool) {
	switch name {
	case "gravityforms_get_form":
		if _, ok := args["form_id"]; !ok {
			return domain.Failure("form_id is required"), true
		}
		return domain.Success(map[string]any{"id": args["form_id"], "title": "Contact"}), true
	case "gravityforms_list_forms":
		return domain.Success([]any{}), true
	}
	return domain.ToolResult{}, false
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	reg := tool.NewRegistry(testLogger())
	reg.RegisterProvider(formsStub{})
	srv := New(reg, Config{Name: "formbridge-test", Version: "test", Logger: testLogger()})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.Connect(ctx, serverTransport)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func textOf(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(res.Content))
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &out); err != nil {
		t.Fatalf("content is not a JSON object: %v (%q)", err, tc.Text)
	}
	return out
}

func TestListTools(t *testing.T) {
	session := connect(t)

	res, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(res.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(res.Tools))
	}
	byName := map[string]*mcp.Tool{}
	for _, tl := range res.Tools {
		byName[tl.Name] = tl
	}
	get, ok := byName["gravityforms_get_form"]
	if !ok {
		t.Fatalf("gravityforms_get_form missing: %+v", res.Tools)
	}
	if get.Description != "Get a specific form" || get.InputSchema == nil {
		t.Fatalf("unexpected tool %+v", get)
	}
}

func TestCallTool_Success(t *testing.T) {
	session := connect(t)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "gravityforms_get_form",
		Arguments: map[string]any{"form_id": 4},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res)
	}
	out := textOf(t, res)
	if out["id"] != 4.0 || out["title"] != "Contact" {
		t.Fatalf("unexpected payload %v", out)
	}
}

func TestCallTool_FailureSetsIsError(t *testing.T) {
	session := connect(t)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "gravityforms_get_form",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError for failure result")
	}
	if out := textOf(t, res); out["error"] != "form_id is required" {
		t.Fatalf("unexpected payload %v", out)
	}
}

func TestCallTool_NoArguments(t *testing.T) {
	session := connect(t)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "gravityforms_get_form"})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected validation failure with no arguments")
	}
}

func TestDecodeArguments(t *testing.T) {
	for _, raw := range []string{"", "null", "{}"} {
		args, err := decodeArguments(json.RawMessage(raw))
		if err != nil || args == nil || len(args) != 0 {
			t.Fatalf("decodeArguments(%q) = %v, %v", raw, args, err)
		}
	}
	if _, err := decodeArguments(json.RawMessage(`[1]`)); err == nil {
		t.Fatal("expected error for array arguments")
	}
}
