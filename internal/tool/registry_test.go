package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"formbridge/internal/domain"
	"formbridge/internal/metrics"
)

// stubProvider handles every name in tools and nothing else.
type stubProvider struct {
	prefix string
	tools  []string
	result domain.ToolResult
	calls  []string
	args   []map[string]any
}

func (s *stubProvider) Tools() []domain.ToolDefinition {
	defs := make([]domain.ToolDefinition, 0, len(s.tools))
	for _, name := range s.tools {
		defs = append(defs, domain.ToolDefinition{
			Name:        name,
			Description: "stub: " + name,
			Parameters:  ToolParameters(nil, nil),
		})
	}
	return defs
}

func (s *stubProvider) Handle(ctx context.Context, name string, args map[string]any) (domain.ToolResult, bool) {
	if !strings.HasPrefix(name, s.prefix) {
		return domain.ToolResult{}, false
	}
	s.calls = append(s.calls, name)
	s.args = append(s.args, args)
	return s.result, true
}

var _ domain.ToolProvider = (*stubProvider)(nil)

type memRecorder struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	err     error
}

func (m *memRecorder) LogCall(ctx context.Context, e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRegistry_RegisterAndDefinitions(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.RegisterProvider(&stubProvider{prefix: "a_", tools: []string{"a_one", "a_two"}})
	reg.RegisterProvider(&stubProvider{prefix: "b_", tools: []string{"b_one"}})

	defs := reg.GetDefinitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	want := []string{"a_one", "a_two", "b_one"}
	for i, name := range reg.Names() {
		if name != want[i] {
			t.Fatalf("expected %q at %d, got %q", want[i], i, name)
		}
	}
}

func TestRegistry_DefinitionsAreCopied(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.RegisterProvider(&stubProvider{prefix: "a_", tools: []string{"a_one"}})

	defs := reg.GetDefinitions()
	defs[0].Name = "changed"
	if reg.GetDefinitions()[0].Name != "a_one" {
		t.Fatal("caller mutation leaked into registry")
	}
}

func TestRegistry_DuplicateNameIgnored(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.RegisterProvider(&stubProvider{prefix: "a_", tools: []string{"a_one"}})
	reg.RegisterProvider(&stubProvider{prefix: "a_", tools: []string{"a_one", "a_three"}})

	if got := len(reg.GetDefinitions()); got != 2 {
		t.Fatalf("expected 2 definitions, got %d", got)
	}
}

func TestRegistry_EmptyProvider(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.RegisterProvider(&stubProvider{prefix: "a_"})

	if got := len(reg.GetDefinitions()); got != 0 {
		t.Fatalf("expected no definitions, got %d", got)
	}
}

func TestRegistry_ExecuteFallsThrough(t *testing.T) {
	reg := NewRegistry(testLogger())
	first := &stubProvider{prefix: "a_", result: domain.Success("first")}
	second := &stubProvider{prefix: "b_", result: domain.Success("second")}
	reg.RegisterProvider(first)
	reg.RegisterProvider(second)

	res, err := reg.Execute(context.Background(), "b_tool", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Payload() != "second" {
		t.Fatalf("expected second provider's result, got %v", res.Payload())
	}
	if len(first.calls) != 0 || len(second.calls) != 1 {
		t.Fatalf("unexpected calls: first=%v second=%v", first.calls, second.calls)
	}
}

func TestRegistry_ExecuteNilArgs(t *testing.T) {
	reg := NewRegistry(testLogger())
	p := &stubProvider{prefix: "a_", result: domain.Success(nil)}
	reg.RegisterProvider(p)

	if _, err := reg.Execute(context.Background(), "a_tool", nil); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if p.args[0] == nil {
		t.Fatal("expected nil args to be replaced with an empty map")
	}
}

func TestRegistry_ExecuteUnknown(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.RegisterProvider(&stubProvider{prefix: "a_"})

	_, err := reg.Execute(context.Background(), "zzz", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "zzz") {
		t.Fatalf("expected tool name in error, got %q", err.Error())
	}
}

func TestRegistry_UnknownToolsShareOneSeries(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.RegisterProvider(&stubProvider{prefix: "a_"})

	unknown := metrics.ToolCall(unknownToolLabel, "unknown")
	before := unknown.Value()
	for i := 0; i < 50; i++ {
		reg.Execute(context.Background(), fmt.Sprintf("junk_%d", i), nil)
	}

	if got := unknown.Value() - before; got != 50 {
		t.Fatalf("expected 50 unknown calls counted, got %d", got)
	}
	if out := metrics.Collector.Render(); strings.Contains(out, "junk_") {
		t.Fatalf("caller-supplied names leaked into metrics:\n%s", out)
	}
}

func TestRegistry_ToolFailureIsNotAnError(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.RegisterProvider(&stubProvider{prefix: "a_", result: domain.Failure("boom")})

	res, err := reg.Execute(context.Background(), "a_tool", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !res.IsError() || res.Error() != "boom" {
		t.Fatalf("expected failure result, got %+v", res)
	}
}

func TestRegistry_Recorder(t *testing.T) {
	reg := NewRegistry(testLogger())
	rec := &memRecorder{}
	reg.SetRecorder(rec)
	reg.RegisterProvider(&stubProvider{prefix: "ok_", result: domain.Success(1)})
	reg.RegisterProvider(&stubProvider{prefix: "bad_", result: domain.Failure("nope")})

	reg.Execute(context.Background(), "ok_tool", nil)
	reg.Execute(context.Background(), "bad_tool", nil)
	reg.Execute(context.Background(), "missing", nil)

	if len(rec.entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(rec.entries))
	}
	if e := rec.entries[0]; e.ToolName != "ok_tool" || e.Outcome != domain.OutcomeOK || e.Error != "" || e.ID == "" {
		t.Fatalf("unexpected first entry %+v", e)
	}
	if e := rec.entries[1]; e.Outcome != domain.OutcomeError || e.Error != "nope" {
		t.Fatalf("unexpected second entry %+v", e)
	}
	if rec.entries[0].ID == rec.entries[1].ID {
		t.Fatal("expected distinct audit ids")
	}
}

func TestRegistry_RecorderFailureDoesNotFailCall(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.SetRecorder(&memRecorder{err: errors.New("disk full")})
	reg.RegisterProvider(&stubProvider{prefix: "a_", result: domain.Success("fine")})

	res, err := reg.Execute(context.Background(), "a_tool", nil)
	if err != nil || res.Payload() != "fine" {
		t.Fatalf("expected success, got res=%+v err=%v", res, err)
	}
}

func TestToolParameters(t *testing.T) {
	schema := ToolParameters(map[string]Param{
		"form_id": {Type: "integer", Description: "The form ID"},
	}, []string{"form_id"})

	if schema["type"] != "object" {
		t.Fatalf("expected object schema, got %v", schema["type"])
	}
	props := schema["properties"].(map[string]any)
	p := props["form_id"].(map[string]any)
	if p["type"] != "integer" || p["description"] != "The form ID" {
		t.Fatalf("unexpected property %v", p)
	}
	if req := schema["required"].([]string); len(req) != 1 || req[0] != "form_id" {
		t.Fatalf("unexpected required %v", req)
	}

	if _, ok := ToolParameters(nil, nil)["required"]; ok {
		t.Fatal("expected no required key when nothing is required")
	}
}
