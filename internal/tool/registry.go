package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"formbridge/internal/domain"
	"formbridge/internal/metrics"

	"github.com/google/uuid"
)

// ErrUnknownTool is returned by Execute when no provider handles the name.
var ErrUnknownTool = errors.New("unknown tool")

// unknownToolLabel replaces caller-supplied names in metrics for calls no
// provider handles, keeping the label set bounded.
const unknownToolLabel = "_unknown"

// Registry is the host side of tool dispatch: it collects definitions from
// registered providers and routes each call to the first provider that
// claims it.
type Registry struct {
	mu        sync.RWMutex
	providers []domain.ToolProvider
	defs      []domain.ToolDefinition
	names     map[string]struct{}
	recorder  domain.AuditRecorder
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		names:  make(map[string]struct{}),
		logger: logger,
	}
}

// SetRecorder attaches an audit recorder; nil disables auditing.
func (r *Registry) SetRecorder(rec domain.AuditRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = rec
}

// RegisterProvider appends p to the dispatch chain and snapshots its
// definitions. A definition whose name is already taken is dropped.
func (r *Registry) RegisterProvider(p domain.ToolProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)

	added := 0
	for _, def := range p.Tools() {
		if _, dup := r.names[def.Name]; dup {
			r.logger.Warn("duplicate tool definition ignored", "name", def.Name)
			continue
		}
		r.names[def.Name] = struct{}{}
		r.defs = append(r.defs, def)
		added++
	}
	r.logger.Debug("registered tool provider", "tools", added)
}

// GetDefinitions returns every registered definition in registration order.
func (r *Registry) GetDefinitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ToolDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		names = append(names, d.Name)
	}
	return names
}

// Execute dispatches a call. The returned error is non-nil only when no
// provider handles the name; tool failures come back as an error ToolResult.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (domain.ToolResult, error) {
	r.mu.RLock()
	providers := r.providers
	recorder := r.recorder
	r.mu.RUnlock()

	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	for _, p := range providers {
		result, handled := p.Handle(ctx, name, args)
		if !handled {
			continue
		}
		elapsed := time.Since(start)
		r.observe(ctx, recorder, name, result, elapsed)
		return result, nil
	}

	metrics.ToolCall(unknownToolLabel, "unknown").Inc()
	return domain.ToolResult{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
}

func (r *Registry) observe(ctx context.Context, recorder domain.AuditRecorder, name string, result domain.ToolResult, elapsed time.Duration) {
	outcome := domain.OutcomeOK
	if result.IsError() {
		outcome = domain.OutcomeError
	}
	metrics.ToolCall(name, outcome).Inc()
	metrics.ToolLatency.Observe(elapsed.Seconds())
	r.logger.Debug("tool executed", "tool", name, "outcome", outcome, "duration", elapsed)

	if recorder == nil {
		return
	}
	entry := domain.AuditEntry{
		ID:         uuid.NewString(),
		ToolName:   name,
		Outcome:    outcome,
		Error:      result.Error(),
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := recorder.LogCall(ctx, entry); err != nil {
		r.logger.Warn("audit write failed", "tool", name, "err", err)
	}
}

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
}

// ToolParameters builds a JSON Schema "parameters" object for a tool.
func ToolParameters(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any)
	for name, p := range properties {
		props[name] = map[string]any{"type": p.Type, "description": p.Description}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
