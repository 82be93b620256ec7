// Package forms exposes the Gravity Forms REST API as a set of tools.
//
// Each call is validated locally, turned into a single request against
// <restRoot>/gf/v2/ and answered with the decoded JSON response, unchanged.
// Validation and transport failures are returned as {"error": msg}
// results; nothing is retried and nothing is kept between calls.
package forms

import (
	"context"
	"log/slog"
	"strings"

	"formbridge/internal/domain"
	"formbridge/internal/metrics"
)

// Integration is a domain.ToolProvider for the forms API.
type Integration struct {
	requester Requester
	available Availability
	strict    bool
	logger    *slog.Logger
}

type Config struct {
	// Requester performs the HTTP call. Required.
	Requester Requester
	// Available gates tool registration. nil means always available.
	Available Availability
	// StrictArgs rejects non-integer ids/limits and a non-object entry
	// payload instead of coercing them.
	StrictArgs bool
	Logger     *slog.Logger
}

func New(cfg Config) *Integration {
	if cfg.Available == nil {
		cfg.Available = Always
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Integration{
		requester: cfg.Requester,
		available: cfg.Available,
		strict:    cfg.StrictArgs,
		logger:    cfg.Logger,
	}
}

// Tools returns the tool definitions, or nil when the forms API is not
// available.
func (g *Integration) Tools() []domain.ToolDefinition {
	if !g.available() {
		g.logger.Info("forms API not available, no tools registered")
		return nil
	}
	return definitions()
}

// Handle runs a tool call. handled is false for names outside ToolPrefix
// and for unknown actions; no request is made in that case.
func (g *Integration) Handle(ctx context.Context, name string, args map[string]any) (domain.ToolResult, bool) {
	action, ok := strings.CutPrefix(name, ToolPrefix)
	if !ok {
		return domain.ToolResult{}, false
	}

	req, ok, err := BuildRequest(action, args, g.strict)
	if !ok {
		return domain.ToolResult{}, false
	}
	if err != nil {
		metrics.ValidationFailures.Inc()
		g.logger.Debug("tool arguments rejected", "tool", name, "err", err)
		return domain.Failure(err.Error()), true
	}

	g.logger.Debug("forms request", "tool", name, "method", req.Method, "endpoint", req.Endpoint)
	return g.requester.Do(ctx, req), true
}

var _ domain.ToolProvider = (*Integration)(nil)
