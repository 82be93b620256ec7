package domain

import (
	"context"
	"time"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// AuditEntry records one dispatched tool call.
type AuditEntry struct {
	ID         string    `json:"id"`
	ToolName   string    `json:"tool_name"`
	Outcome    string    `json:"outcome"` // ok | error
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditRecorder persists audit entries. Implementations must be safe for
// concurrent use.
type AuditRecorder interface {
	LogCall(ctx context.Context, entry AuditEntry) error
}
