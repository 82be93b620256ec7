package domain

import "encoding/json"

// ToolResult is the outcome of a tool call: either a success payload (the
// decoded remote JSON, passed through as-is) or an error message.
// Use Success or Failure to build one; the zero value is a null success.
type ToolResult struct {
	payload any
	err     string
	failed  bool
}

// Success wraps a decoded JSON payload.
func Success(payload any) ToolResult {
	return ToolResult{payload: payload}
}

// Failure builds an {"error": msg} result.
func Failure(msg string) ToolResult {
	return ToolResult{err: msg, failed: true}
}

func (r ToolResult) IsError() bool { return r.failed }

// Error returns the failure message, or "" for a success.
func (r ToolResult) Error() string { return r.err }

// Payload returns the success payload, or nil for a failure.
func (r ToolResult) Payload() any {
	if r.failed {
		return nil
	}
	return r.payload
}

// MarshalJSON encodes a failure as {"error": msg} and a success as its payload.
func (r ToolResult) MarshalJSON() ([]byte, error) {
	if r.failed {
		return json.Marshal(map[string]string{"error": r.err})
	}
	return json.Marshal(r.payload)
}
