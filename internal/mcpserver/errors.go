package mcpserver

import (
	"fmt"

	"roundtable/internal/session"

	"github.com/mark3labs/mcp-go/mcp"
)

func toolResult(data any) *mcp.CallToolResult {
	return mcp.NewToolResultStructuredOnly(data)
}

// toolError reports a failure in the same {code, message} shape the
// websocket uses. retryable tells agents whether repeating the same call can
// succeed without changing it.
func toolError(code, message string) *mcp.CallToolResult {
	result := mcp.NewToolResultStructured(
		map[string]any{
			"error": map[string]any{
				"code":      code,
				"message":   message,
				"retryable": retryable(code),
			},
		},
		fmt.Sprintf("%s: %s", code, message),
	)
	result.IsError = true
	return result
}

func domainError(err error) *mcp.CallToolResult {
	e := session.ErrorCode(err)
	if e == nil {
		return toolError("internal_error", "unknown error")
	}
	return toolError(e.Code, e.Message)
}

// retryable codes are transient host conditions; turn upserts are idempotent
// so resubmitting after one of them is safe.
func retryable(code string) bool {
	switch code {
	case "session_busy", "actor_closed", "internal_error":
		return true
	default:
		return false
	}
}
