package server

import (
	"encoding/json"
	"errors"
	"log/slog"

	dokkuApi "github.com/alex-galey/dokku-deployer/internal/dokku-api"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	database "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/domain"
	"github.com/alex-galey/dokku-deployer/internal/shared"
	"github.com/mark3labs/mcp-go/mcp"
)

type ToolStatus string

const (
	ToolStatusOK    ToolStatus = "ok"
	ToolStatusError ToolStatus = "error"
)

// ToolLink points the caller at the tool to use next.
type ToolLink struct {
	Rel    string         `json:"rel"`
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params,omitempty"`
}

// ToolResponse is the envelope every deployer tool returns.
type ToolResponse struct {
	Status  ToolStatus `json:"status"`
	Code    string     `json:"code,omitempty"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Links   []ToolLink `json:"links,omitempty"`
	Hint    string     `json:"hint,omitempty"`
}

func (r ToolResponse) marshal(logger *slog.Logger) string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		if logger != nil {
			logger.Error("Failed to marshal tool response", "error", err, "code", r.Code)
		}
		fallback, _ := json.Marshal(ToolResponse{
			Status:  ToolStatusError,
			Code:    "tool_response_marshal_error",
			Message: "failed to serialize tool response",
		})
		return string(fallback)
	}
	return string(b)
}

// NewResult renders resp as a text result. Error envelopes set IsError.
func NewResult(resp ToolResponse, logger *slog.Logger) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: resp.marshal(logger)}},
		IsError: resp.Status == ToolStatusError,
	}
}

func OK(message string, data any, links ...ToolLink) *mcp.CallToolResult {
	return NewResult(ToolResponse{Status: ToolStatusOK, Message: message, Data: data, Links: links}, nil)
}

func Error(code, message, hint string) *mcp.CallToolResult {
	return NewResult(ToolResponse{Status: ToolStatusError, Code: code, Message: message, Hint: hint}, nil)
}

// ErrorCode maps domain errors to the stable codes reported to MCP clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, app.ErrApplicationNotFound):
		return "app_not_found"
	case errors.Is(err, database.ErrDatabaseNotFound):
		return "database_not_found"
	case errors.Is(err, jobs.ErrJobNotFound):
		return "job_not_found"
	case errors.Is(err, jobs.ErrJobNotCancellable):
		return "job_not_cancellable"
	case errors.Is(err, jobs.ErrUnknownJobType):
		return "unknown_job_type"
	case errors.Is(err, app.ErrInvalidApplicationName), errors.Is(err, app.ErrMissingSource),
		errors.Is(err, shared.ErrInvalidGitRef):
		return "invalid_application"
	case errors.Is(err, shared.ErrInvalidDockerImage):
		return "invalid_image"
	case errors.Is(err, database.ErrInvalidDatabaseType):
		return "invalid_database_type"
	case dokkuApi.IsNotFoundError(err):
		return "dokku_not_found"
	default:
		return "internal_error"
	}
}

// FromError renders err with its code. Remote stderr can end up in err, so the
// text is sanitized like server logs.
func FromError(message string, err error) *mcp.CallToolResult {
	text := SanitizeLogLines([]string{message + ": " + err.Error()})[0]
	return Error(ErrorCode(err), text, "")
}
