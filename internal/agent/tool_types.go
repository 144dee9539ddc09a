package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ProgressFn reports free-text progress for a running tool call, surfaced
// to callers as a ProgressMessage event. It never touches the conversation.
type ProgressFn func(text string)

// ToolUpdateFn reports a structured partial result for a running tool call,
// surfaced as a ToolExecutionUpdate event. Distinct from ProgressFn per
// original_source's ToolContext (spec §4.2 compresses both into "an
// optional partial-result callback").
type ToolUpdateFn func(partial models.Content)

// ToolContext is passed to every Tool.Execute call.
type ToolContext struct {
	ToolCallID string
	ToolName   string
	SessionID  string

	OnUpdate   ToolUpdateFn
	OnProgress ProgressFn
}

// Report emits a progress message, if a callback was registered.
func (c ToolContext) Report(text string) {
	if c.OnProgress != nil {
		c.OnProgress(text)
	}
}

// Update emits a structured partial result, if a callback was registered.
func (c ToolContext) Update(partial models.Content) {
	if c.OnUpdate != nil {
		c.OnUpdate(partial)
	}
}

// ToolResult is what a Tool.Execute call returns on success. Failures are
// conveyed by returning a *ToolError instead — ToolResult itself carries no
// is_error flag (spec §4.2, matching original_source's AgentTool trait).
type ToolResult struct {
	Content []models.Content
	Details json.RawMessage
}

// TextToolResult is a convenience constructor for the common single-text-block result.
func TextToolResult(text string) ToolResult {
	return ToolResult{Content: []models.Content{models.TextContent(text)}}
}

// ToolErrorKind discriminates the ways a tool call can fail.
type ToolErrorKind string

const (
	ToolErrorFailed      ToolErrorKind = "failed"
	ToolErrorNotFound    ToolErrorKind = "notFound"
	ToolErrorInvalidArgs ToolErrorKind = "invalidArgs"
	ToolErrorCancelled   ToolErrorKind = "cancelled"
)

// ToolError is the error type Tool.Execute returns on failure. The
// scheduler always converts it to a ToolResult message with IsError=true
// (spec §7) before appending it to the conversation.
type ToolError struct {
	Kind    ToolErrorKind
	Message string
	Cause   error
}

func (e *ToolError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *ToolError) Unwrap() error { return e.Cause }

func NewToolError(kind ToolErrorKind, message string) *ToolError {
	return &ToolError{Kind: kind, Message: message}
}

func ToolErrorNotFoundf(name string) *ToolError {
	return NewToolError(ToolErrorNotFound, fmt.Sprintf("Tool `%s` not found", name))
}

func ToolErrorFailedf(format string, args ...any) *ToolError {
	return NewToolError(ToolErrorFailed, fmt.Sprintf(format, args...))
}

// Tool is the interface every agent-callable tool implements (spec §4.2).
type Tool interface {
	Name() string
	Label() string
	Description() string
	ParametersSchema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage, tc ToolContext) (ToolResult, *ToolError)
}

// GetToolError extracts a *ToolError from err via errors.As-compatible
// unwrapping, returning ok=false if err does not wrap one.
func GetToolError(err error) (*ToolError, bool) {
	var te *ToolError
	ok := errors.As(err, &te)
	return te, ok
}
