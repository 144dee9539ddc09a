package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/haasonsaas/nexus/pkg/models"
)

// EventSink receives the streaming events a Provider emits while generating
// one assistant message. Implementations must be safe to call from a single
// goroutine per Stream call; Provider implementations never call a sink
// concurrently with itself.
type EventSink interface {
	// Send delivers one event. Providers treat Send as non-blocking from
	// their perspective: a sink backed by a channel must not block the
	// stream on a slow or absent consumer (spec §5 — single unbounded
	// lossless event channel per run).
	Send(models.AgentEvent)
}

// EventSinkFunc adapts a plain function to EventSink.
type EventSinkFunc func(models.AgentEvent)

func (f EventSinkFunc) Send(e models.AgentEvent) { f(e) }

// ThinkingLevel controls how much extended-reasoning budget a provider
// should request from the model, where supported.
type ThinkingLevel string

const (
	ThinkingOff     ThinkingLevel = "off"
	ThinkingMinimal ThinkingLevel = "minimal"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingMedium  ThinkingLevel = "medium"
	ThinkingHigh    ThinkingLevel = "high"
)

// CacheStrategy controls which parts of a request a provider marks as
// prompt-cache breakpoints.
type CacheStrategy struct {
	Mode CacheMode `json:"mode"`

	// Manual-mode breakpoint flags. Ignored unless Mode == CacheManual.
	CacheSystem   bool `json:"cacheSystem,omitempty"`
	CacheTools    bool `json:"cacheTools,omitempty"`
	CacheMessages bool `json:"cacheMessages,omitempty"`
}

type CacheMode string

const (
	CacheAuto     CacheMode = "auto"
	CacheDisabled CacheMode = "disabled"
	CacheManual   CacheMode = "manual"
)

// AutoBreakpoints reports, for CacheAuto, whether the system prompt, the
// last tool definition, and the second-to-last message should be marked as
// cache breakpoints — the exact placement rule from original_source's
// CacheStrategy::Auto.
func (c CacheStrategy) AutoBreakpoints(messageCount int) (system, lastTool bool, messageIndex int) {
	if c.Mode != CacheAuto {
		return false, false, -1
	}
	idx := -1
	if messageCount >= 2 {
		idx = messageCount - 2
	}
	return true, true, idx
}

// StreamConfig carries everything a Provider needs to produce one assistant
// message (spec §4.1).
type StreamConfig struct {
	Provider    string
	Model       string
	System      string
	Messages    []models.Message
	Tools       []ToolDefinition
	MaxTokens   int
	Thinking    ThinkingLevel
	ThinkingMax int
	Cache       CacheStrategy
	Credentials Credentials
}

// Credentials is an opaque bearer/API-key passthrough. The runtime never
// inspects or persists these beyond the life of one request (spec §1
// Non-goals: auth is limited to passing opaque credentials through).
type Credentials struct {
	APIKey      string
	BearerToken string
	Extra       map[string]string
}

// ToolDefinition is the wire-level shape of a tool advertised to the model,
// independent of the Go Tool implementation backing it.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []byte // JSON Schema
}

// Provider is the abstract streaming-provider contract (spec §4.1). A
// single Stream call emits a Start event (implicit — the first event a
// caller observes), zero or more delta events, and terminates with exactly
// one Done (returned message, nil error) or Error (nil message, non-nil
// error) outcome.
type Provider interface {
	Stream(ctx context.Context, cfg StreamConfig, sink EventSink) (*models.Message, error)
	Name() string
}

// ProviderErrorKind is the vendor-agnostic error taxonomy every Provider
// implementation classifies its failures into (spec §4.1).
type ProviderErrorKind string

const (
	ErrorKindAPI            ProviderErrorKind = "api"
	ErrorKindNetwork        ProviderErrorKind = "network"
	ErrorKindAuth           ProviderErrorKind = "auth"
	ErrorKindRateLimited    ProviderErrorKind = "rateLimited"
	ErrorKindContextOverflow ProviderErrorKind = "contextOverflow"
	ErrorKindCancelled      ProviderErrorKind = "cancelled"
	ErrorKindOther          ProviderErrorKind = "other"
)

// ProviderError is the error type every Provider.Stream returns on failure.
type ProviderError struct {
	Kind         ProviderErrorKind
	Provider     string
	Message      string
	StatusCode   int
	RetryAfterMs *int64
	Cause        error
}

func (e *ProviderError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// WithStatus sets the HTTP status code the error was classified from.
func (e *ProviderError) WithStatus(code int) *ProviderError {
	e.StatusCode = code
	return e
}

// WithCause attaches the underlying error.
func (e *ProviderError) WithCause(err error) *ProviderError {
	e.Cause = err
	return e
}

// WithRetryAfter records a vendor-supplied Retry-After hint, in milliseconds.
func (e *ProviderError) WithRetryAfter(ms int64) *ProviderError {
	e.RetryAfterMs = &ms
	return e
}

// IsRetryable reports whether the scheduler should retry the request that
// produced this error. Only RateLimited and Network are retryable (spec
// §4.4, matching original_source's ProviderError::is_retryable()).
func (e *ProviderError) IsRetryable() bool {
	return e.Kind == ErrorKindRateLimited || e.Kind == ErrorKindNetwork
}

// RetryAfter returns the vendor-supplied retry delay, if any. Only
// meaningful for RateLimited errors.
func (e *ProviderError) RetryAfter() *int64 {
	if e.Kind != ErrorKindRateLimited {
		return nil
	}
	return e.RetryAfterMs
}

// NewProviderError builds a ProviderError of the given kind.
func NewProviderError(kind ProviderErrorKind, provider, message string) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Message: message}
}

// overflowPhrases mirrors models.IsOverflowPhrase but is kept local to avoid
// a second source of truth being needed by callers that only import agent.
func isOverflowPhrase(msg string) bool { return models.IsOverflowPhrase(msg) }

// ClassifyHTTPError maps an HTTP status code and response body/message to a
// ProviderErrorKind, following the exact rule of spec §4.1: 429 is
// RateLimited; 401/403 is Auth; 400/413 with an empty body or an overflow
// phrase is ContextOverflow; anything else is Api.
func ClassifyHTTPError(provider string, status int, body string) *ProviderError {
	switch {
	case status == http.StatusTooManyRequests:
		return NewProviderError(ErrorKindRateLimited, provider, body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewProviderError(ErrorKindAuth, provider, body)
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge:
		if strings.TrimSpace(body) == "" || isOverflowPhrase(body) {
			return NewProviderError(ErrorKindContextOverflow, provider, body)
		}
		return NewProviderError(ErrorKindAPI, provider, body)
	default:
		return NewProviderError(ErrorKindAPI, provider, body).WithStatus(status)
	}
}

// ClassifyNetworkError wraps a transport-level failure (DNS, connection
// reset, timeout dialing) as a retryable Network error.
func ClassifyNetworkError(provider string, err error) *ProviderError {
	return NewProviderError(ErrorKindNetwork, provider, err.Error()).WithCause(err)
}

// ClassifyCancelled wraps a context-cancellation as a Cancelled error.
func ClassifyCancelled(provider string, err error) *ProviderError {
	return NewProviderError(ErrorKindCancelled, provider, "cancelled").WithCause(err)
}
