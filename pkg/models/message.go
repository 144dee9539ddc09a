package models

import "time"

// MessageRole discriminates the three Message variants the agent loop
// exchanges with the provider and the tool scheduler.
type MessageRole string

const (
	RoleUser       MessageRole = "user"
	RoleAssistant  MessageRole = "assistant"
	RoleToolResult MessageRole = "toolResult"
)

// StopReason is why an assistant message ended.
type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonToolUse StopReason = "toolUse"
	StopReasonError   StopReason = "error"
	StopReasonAborted StopReason = "aborted"
)

// Usage carries token counters, possibly a mix of real provider-reported
// numbers and estimates.
type Usage struct {
	Input       uint64 `json:"input"`
	Output      uint64 `json:"output"`
	CacheRead   uint64 `json:"cacheRead,omitempty"`
	CacheWrite  uint64 `json:"cacheWrite,omitempty"`
	TotalTokens uint64 `json:"totalTokens,omitempty"`
}

// CacheHitRate returns the fraction of input tokens served from cache.
func (u Usage) CacheHitRate() float64 {
	total := u.Input + u.CacheRead + u.CacheWrite
	if total == 0 {
		return 0
	}
	return float64(u.CacheRead) / float64(total)
}

// Message is a tagged union of the three roles a conversation turn can take.
// Only the fields relevant to Role are populated.
//
// Invariant (spec P1/P2): a ToolUse assistant message's tool calls are each
// matched by exactly one following ToolResult message before the next
// assistant message ever appears; two assistant messages are never adjacent.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   []Content   `json:"content,omitempty"`
	Timestamp int64       `json:"timestamp"`

	// Assistant-only.
	StopReason   StopReason `json:"stopReason,omitempty"`
	Model        string     `json:"model,omitempty"`
	Provider     string     `json:"provider,omitempty"`
	Usage        Usage      `json:"usage,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`

	// ToolResult-only.
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	IsError    bool   `json:"isError,omitempty"`
}

// NowMillis returns the current time as Unix milliseconds. Callers that need
// a deterministic clock (tests) should set Timestamp explicitly instead.
func NowMillis() int64 { return time.Now().UnixMilli() }

// NewUserMessage builds a plain-text User message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []Content{TextContent(text)}, Timestamp: NowMillis()}
}

// NewUserMessageContent builds a User message from arbitrary content blocks
// (e.g. text + image attachments).
func NewUserMessageContent(content []Content) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: NowMillis()}
}

// NewToolResultMessage builds a ToolResult message, the only way a tool
// invocation's outcome re-enters the conversation.
func NewToolResultMessage(toolCallID, toolName string, content []Content, isError bool) Message {
	return Message{
		Role:       RoleToolResult,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Content:    content,
		IsError:    isError,
		Timestamp:  NowMillis(),
	}
}

// ToolCalls extracts every ToolCall content block from an assistant message.
func (m Message) ToolCalls() []Content {
	if m.Role != RoleAssistant {
		return nil
	}
	var calls []Content
	for _, c := range m.Content {
		if c.Type == ContentTypeToolCall {
			calls = append(calls, c)
		}
	}
	return calls
}

// Text concatenates the Text content blocks of the message.
func (m Message) Text() string { return TextBlocks(m.Content) }

// IsContextOverflow reports whether this assistant message's error_message
// matches a known vendor context-overflow phrase (spec P7 / §4.1).
func (m Message) IsContextOverflow() bool {
	if m.Role != RoleAssistant || m.StopReason != StopReasonError {
		return false
	}
	return IsOverflowPhrase(m.ErrorMessage)
}

// ExtensionMessage carries host-specific data that is never sent to the
// model — UI notifications, control-plane markers, etc.
type ExtensionMessage struct {
	Role string `json:"role"`
	Kind string `json:"kind"`
	Data any    `json:"data,omitempty"`
}

// AgentMessage is either an LLM Message or an opaque ExtensionMessage.
// Exactly one of Llm / Extension is set.
type AgentMessage struct {
	Llm       *Message          `json:"llm,omitempty"`
	Extension *ExtensionMessage `json:"extension,omitempty"`
}

// LlmMessage wraps a Message as an AgentMessage.
func LlmMessage(m Message) AgentMessage { return AgentMessage{Llm: &m} }

// NewExtensionMessage wraps host-specific data as an AgentMessage.
func NewExtensionMessage(kind string, data any) AgentMessage {
	return AgentMessage{Extension: &ExtensionMessage{Role: "extension", Kind: kind, Data: data}}
}

// Role returns the role of whichever variant is set.
func (a AgentMessage) Role() string {
	if a.Llm != nil {
		return string(a.Llm.Role)
	}
	if a.Extension != nil {
		return a.Extension.Role
	}
	return ""
}

// AsLLM returns the wrapped Message, if this is an LLM variant.
func (a AgentMessage) AsLLM() (Message, bool) {
	if a.Llm == nil {
		return Message{}, false
	}
	return *a.Llm, true
}

// Session represents a conversation thread owned by a stateful agent.
type Session struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agentId"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
