package models

import (
	"encoding/json"
	"testing"
)

func TestMessageRole_Constants(t *testing.T) {
	tests := []struct {
		constant MessageRole
		expected string
	}{
		{RoleUser, "user"},
		{RoleAssistant, "assistant"},
		{RoleToolResult, "toolResult"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestStopReason_Constants(t *testing.T) {
	tests := []struct {
		constant StopReason
		expected string
	}{
		{StopReasonStop, "stop"},
		{StopReasonLength, "length"},
		{StopReasonToolUse, "toolUse"},
		{StopReasonError, "error"},
		{StopReasonAborted, "aborted"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestUsage_CacheHitRate(t *testing.T) {
	tests := []struct {
		name  string
		usage Usage
		want  float64
	}{
		{"empty", Usage{}, 0},
		{"no cache", Usage{Input: 100}, 0},
		{"all cached", Usage{CacheRead: 100}, 1},
		{"half cached", Usage{Input: 50, CacheRead: 50}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.usage.CacheHitRate(); got != tt.want {
				t.Errorf("CacheHitRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("hello")
	if msg.Role != RoleUser {
		t.Errorf("Role = %v, want RoleUser", msg.Role)
	}
	if msg.Timestamp == 0 {
		t.Error("Timestamp not set")
	}
	if got := msg.Text(); got != "hello" {
		t.Errorf("Text() = %q, want %q", got, "hello")
	}
}

func TestNewUserMessageContent(t *testing.T) {
	content := []Content{TextContent("hi"), ImageContentBlock("YQ==", "image/png")}
	msg := NewUserMessageContent(content)
	if msg.Role != RoleUser {
		t.Errorf("Role = %v, want RoleUser", msg.Role)
	}
	if len(msg.Content) != 2 {
		t.Fatalf("Content len = %d, want 2", len(msg.Content))
	}
}

func TestNewToolResultMessage(t *testing.T) {
	content := []Content{TextContent("result")}
	msg := NewToolResultMessage("call-1", "search", content, false)

	if msg.Role != RoleToolResult {
		t.Errorf("Role = %v, want RoleToolResult", msg.Role)
	}
	if msg.ToolCallID != "call-1" {
		t.Errorf("ToolCallID = %q, want %q", msg.ToolCallID, "call-1")
	}
	if msg.ToolName != "search" {
		t.Errorf("ToolName = %q, want %q", msg.ToolName, "search")
	}
	if msg.IsError {
		t.Error("IsError = true, want false")
	}
}

func TestMessage_ToolCalls(t *testing.T) {
	assistant := Message{
		Role: RoleAssistant,
		Content: []Content{
			TextContent("let me check"),
			ToolCallContent("c1", "search", json.RawMessage(`{"q":"go"}`)),
			ToolCallContent("c2", "fetch", json.RawMessage(`{}`)),
		},
	}
	calls := assistant.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("ToolCalls() len = %d, want 2", len(calls))
	}
	if calls[0].ToolCallID != "c1" || calls[1].ToolCallID != "c2" {
		t.Errorf("ToolCalls() = %+v, want c1 then c2", calls)
	}

	user := NewUserMessage("hi")
	if calls := user.ToolCalls(); calls != nil {
		t.Errorf("ToolCalls() on user message = %+v, want nil", calls)
	}
}

func TestMessage_Text(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []Content{
			TextContent("first"),
			ThinkingContent("reasoning", "sig"),
			TextContent("second"),
		},
	}
	if got, want := msg.Text(), "first\nsecond"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestMessage_IsContextOverflow(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{
			"overflow error",
			Message{Role: RoleAssistant, StopReason: StopReasonError, ErrorMessage: "context_length_exceeded: too many tokens"},
			true,
		},
		{
			"unrelated error",
			Message{Role: RoleAssistant, StopReason: StopReasonError, ErrorMessage: "rate limited"},
			false,
		},
		{
			"not an error",
			Message{Role: RoleAssistant, StopReason: StopReasonStop, ErrorMessage: "context length"},
			false,
		},
		{
			"not an assistant message",
			Message{Role: RoleUser, ErrorMessage: "context length"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsContextOverflow(); got != tt.want {
				t.Errorf("IsContextOverflow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAgentMessage_LlmAndExtension(t *testing.T) {
	llm := LlmMessage(NewUserMessage("hi"))
	if llm.Role() != string(RoleUser) {
		t.Errorf("Role() = %q, want %q", llm.Role(), RoleUser)
	}
	if _, ok := llm.AsLLM(); !ok {
		t.Error("AsLLM() ok = false, want true")
	}

	ext := NewExtensionMessage("notice", map[string]any{"text": "hi"})
	if ext.Role() != "extension" {
		t.Errorf("Role() = %q, want %q", ext.Role(), "extension")
	}
	if _, ok := ext.AsLLM(); ok {
		t.Error("AsLLM() ok = true, want false")
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	msg := NewToolResultMessage("c1", "search", []Content{TextContent("ok")}, false)
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.ToolCallID != msg.ToolCallID || decoded.ToolName != msg.ToolName {
		t.Errorf("decoded = %+v, want %+v", decoded, msg)
	}
}
