package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

func TestAnthropic_Name(t *testing.T) {
	if (&Anthropic{}).Name() != "anthropic" {
		t.Fatalf("Name() = %q, want anthropic", (&Anthropic{}).Name())
	}
}

func TestAnthropic_AuthOption_APIKey(t *testing.T) {
	p := NewAnthropic("")
	var gotHeader, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Authorization")
		gotKey = r.Header.Get("x-api-key")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	p.baseURL = server.URL

	_, _ = p.Stream(context.Background(), agent.StreamConfig{
		Model:       "claude-sonnet-4-20250514",
		Messages:    []models.Message{models.NewUserMessage("hi")},
		Credentials: agent.Credentials{APIKey: "sk-ant-api-test"},
	}, agent.EventSinkFunc(func(models.AgentEvent) {}))

	if gotKey != "sk-ant-api-test" {
		t.Errorf("x-api-key = %q, want sk-ant-api-test", gotKey)
	}
	if gotHeader != "" {
		t.Errorf("Authorization header should be unset for API key auth, got %q", gotHeader)
	}
}

func TestAnthropic_AuthOption_OAuth(t *testing.T) {
	p := NewAnthropic("")
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	p.baseURL = server.URL

	_, _ = p.Stream(context.Background(), agent.StreamConfig{
		Model:       "claude-sonnet-4-20250514",
		Messages:    []models.Message{models.NewUserMessage("hi")},
		Credentials: agent.Credentials{APIKey: "sk-ant-oat-test"},
	}, agent.EventSinkFunc(func(models.AgentEvent) {}))

	if gotHeader != "Bearer sk-ant-oat-test" {
		t.Errorf("Authorization = %q, want Bearer sk-ant-oat-test", gotHeader)
	}
}

func TestAnthropic_ConvertMessages(t *testing.T) {
	p := NewAnthropic("")
	msgs := []models.Message{
		models.NewUserMessage("hello"),
		{
			Role:      models.RoleAssistant,
			Content:   []models.Content{models.ToolCallContent("t1", "search", json.RawMessage(`{"q":"x"}`))},
			Timestamp: models.NowMillis(),
		},
		models.NewToolResultMessage("t1", "search", []models.Content{models.TextContent("result")}, false),
	}

	out, err := p.convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
}

func TestAnthropic_ConvertMessages_InvalidToolArgs(t *testing.T) {
	p := NewAnthropic("")
	msgs := []models.Message{{
		Role:      models.RoleAssistant,
		Content:   []models.Content{models.ToolCallContent("t1", "search", json.RawMessage(`not json`))},
		Timestamp: models.NowMillis(),
	}}
	if _, err := p.convertMessages(msgs); err == nil {
		t.Fatal("expected error for invalid tool call arguments")
	}
}

func sseBody(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func TestAnthropic_Stream_Text(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, sseBody(
			`event: message_start`,
			`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","usage":{"input_tokens":10,"output_tokens":0}}}`,
			``,
			`event: content_block_start`,
			`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			``,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
			``,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}`,
			``,
			`event: content_block_stop`,
			`data: {"type":"content_block_stop","index":0}`,
			``,
			`event: message_delta`,
			`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}`,
			``,
			`event: message_stop`,
			`data: {"type":"message_stop"}`,
			``,
		))
	}))
	defer server.Close()

	p := NewAnthropic(server.URL)
	var events []models.AgentEvent
	sink := agent.EventSinkFunc(func(e models.AgentEvent) { events = append(events, e) })

	msg, err := p.Stream(context.Background(), agent.StreamConfig{
		Model:       "claude-sonnet-4-20250514",
		Messages:    []models.Message{models.NewUserMessage("hi")},
		Credentials: agent.Credentials{APIKey: "test-key"},
	}, sink)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if msg.Text() != "Hello world" {
		t.Errorf("Text() = %q, want %q", msg.Text(), "Hello world")
	}
	if msg.StopReason != models.StopReasonStop {
		t.Errorf("StopReason = %v, want Stop", msg.StopReason)
	}
	if msg.Usage.Input != 10 {
		t.Errorf("Usage.Input = %d, want 10", msg.Usage.Input)
	}
	if len(events) == 0 {
		t.Error("expected at least one sink event")
	}
}

func TestAnthropic_Stream_ToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, sseBody(
			`event: message_start`,
			`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","usage":{"input_tokens":5,"output_tokens":0}}}`,
			``,
			`event: content_block_start`,
			`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tool_1","name":"get_weather","input":{}}}`,
			``,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
			``,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"London\"}"}}`,
			``,
			`event: content_block_stop`,
			`data: {"type":"content_block_stop","index":0}`,
			``,
			`event: message_delta`,
			`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":8}}`,
			``,
			`event: message_stop`,
			`data: {"type":"message_stop"}`,
			``,
		))
	}))
	defer server.Close()

	p := NewAnthropic(server.URL)
	msg, err := p.Stream(context.Background(), agent.StreamConfig{
		Model:       "claude-sonnet-4-20250514",
		Messages:    []models.Message{models.NewUserMessage("weather in London?")},
		Credentials: agent.Credentials{APIKey: "test-key"},
	}, agent.EventSinkFunc(func(models.AgentEvent) {}))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if msg.StopReason != models.StopReasonToolUse {
		t.Errorf("StopReason = %v, want ToolUse", msg.StopReason)
	}
	calls := msg.ToolCalls()
	if len(calls) != 1 || calls[0].ToolCallName != "get_weather" {
		t.Fatalf("unexpected tool calls: %+v", calls)
	}
	if string(calls[0].ToolCallArguments) != `{"city":"London"}` {
		t.Errorf("tool args = %s, want %s", calls[0].ToolCallArguments, `{"city":"London"}`)
	}
}

func TestAnthropic_Stream_ErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, sseBody(
			`event: message_start`,
			`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","usage":{"input_tokens":1,"output_tokens":0}}}`,
			``,
			`event: error`,
			`data: {"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`,
			``,
		))
	}))
	defer server.Close()

	p := NewAnthropic(server.URL)
	msg, err := p.Stream(context.Background(), agent.StreamConfig{
		Model:       "claude-sonnet-4-20250514",
		Messages:    []models.Message{models.NewUserMessage("hi")},
		Credentials: agent.Credentials{APIKey: "test-key"},
	}, agent.EventSinkFunc(func(models.AgentEvent) {}))
	if err != nil {
		t.Fatalf("Stream returned error, want synthesized error message: %v", err)
	}
	if msg.StopReason != models.StopReasonError {
		t.Errorf("StopReason = %v, want Error", msg.StopReason)
	}
}

func TestAnthropic_Stream_CancelledContext(t *testing.T) {
	p := NewAnthropic("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Stream(ctx, agent.StreamConfig{}, agent.EventSinkFunc(func(models.AgentEvent) {}))
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	perr, ok := err.(*agent.ProviderError)
	if !ok || perr.Kind != agent.ErrorKindCancelled {
		t.Errorf("expected Cancelled ProviderError, got %#v", err)
	}
}

func TestAnthropic_Stream_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer server.Close()

	p := NewAnthropic(server.URL)
	_, err := p.Stream(context.Background(), agent.StreamConfig{
		Model:       "claude-sonnet-4-20250514",
		Messages:    []models.Message{models.NewUserMessage("hi")},
		Credentials: agent.Credentials{APIKey: "test-key"},
	}, agent.EventSinkFunc(func(models.AgentEvent) {}))
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	perr, ok := err.(*agent.ProviderError)
	if !ok {
		t.Fatalf("expected *agent.ProviderError, got %#v", err)
	}
	if perr.Kind != agent.ErrorKindRateLimited {
		t.Errorf("Kind = %v, want RateLimited", perr.Kind)
	}
}
