package providers

import (
	"context"
	"encoding/json"
	"testing"

	"google.golang.org/genai"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

func TestGoogle_Name(t *testing.T) {
	if NewGoogleGenAI().Name() != "google" {
		t.Errorf("Name() = %q, want google", NewGoogleGenAI().Name())
	}
	if NewGoogleVertex("proj", "us-central1").Name() != "google-vertex" {
		t.Errorf("Name() = %q, want google-vertex", NewGoogleVertex("proj", "us-central1").Name())
	}
}

func TestGoogle_ConvertMessages(t *testing.T) {
	p := NewGoogleGenAI()
	msgs := []models.Message{
		models.NewUserMessage("hi"),
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
	if out[0].Role != genai.RoleUser {
		t.Errorf("first message role = %v, want user", out[0].Role)
	}
	if out[1].Role != genai.RoleModel {
		t.Errorf("second message role = %v, want model", out[1].Role)
	}
	if out[2].Parts[0].FunctionResponse == nil || out[2].Parts[0].FunctionResponse.Name != "search" {
		t.Errorf("tool result part = %+v, want functionResponse for search", out[2].Parts[0])
	}
}

func TestGoogle_ContentToParts_ToolCall(t *testing.T) {
	parts, err := contentToParts([]models.Content{
		models.ToolCallContent("t1", "bash", json.RawMessage(`{"command":"ls"}`)),
	})
	if err != nil {
		t.Fatalf("contentToParts: %v", err)
	}
	if len(parts) != 1 || parts[0].FunctionCall == nil || parts[0].FunctionCall.Name != "bash" {
		t.Fatalf("unexpected parts: %+v", parts)
	}
	if parts[0].FunctionCall.Args["command"] != "ls" {
		t.Errorf("args = %+v", parts[0].FunctionCall.Args)
	}
}

func TestGoogle_BuildConfig(t *testing.T) {
	p := NewGoogleGenAI()
	cfg := p.buildConfig(agent.StreamConfig{System: "be terse", MaxTokens: 2048})
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "be terse" {
		t.Errorf("SystemInstruction = %+v", cfg.SystemInstruction)
	}
	if cfg.MaxOutputTokens != 2048 {
		t.Errorf("MaxOutputTokens = %d, want 2048", cfg.MaxOutputTokens)
	}
}

func TestGoogle_Stream_CancelledContext(t *testing.T) {
	p := NewGoogleGenAI()
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
