package models

import (
	"encoding/json"
	"testing"
)

func TestAgentEventType_Constants(t *testing.T) {
	tests := []struct {
		constant AgentEventType
		expected string
	}{
		{AgentEventAgentStart, "agentStart"},
		{AgentEventAgentEnd, "agentEnd"},
		{AgentEventTurnStart, "turnStart"},
		{AgentEventTurnEnd, "turnEnd"},
		{AgentEventMessageStart, "messageStart"},
		{AgentEventMessageUpdate, "messageUpdate"},
		{AgentEventMessageEnd, "messageEnd"},
		{AgentEventToolExecutionStart, "toolExecutionStart"},
		{AgentEventToolExecutionUpdate, "toolExecutionUpdate"},
		{AgentEventToolExecutionEnd, "toolExecutionEnd"},
		{AgentEventProgressMessage, "progressMessage"},
		{AgentEventSteeringInjected, "steeringInjected"},
		{AgentEventFollowUpQueued, "followUpQueued"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestStreamDeltaKind_Constants(t *testing.T) {
	tests := []struct {
		constant StreamDeltaKind
		expected string
	}{
		{StreamDeltaText, "text"},
		{StreamDeltaThinking, "thinking"},
		{StreamDeltaToolCallArgs, "toolCallArgs"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestAgentEvent_MessagePayload(t *testing.T) {
	event := AgentEvent{
		Type:     AgentEventMessageUpdate,
		RunID:    "run-1",
		Sequence: 3,
		Message: &MessageEventPayload{
			Message: NewUserMessage("hi"),
			Delta:   &StreamDelta{Kind: StreamDeltaText, Text: "h"},
		},
	}

	if event.Message.Delta.Kind != StreamDeltaText {
		t.Errorf("Delta.Kind = %v, want StreamDeltaText", event.Message.Delta.Kind)
	}
	if event.Tool != nil || event.Progress != nil || event.Turn != nil || event.End != nil || event.Steering != nil {
		t.Error("expected only Message payload to be set")
	}
}

func TestAgentEvent_ToolPayload(t *testing.T) {
	args := json.RawMessage(`{"q":"go"}`)
	result := NewToolResultMessage("c1", "search", []Content{TextContent("ok")}, false)

	event := AgentEvent{
		Type: AgentEventToolExecutionEnd,
		Tool: &ToolEventPayload{
			ToolCallID: "c1",
			ToolName:   "search",
			Args:       args,
			Result:     &result,
		},
	}

	if event.Tool.ToolCallID != "c1" {
		t.Errorf("ToolCallID = %q, want %q", event.Tool.ToolCallID, "c1")
	}
	if event.Tool.Result.ToolName != "search" {
		t.Errorf("Result.ToolName = %q, want %q", event.Tool.Result.ToolName, "search")
	}
}

func TestAgentEvent_TurnAndEndPayload(t *testing.T) {
	assistant := Message{Role: RoleAssistant, Content: []Content{TextContent("done")}, StopReason: StopReasonStop}
	toolResult := NewToolResultMessage("c1", "search", []Content{TextContent("ok")}, false)

	turnEvent := AgentEvent{
		Type: AgentEventTurnEnd,
		Turn: &TurnEventPayload{Message: assistant, ToolResults: []Message{toolResult}},
	}
	if len(turnEvent.Turn.ToolResults) != 1 {
		t.Fatalf("ToolResults len = %d, want 1", len(turnEvent.Turn.ToolResults))
	}

	endEvent := AgentEvent{
		Type: AgentEventAgentEnd,
		End:  &EndEventPayload{Messages: []Message{assistant, toolResult}},
	}
	if len(endEvent.End.Messages) != 2 {
		t.Fatalf("Messages len = %d, want 2", len(endEvent.End.Messages))
	}
}

func TestAgentEvent_SteeringPayload(t *testing.T) {
	event := AgentEvent{
		Type:     AgentEventSteeringInjected,
		Steering: &SteeringEventPayload{Content: "stop and summarize", Count: 1, SkippedTools: []string{"fetch"}},
	}
	if event.Steering.Content != "stop and summarize" {
		t.Errorf("Content = %q, want %q", event.Steering.Content, "stop and summarize")
	}
	if len(event.Steering.SkippedTools) != 1 {
		t.Errorf("SkippedTools len = %d, want 1", len(event.Steering.SkippedTools))
	}
}

func TestAgentEvent_JSONRoundTrip(t *testing.T) {
	event := AgentEvent{
		Type:     AgentEventProgressMessage,
		Sequence: 7,
		RunID:    "run-1",
		Progress: &ProgressPayload{ToolCallID: "c1", Text: "halfway there"},
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded AgentEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Type != event.Type || decoded.Progress.Text != event.Progress.Text {
		t.Errorf("decoded = %+v, want %+v", decoded, event)
	}
}
