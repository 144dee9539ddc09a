// Package models provides domain types for the agent runtime.
package models

import (
	"encoding/json"
	"time"
)

// AgentEvent is the unified event model emitted by a running agent loop. It
// drives the CLI, logging, and any plugin/hook observing a run.
//
// Design principles:
//   - Single Type discriminator with optional payload pointers
//   - A Sequence field for ordering across goroutines (the agent loop
//     does not assign it; it is 0 on every event the loop emits)
//   - Exactly the event sequence named in the turn loop: AgentStart,
//     TurnStart, MessageStart/Update/End, ToolExecutionStart/Update/End,
//     ProgressMessage, TurnEnd, AgentEnd.
type AgentEvent struct {
	Type AgentEventType `json:"type"`
	Time time.Time      `json:"time"`

	// Sequence orders events within a run when an emitter assigns it; the
	// agent loop leaves it 0.
	Sequence uint64 `json:"seq"`

	// RunID identifies the agent run.
	RunID string `json:"runId,omitempty"`

	// At most one payload is non-nil for a given Type (AgentStart carries
	// none).
	Message   *MessageEventPayload `json:"message,omitempty"`
	Tool      *ToolEventPayload    `json:"tool,omitempty"`
	Progress  *ProgressPayload     `json:"progress,omitempty"`
	Turn      *TurnEventPayload    `json:"turn,omitempty"`
	End       *EndEventPayload     `json:"end,omitempty"`
	Steering  *SteeringEventPayload `json:"steering,omitempty"`
}

// AgentEventType identifies the kind of agent event.
type AgentEventType string

const (
	AgentEventAgentStart AgentEventType = "agentStart"
	AgentEventAgentEnd   AgentEventType = "agentEnd"

	AgentEventTurnStart AgentEventType = "turnStart"
	AgentEventTurnEnd   AgentEventType = "turnEnd"

	AgentEventMessageStart  AgentEventType = "messageStart"
	AgentEventMessageUpdate AgentEventType = "messageUpdate"
	AgentEventMessageEnd    AgentEventType = "messageEnd"

	AgentEventToolExecutionStart  AgentEventType = "toolExecutionStart"
	AgentEventToolExecutionUpdate AgentEventType = "toolExecutionUpdate"
	AgentEventToolExecutionEnd    AgentEventType = "toolExecutionEnd"

	AgentEventProgressMessage AgentEventType = "progressMessage"

	// Steering/follow-up delivery, ambient enrichment of §4.6 not present as
	// a distinct wire event in spec.md but useful for CLI/UI observability.
	AgentEventSteeringInjected AgentEventType = "steeringInjected"
	AgentEventFollowUpQueued   AgentEventType = "followUpQueued"
)

// StreamDeltaKind discriminates the three kinds of incremental content an
// assistant message streams.
type StreamDeltaKind string

const (
	StreamDeltaText         StreamDeltaKind = "text"
	StreamDeltaThinking     StreamDeltaKind = "thinking"
	StreamDeltaToolCallArgs StreamDeltaKind = "toolCallArgs"
)

// StreamDelta is one incremental chunk of a streaming assistant message.
type StreamDelta struct {
	Kind       StreamDeltaKind `json:"kind"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ArgsChunk  json.RawMessage `json:"argsChunk,omitempty"`
}

// MessageEventPayload covers MessageStart/MessageUpdate/MessageEnd.
// Delta is only set for MessageUpdate.
type MessageEventPayload struct {
	Message Message      `json:"message"`
	Delta   *StreamDelta `json:"delta,omitempty"`
}

// ToolEventPayload covers ToolExecutionStart/Update/End.
type ToolEventPayload struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`

	// Start only.
	Args json.RawMessage `json:"args,omitempty"`

	// Update only: a structured partial result surfaced mid-execution.
	PartialResult *Content `json:"partialResult,omitempty"`

	// End only.
	Result  *Message `json:"result,omitempty"`
	IsError bool     `json:"isError,omitempty"`
}

// ProgressPayload is free-text progress, distinct from a structured partial
// tool result (original_source's separation of ToolUpdateFn vs ProgressFn).
type ProgressPayload struct {
	ToolCallID string `json:"toolCallId"`
	Text       string `json:"text"`
}

// TurnEventPayload covers TurnEnd: the assistant message that closed the
// turn plus every tool-result message produced in response to it.
type TurnEventPayload struct {
	Message     Message   `json:"message"`
	ToolResults []Message `json:"toolResults,omitempty"`
}

// EndEventPayload covers AgentEnd: the full conversation at run completion.
type EndEventPayload struct {
	Messages []Message `json:"messages"`
}

// SteeringEventPayload describes steering/follow-up delivery.
type SteeringEventPayload struct {
	Content      string   `json:"content,omitempty"`
	Count        int      `json:"count,omitempty"`
	SkippedTools []string `json:"skippedTools,omitempty"`
}
