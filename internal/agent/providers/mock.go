package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// MockResponse is one canned turn a Mock provider plays back: either plain
// text or a batch of tool calls.
type MockResponse struct {
	Text      string
	ToolCalls []MockToolCall
}

// MockToolCall is one tool invocation a Mock response asks the loop to run.
type MockToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// TextResponse builds a plain-text MockResponse.
func TextResponse(text string) MockResponse { return MockResponse{Text: text} }

// ToolCallResponse builds a MockResponse that asks for the given tool calls.
func ToolCallResponse(calls ...MockToolCall) MockResponse { return MockResponse{ToolCalls: calls} }

// Mock is a Provider that plays back a fixed sequence of responses without
// making any network call — the agent loop's test double.
type Mock struct {
	mu        sync.Mutex
	responses []MockResponse
}

var _ agent.Provider = (*Mock)(nil)

// NewMock builds a Mock that returns responses in order, then repeats a
// terminal "no more mock responses" text once exhausted.
func NewMock(responses ...MockResponse) *Mock {
	return &Mock{responses: responses}
}

// NewMockText is a convenience constructor for a Mock whose single response
// is the given text; later turns get the "no more mock responses" text.
func NewMockText(text string) *Mock {
	return &Mock{responses: []MockResponse{TextResponse(text)}}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) next() MockResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return TextResponse("(no more mock responses)")
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	return r
}

// Stream implements agent.Provider by replaying the next queued response,
// emitting the same event shape a real provider would for it.
func (m *Mock) Stream(ctx context.Context, cfg agent.StreamConfig, sink agent.EventSink) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, agent.ClassifyCancelled(m.Name(), err)
	}

	resp := m.next()
	msg := models.Message{
		Role:      models.RoleAssistant,
		Model:     "mock",
		Provider:  m.Name(),
		Timestamp: models.NowMillis(),
	}

	if len(resp.ToolCalls) > 0 {
		msg.StopReason = models.StopReasonToolUse
		for i, call := range resp.ToolCalls {
			id := fmt.Sprintf("mock-tool-%d", i)
			sink.Send(models.AgentEvent{
				Type: models.AgentEventToolExecutionStart,
				Tool: &models.ToolEventPayload{ToolCallID: id, ToolName: call.Name, Args: call.Arguments},
			})
			msg.Content = append(msg.Content, models.ToolCallContent(id, call.Name, call.Arguments))
		}
	} else {
		msg.StopReason = models.StopReasonStop
		msg.Content = []models.Content{models.TextContent(resp.Text)}
		sink.Send(models.AgentEvent{
			Type: models.AgentEventMessageUpdate,
			Message: &models.MessageEventPayload{
				Message: msg,
				Delta:   &models.StreamDelta{Kind: models.StreamDeltaText, Text: resp.Text},
			},
		})
	}

	sink.Send(models.AgentEvent{
		Type:    models.AgentEventMessageEnd,
		Message: &models.MessageEventPayload{Message: msg},
	})

	return &msg, nil
}
