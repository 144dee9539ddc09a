package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/agent/toolconv"
	"github.com/haasonsaas/nexus/pkg/models"
)

// OpenAI implements agent.Provider against the Chat Completions streaming API.
type OpenAI struct {
	baseURL string
}

var _ agent.Provider = (*OpenAI)(nil)

// NewOpenAI builds an OpenAI provider. baseURL overrides the default API
// endpoint when non-empty (Azure and OpenAI-compatible proxies reuse this
// same client with a different base URL).
func NewOpenAI(baseURL string) *OpenAI {
	return &OpenAI{baseURL: baseURL}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) client(cfg agent.StreamConfig) *openai.Client {
	key := cfg.Credentials.APIKey
	if cfg.Credentials.BearerToken != "" {
		key = cfg.Credentials.BearerToken
	}
	oaiCfg := openai.DefaultConfig(key)
	if strings.TrimSpace(p.baseURL) != "" {
		oaiCfg.BaseURL = p.baseURL
	}
	return openai.NewClientWithConfig(oaiCfg)
}

// Stream implements agent.Provider.
func (p *OpenAI) Stream(ctx context.Context, cfg agent.StreamConfig, sink agent.EventSink) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, agent.ClassifyCancelled(p.Name(), err)
	}

	messages, err := p.convertMessages(cfg)
	if err != nil {
		return nil, agent.NewProviderError(agent.ErrorKindAPI, p.Name(), err.Error()).WithCause(err)
	}

	req := openai.ChatCompletionRequest{
		Model:    cfg.Model,
		Messages: messages,
		Stream:   true,
	}
	if cfg.MaxTokens > 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	if len(cfg.Tools) > 0 {
		req.Tools = toolconv.ToOpenAITools(cfg.Tools)
	}

	stream, err := p.client(cfg).CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, classifyErrorText(p.Name(), err)
	}
	defer stream.Close()

	return p.processStream(stream, cfg, sink)
}

func (p *OpenAI) convertMessages(cfg agent.StreamConfig) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(cfg.Messages)+1)
	if cfg.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: cfg.System})
	}

	for _, m := range cfg.Messages {
		switch m.Role {
		case models.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: models.TextBlocks(m.Content)})

		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: models.TextBlocks(m.Content)}
			for _, c := range m.Content {
				if c.Type != models.ContentTypeToolCall {
					continue
				}
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   c.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      c.ToolCallName,
						Arguments: string(c.ToolCallArguments),
					},
				})
			}
			out = append(out, oaiMsg)

		case models.RoleToolResult:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    models.TextBlocks(m.Content),
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return out, nil
}

// processStream consumes the Chat Completions SSE stream, accumulating
// tool-call argument fragments by index (matches the teacher's
// toolCalls-by-index accumulation, adapted to the agent.EventSink contract).
func (p *OpenAI) processStream(stream *openai.ChatCompletionStream, cfg agent.StreamConfig, sink agent.EventSink) (*models.Message, error) {
	msg := models.Message{
		Role:      models.RoleAssistant,
		Model:     cfg.Model,
		Provider:  p.Name(),
		Timestamp: models.NowMillis(),
	}

	type toolCallState struct {
		id   string
		name string
		args strings.Builder
	}
	toolCalls := map[int]*toolCallState{}
	var toolOrder []int
	var text strings.Builder

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, classifyErrorText(p.Name(), err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			text.WriteString(delta.Content)
			sink.Send(models.AgentEvent{
				Type: models.AgentEventMessageUpdate,
				Message: &models.MessageEventPayload{
					Message: msg,
					Delta:   &models.StreamDelta{Kind: models.StreamDeltaText, Text: delta.Content},
				},
			})
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			st, ok := toolCalls[idx]
			if !ok {
				st = &toolCallState{}
				toolCalls[idx] = st
				toolOrder = append(toolOrder, idx)
			}
			if tc.ID != "" {
				st.id = tc.ID
			}
			if tc.Function.Name != "" {
				st.name = tc.Function.Name
				sink.Send(models.AgentEvent{
					Type: models.AgentEventToolExecutionStart,
					Tool: &models.ToolEventPayload{ToolCallID: st.id, ToolName: st.name},
				})
			}
			if tc.Function.Arguments != "" {
				st.args.WriteString(tc.Function.Arguments)
				sink.Send(models.AgentEvent{
					Type: models.AgentEventMessageUpdate,
					Message: &models.MessageEventPayload{
						Message: msg,
						Delta: &models.StreamDelta{
							Kind:       models.StreamDeltaToolCallArgs,
							ToolCallID: st.id,
							ArgsChunk:  json.RawMessage(tc.Function.Arguments),
						},
					},
				})
			}
		}

		if resp.Usage != nil {
			msg.Usage.Input = uint64(resp.Usage.PromptTokens)
			msg.Usage.Output = uint64(resp.Usage.CompletionTokens)
		}

		switch choice.FinishReason {
		case openai.FinishReasonToolCalls:
			msg.StopReason = models.StopReasonToolUse
		case openai.FinishReasonLength:
			msg.StopReason = models.StopReasonLength
		case openai.FinishReasonStop, "":
		default:
			msg.StopReason = models.StopReasonStop
		}
	}

	if text.Len() > 0 {
		msg.Content = append(msg.Content, models.TextContent(text.String()))
	}
	for _, idx := range toolOrder {
		st := toolCalls[idx]
		args := json.RawMessage(st.args.String())
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		msg.Content = append(msg.Content, models.ToolCallContent(st.id, st.name, args))
	}
	if msg.StopReason == "" {
		msg.StopReason = models.StopReasonStop
		if len(toolOrder) > 0 {
			msg.StopReason = models.StopReasonToolUse
		}
	}

	sink.Send(models.AgentEvent{
		Type:    models.AgentEventMessageEnd,
		Message: &models.MessageEventPayload{Message: msg},
	})
	return &msg, nil
}
