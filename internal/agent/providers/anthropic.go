// Package providers implements agent.Provider against each vendor's wire
// protocol: Anthropic Messages SSE, OpenAI Chat Completions SSE, Azure
// OpenAI Chat Completions, Google Generative AI/Vertex, Bedrock ConverseStream,
// and an in-process Mock for tests.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/agent/toolconv"
	"github.com/haasonsaas/nexus/pkg/models"
)

// maxEmptyStreamEvents is the maximum number of consecutive SSE events that
// produce no visible output before the stream is treated as malformed.
const maxEmptyStreamEvents = 300

// oauthMarker identifies a Claude Code OAuth token, which needs a bearer
// Authorization header rather than a plain x-api-key header.
const oauthMarker = "sk-ant-oat"

// Anthropic implements agent.Provider against the Anthropic Messages API.
type Anthropic struct {
	baseURL string
}

var _ agent.Provider = (*Anthropic)(nil)

// NewAnthropic builds an Anthropic provider. baseURL overrides the default
// API endpoint when non-empty (used for proxies and testing).
func NewAnthropic(baseURL string) *Anthropic {
	return &Anthropic{baseURL: baseURL}
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) client(cfg agent.StreamConfig) anthropic.Client {
	opts := []option.RequestOption{p.authOption(cfg.Credentials)}
	if strings.TrimSpace(p.baseURL) != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	return anthropic.NewClient(opts...)
}

// authOption picks the OAuth bearer-token path versus the plain x-api-key
// path, matching original_source's is_oauth branch.
func (p *Anthropic) authOption(creds agent.Credentials) option.RequestOption {
	key := creds.APIKey
	if creds.BearerToken != "" {
		key = creds.BearerToken
	}
	if strings.Contains(key, oauthMarker) {
		return option.WithHeader("Authorization", "Bearer "+key)
	}
	return option.WithAPIKey(key)
}

// Stream implements agent.Provider.
func (p *Anthropic) Stream(ctx context.Context, cfg agent.StreamConfig, sink agent.EventSink) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, agent.ClassifyCancelled(p.Name(), err)
	}

	params, err := p.buildParams(cfg)
	if err != nil {
		return nil, agent.NewProviderError(agent.ErrorKindAPI, p.Name(), err.Error()).WithCause(err)
	}

	stream := p.client(cfg).Messages.NewStreaming(ctx, *params)
	msg, perr := p.processStream(stream, cfg, sink)
	if perr != nil {
		return nil, perr
	}
	return msg, nil
}

func (p *Anthropic) buildParams(cfg agent.StreamConfig) (*anthropic.MessageNewParams, error) {
	messages, err := p.convertMessages(cfg.Messages)
	if err != nil {
		return nil, fmt.Errorf("convert messages: %w", err)
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := &anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}

	cacheSystem, cacheLastTool, _ := cfg.Cache.AutoBreakpoints(len(cfg.Messages))

	if cfg.System != "" {
		block := anthropic.TextBlockParam{Type: "text", Text: cfg.System}
		if cacheSystem {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = []anthropic.TextBlockParam{block}
	}

	if len(cfg.Tools) > 0 {
		tools, err := toolconv.ToAnthropicTools(cfg.Tools)
		if err != nil {
			return nil, fmt.Errorf("convert tools: %w", err)
		}
		if cacheLastTool && len(tools) > 0 {
			if last := tools[len(tools)-1]; last.OfTool != nil {
				last.OfTool.CacheControl = anthropic.NewCacheControlEphemeralParam()
			}
		}
		params.Tools = tools
	}

	if cfg.Thinking != agent.ThinkingOff && cfg.Thinking != "" {
		budget := int64(cfg.ThinkingMax)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	return params, nil
}

// convertMessages maps the conversation history into Anthropic's
// MessageParam union. Like the teacher's non-beta conversion path, only
// text and tool call/result content survives into outgoing history; image
// and thinking blocks are not replayed.
func (p *Anthropic) convertMessages(msgs []models.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleUser:
			blocks, err := p.contentToBlocks(m.Content)
			if err != nil {
				return nil, err
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		case models.RoleAssistant:
			blocks, err := p.contentToBlocks(m.Content)
			if err != nil {
				return nil, err
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case models.RoleToolResult:
			text := models.TextBlocks(m.Content)
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, text, m.IsError)))
		}
	}
	return out, nil
}

func (p *Anthropic) contentToBlocks(content []models.Content) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(content))
	for _, c := range content {
		switch c.Type {
		case models.ContentTypeText:
			blocks = append(blocks, anthropic.NewTextBlock(c.Text))
		case models.ContentTypeToolCall:
			var input map[string]any
			if len(c.ToolCallArguments) > 0 {
				if err := json.Unmarshal(c.ToolCallArguments, &input); err != nil {
					return nil, fmt.Errorf("tool call %s arguments: %w", c.ToolCallID, err)
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(c.ToolCallID, input, c.ToolCallName))
		}
	}
	return blocks, nil
}

// processStream consumes the SSE stream, accumulating content blocks by
// index, and returns the finished assistant message (original_source's
// process_stream state machine, adapted to emit agent.EventSink events
// instead of a completion-chunk channel).
func (p *Anthropic) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], cfg agent.StreamConfig, sink agent.EventSink) (*models.Message, *agent.ProviderError) {
	msg := models.Message{
		Role:      models.RoleAssistant,
		Model:     cfg.Model,
		Provider:  p.Name(),
		Timestamp: models.NowMillis(),
	}

	type blockState struct {
		kind     models.ContentType
		text     strings.Builder
		toolID   string
		toolName string
	}
	blocks := map[int64]*blockState{}

	empty := 0
	for stream.Next() {
		event := stream.Current()
		handled := true

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			msg.Usage.Input = uint64(ms.Message.Usage.InputTokens)
			msg.Usage.CacheRead = uint64(ms.Message.Usage.CacheReadInputTokens)
			msg.Usage.CacheWrite = uint64(ms.Message.Usage.CacheCreationInputTokens)

		case "content_block_start":
			cbs := event.AsContentBlockStart()
			st := &blockState{kind: models.ContentTypeText}
			switch cbs.ContentBlock.Type {
			case "thinking":
				st.kind = models.ContentTypeThinking
			case "tool_use":
				tu := cbs.ContentBlock.AsToolUse()
				st.kind = models.ContentTypeToolCall
				st.toolID = tu.ID
				st.toolName = tu.Name
				sink.Send(models.AgentEvent{
					Type: models.AgentEventToolExecutionStart,
					Tool: &models.ToolEventPayload{ToolCallID: tu.ID, ToolName: tu.Name},
				})
			}
			blocks[cbs.Index] = st

		case "content_block_delta":
			cbd := event.AsContentBlockDelta()
			st := blocks[cbd.Index]
			if st == nil {
				break
			}
			switch cbd.Delta.Type {
			case "text_delta":
				if cbd.Delta.Text != "" {
					st.text.WriteString(cbd.Delta.Text)
					sink.Send(models.AgentEvent{
						Type: models.AgentEventMessageUpdate,
						Message: &models.MessageEventPayload{
							Message: msg,
							Delta:   &models.StreamDelta{Kind: models.StreamDeltaText, Text: cbd.Delta.Text},
						},
					})
				}
			case "thinking_delta":
				if cbd.Delta.Thinking != "" {
					st.text.WriteString(cbd.Delta.Thinking)
					sink.Send(models.AgentEvent{
						Type: models.AgentEventMessageUpdate,
						Message: &models.MessageEventPayload{
							Message: msg,
							Delta:   &models.StreamDelta{Kind: models.StreamDeltaThinking, Text: cbd.Delta.Thinking},
						},
					})
				}
			case "input_json_delta":
				if cbd.Delta.PartialJSON != "" {
					st.text.WriteString(cbd.Delta.PartialJSON)
					sink.Send(models.AgentEvent{
						Type: models.AgentEventMessageUpdate,
						Message: &models.MessageEventPayload{
							Message: msg,
							Delta: &models.StreamDelta{
								Kind:       models.StreamDeltaToolCallArgs,
								ToolCallID: st.toolID,
								ArgsChunk:  json.RawMessage(cbd.Delta.PartialJSON),
							},
						},
					})
				}
			default:
				handled = false
			}

		case "content_block_stop":
			cbs := event.AsContentBlockStop()
			st := blocks[cbs.Index]
			if st == nil {
				break
			}
			switch st.kind {
			case models.ContentTypeText:
				msg.Content = append(msg.Content, models.TextContent(st.text.String()))
			case models.ContentTypeThinking:
				msg.Content = append(msg.Content, models.ThinkingContent(st.text.String(), ""))
			case models.ContentTypeToolCall:
				args := json.RawMessage(st.text.String())
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				msg.Content = append(msg.Content, models.ToolCallContent(st.toolID, st.toolName, args))
				sink.Send(models.AgentEvent{
					Type: models.AgentEventToolExecutionUpdate,
					Tool: &models.ToolEventPayload{ToolCallID: st.toolID, ToolName: st.toolName, Args: args},
				})
			}
			delete(blocks, cbs.Index)

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				msg.Usage.Output = uint64(md.Usage.OutputTokens)
			}
			switch md.Delta.StopReason {
			case "tool_use":
				msg.StopReason = models.StopReasonToolUse
			case "max_tokens":
				msg.StopReason = models.StopReasonLength
			default:
				msg.StopReason = models.StopReasonStop
			}

		case "message_stop":
			sink.Send(models.AgentEvent{
				Type:    models.AgentEventMessageEnd,
				Message: &models.MessageEventPayload{Message: msg},
			})
			return &msg, nil

		case "ping":
			handled = false

		case "error":
			msg.StopReason = models.StopReasonError
			msg.ErrorMessage = "anthropic stream error"
			sink.Send(models.AgentEvent{
				Type:    models.AgentEventMessageEnd,
				Message: &models.MessageEventPayload{Message: msg},
			})
			return &msg, nil

		default:
			handled = false
		}

		if handled {
			empty = 0
		} else {
			empty++
			if empty >= maxEmptyStreamEvents {
				return nil, agent.NewProviderError(agent.ErrorKindAPI, p.Name(),
					fmt.Sprintf("stream appears malformed: %d consecutive empty events", empty))
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, p.classifyStreamErr(err)
	}
	return &msg, nil
}

// classifyStreamErr maps an SDK error into the canonical ProviderError
// taxonomy, preferring the HTTP status code carried on anthropic.Error when
// present (mirrors the teacher's wrapError).
func (p *Anthropic) classifyStreamErr(err error) *agent.ProviderError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return agent.ClassifyHTTPError(p.Name(), apiErr.StatusCode, apiErr.Error())
	}
	return classifyErrorText(p.Name(), err)
}
