package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/agent/toolconv"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Bedrock implements agent.Provider against AWS Bedrock's ConverseStream API.
type Bedrock struct {
	client *bedrockruntime.Client
	region string
}

var _ agent.Provider = (*Bedrock)(nil)

// NewBedrock loads AWS credentials (static, if both provided, else the
// default chain: env, shared config, IAM role) and builds a Bedrock
// provider for the given region.
func NewBedrock(ctx context.Context, region, accessKeyID, secretAccessKey, sessionToken string) (*Bedrock, error) {
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}

	return &Bedrock{client: bedrockruntime.NewFromConfig(awsCfg), region: region}, nil
}

func (p *Bedrock) Name() string { return "bedrock" }

// Stream implements agent.Provider.
func (p *Bedrock) Stream(ctx context.Context, cfg agent.StreamConfig, sink agent.EventSink) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, agent.ClassifyCancelled(p.Name(), err)
	}
	if p.client == nil {
		return nil, agent.NewProviderError(agent.ErrorKindAPI, p.Name(), "bedrock client not initialized")
	}

	messages, err := p.convertMessages(cfg.Messages)
	if err != nil {
		return nil, agent.NewProviderError(agent.ErrorKindAPI, p.Name(), err.Error()).WithCause(err)
	}

	req := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(cfg.Model),
		Messages: messages,
	}
	if cfg.System != "" {
		req.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: cfg.System}}
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		req.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	}
	if len(cfg.Tools) > 0 {
		req.ToolConfig = toolconv.ToBedrockTools(cfg.Tools)
	}

	out, err := p.client.ConverseStream(ctx, req)
	if err != nil {
		return nil, classifyErrorText(p.Name(), err)
	}

	return p.processStream(out, cfg, sink)
}

func (p *Bedrock) convertMessages(msgs []models.Message) ([]types.Message, error) {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		var content []types.ContentBlock

		switch m.Role {
		case models.RoleUser, models.RoleAssistant:
			for _, c := range m.Content {
				switch c.Type {
				case models.ContentTypeText:
					if c.Text != "" {
						content = append(content, &types.ContentBlockMemberText{Value: c.Text})
					}
				case models.ContentTypeToolCall:
					var input any
					if err := json.Unmarshal(c.ToolCallArguments, &input); err != nil {
						input = map[string]any{}
					}
					content = append(content, &types.ContentBlockMemberToolUse{
						Value: types.ToolUseBlock{
							ToolUseId: aws.String(c.ToolCallID),
							Name:      aws.String(c.ToolCallName),
							Input:     document.NewLazyDocument(input),
						},
					})
				}
			}
			role := types.ConversationRoleUser
			if m.Role == models.RoleAssistant {
				role = types.ConversationRoleAssistant
			}
			if len(content) > 0 {
				out = append(out, types.Message{Role: role, Content: content})
			}

		case models.RoleToolResult:
			toolContent := []types.ToolResultContentBlock{
				&types.ToolResultContentBlockMemberText{Value: models.TextBlocks(m.Content)},
			}
			out = append(out, types.Message{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberToolResult{
					Value: types.ToolResultBlock{
						ToolUseId: aws.String(m.ToolCallID),
						Content:   toolContent,
					},
				}},
			})
		}
	}
	return out, nil
}

// processStream consumes the ConverseStream event channel, accumulating one
// tool call's input at a time (Bedrock streams content blocks strictly
// sequentially, unlike Anthropic's indexed blocks).
func (p *Bedrock) processStream(out *bedrockruntime.ConverseStreamOutput, cfg agent.StreamConfig, sink agent.EventSink) (*models.Message, error) {
	msg := models.Message{
		Role:      models.RoleAssistant,
		Model:     cfg.Model,
		Provider:  p.Name(),
		Timestamp: models.NowMillis(),
	}

	stream := out.GetStream()
	defer stream.Close()

	var toolID, toolName string
	var toolInput strings.Builder
	var text strings.Builder
	inTool := false

	for event := range stream.Events() {
		switch ev := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockStart:
			if tu, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
				inTool = true
				toolID = aws.ToString(tu.Value.ToolUseId)
				toolName = aws.ToString(tu.Value.Name)
				toolInput.Reset()
				sink.Send(models.AgentEvent{
					Type: models.AgentEventToolExecutionStart,
					Tool: &models.ToolEventPayload{ToolCallID: toolID, ToolName: toolName},
				})
			}

		case *types.ConverseStreamOutputMemberContentBlockDelta:
			switch delta := ev.Value.Delta.(type) {
			case *types.ContentBlockDeltaMemberText:
				if delta.Value != "" {
					text.WriteString(delta.Value)
					sink.Send(models.AgentEvent{
						Type: models.AgentEventMessageUpdate,
						Message: &models.MessageEventPayload{
							Message: msg,
							Delta:   &models.StreamDelta{Kind: models.StreamDeltaText, Text: delta.Value},
						},
					})
				}
			case *types.ContentBlockDeltaMemberToolUse:
				if delta.Value.Input != nil {
					toolInput.WriteString(*delta.Value.Input)
				}
			}

		case *types.ConverseStreamOutputMemberContentBlockStop:
			if inTool {
				args := json.RawMessage(toolInput.String())
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				msg.Content = append(msg.Content, models.ToolCallContent(toolID, toolName, args))
				inTool = false
			}

		case *types.ConverseStreamOutputMemberMessageStop:
			switch ev.Value.StopReason {
			case types.StopReasonToolUse:
				msg.StopReason = models.StopReasonToolUse
			case types.StopReasonMaxTokens:
				msg.StopReason = models.StopReasonLength
			default:
				msg.StopReason = models.StopReasonStop
			}

		case *types.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				msg.Usage.Input = uint64(aws.ToInt32(ev.Value.Usage.InputTokens))
				msg.Usage.Output = uint64(aws.ToInt32(ev.Value.Usage.OutputTokens))
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, classifyErrorText(p.Name(), err)
	}

	if text.Len() > 0 {
		msg.Content = append([]models.Content{models.TextContent(text.String())}, msg.Content...)
	}
	if msg.StopReason == "" {
		msg.StopReason = models.StopReasonStop
	}

	sink.Send(models.AgentEvent{
		Type:    models.AgentEventMessageEnd,
		Message: &models.MessageEventPayload{Message: msg},
	})
	return &msg, nil
}
