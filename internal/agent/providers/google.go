// Package providers implements LLM provider integrations for the Nexus agent framework.
//
// This file implements the Google/Gemini provider using the Google Gen AI Go SDK,
// covering both the direct Gemini API (API-key auth) and Vertex AI (OAuth2 bearer
// token auth, project/location routing).
package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/genai"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/agent/toolconv"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Google implements agent.Provider against Gemini's streamGenerateContent API,
// either directly (Generative AI, API-key auth) or via Vertex AI (OAuth2 bearer
// token, project/location routing). Text across the stream accumulates into a
// single running content block; each function call gets its own block, mirroring
// how Gemini reports them one part at a time rather than as indexed deltas.
type Google struct {
	backend  genai.Backend
	project  string
	location string
}

var _ agent.Provider = (*Google)(nil)

// NewGoogleGenAI builds a provider against the direct Gemini API.
// StreamConfig.Credentials.APIKey supplies the API key per request.
func NewGoogleGenAI() *Google {
	return &Google{backend: genai.BackendGeminiAPI}
}

// NewGoogleVertex builds a provider against Vertex AI for the given GCP
// project and region. StreamConfig.Credentials.BearerToken supplies the
// OAuth2 access token per request; callers are responsible for obtaining it
// (e.g. via a service account JWT exchange).
func NewGoogleVertex(project, location string) *Google {
	return &Google{backend: genai.BackendVertexAI, project: project, location: location}
}

func (p *Google) Name() string {
	if p.backend == genai.BackendVertexAI {
		return "google-vertex"
	}
	return "google"
}

func (p *Google) client(ctx context.Context, cfg agent.StreamConfig) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{Backend: p.backend}
	switch p.backend {
	case genai.BackendVertexAI:
		clientCfg.Project = p.project
		clientCfg.Location = p.location
		if cfg.Credentials.BearerToken != "" {
			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Credentials.BearerToken})
			clientCfg.HTTPClient = oauth2.NewClient(ctx, ts)
		}
	default:
		clientCfg.APIKey = cfg.Credentials.APIKey
	}
	return genai.NewClient(ctx, clientCfg)
}

// Stream implements agent.Provider.
func (p *Google) Stream(ctx context.Context, cfg agent.StreamConfig, sink agent.EventSink) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, agent.ClassifyCancelled(p.Name(), err)
	}

	client, err := p.client(ctx, cfg)
	if err != nil {
		return nil, agent.NewProviderError(agent.ErrorKindAPI, p.Name(), err.Error()).WithCause(err)
	}

	contents, err := p.convertMessages(cfg.Messages)
	if err != nil {
		return nil, agent.NewProviderError(agent.ErrorKindAPI, p.Name(), err.Error()).WithCause(err)
	}

	streamIter := client.Models.GenerateContentStream(ctx, cfg.Model, contents, p.buildConfig(cfg))
	return p.processStream(ctx, streamIter, cfg, sink)
}

func (p *Google) convertMessages(msgs []models.Message) ([]*genai.Content, error) {
	var out []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case models.RoleUser, models.RoleAssistant:
			parts, err := contentToParts(m.Content)
			if err != nil {
				return nil, err
			}
			if len(parts) == 0 {
				continue
			}
			role := genai.RoleUser
			if m.Role == models.RoleAssistant {
				role = genai.RoleModel
			}
			out = append(out, &genai.Content{Role: role, Parts: parts})

		case models.RoleToolResult:
			out = append(out, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     m.ToolName,
						Response: map[string]any{"result": models.TextBlocks(m.Content)},
					},
				}},
			})
		}
	}
	return out, nil
}

func contentToParts(blocks []models.Content) ([]*genai.Part, error) {
	var parts []*genai.Part
	for _, c := range blocks {
		switch c.Type {
		case models.ContentTypeText:
			if c.Text != "" {
				parts = append(parts, &genai.Part{Text: c.Text})
			}
		case models.ContentTypeImage:
			data, err := base64.StdEncoding.DecodeString(c.ImageData)
			if err != nil {
				return nil, fmt.Errorf("google: decode image data: %w", err)
			}
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: c.ImageMimeType}})
		case models.ContentTypeToolCall:
			var args map[string]any
			if err := json.Unmarshal(c.ToolCallArguments, &args); err != nil {
				args = map[string]any{}
			}
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: c.ToolCallName, Args: args}})
		}
	}
	return parts, nil
}

func (p *Google) buildConfig(cfg agent.StreamConfig) *genai.GenerateContentConfig {
	genCfg := &genai.GenerateContentConfig{}
	if cfg.System != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.System}}}
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		genCfg.MaxOutputTokens = int32(maxTokens)
	}
	if len(cfg.Tools) > 0 {
		genCfg.Tools = toolconv.ToGeminiTools(cfg.Tools)
	}
	return genCfg
}

// processStream consumes the Go 1.23 iterator the SDK returns for
// streamGenerateContent, accumulating text into a single running block (Gemini
// re-sends the full candidate list per chunk, not indexed deltas) and each
// function call into its own block, in the order first seen.
func (p *Google) processStream(ctx context.Context, streamIter iter.Seq2[*genai.GenerateContentResponse, error], cfg agent.StreamConfig, sink agent.EventSink) (*models.Message, error) {
	msg := models.Message{
		Role:      models.RoleAssistant,
		Model:     cfg.Model,
		Provider:  p.Name(),
		Timestamp: models.NowMillis(),
	}

	var text strings.Builder
	sawToolCall := false

	for resp, err := range streamIter {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, agent.ClassifyCancelled(p.Name(), ctxErr)
		}
		if err != nil {
			return nil, classifyErrorText(p.Name(), err)
		}
		if resp == nil {
			continue
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}

			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}

				if part.Text != "" {
					text.WriteString(part.Text)
					sink.Send(models.AgentEvent{
						Type: models.AgentEventMessageUpdate,
						Message: &models.MessageEventPayload{
							Message: msg,
							Delta:   &models.StreamDelta{Kind: models.StreamDeltaText, Text: part.Text},
						},
					})
				}

				if part.FunctionCall != nil {
					argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
					if jsonErr != nil {
						argsJSON = []byte("{}")
					}
					id := fmt.Sprintf("%s-fc-%d", p.Name(), len(msg.Content))
					sink.Send(models.AgentEvent{
						Type: models.AgentEventToolExecutionStart,
						Tool: &models.ToolEventPayload{ToolCallID: id, ToolName: part.FunctionCall.Name},
					})
					msg.Content = append(msg.Content, models.ToolCallContent(id, part.FunctionCall.Name, argsJSON))
					sawToolCall = true
				}
			}

			switch string(candidate.FinishReason) {
			case "STOP":
				msg.StopReason = models.StopReasonStop
			case "MAX_TOKENS", "RECITATION":
				msg.StopReason = models.StopReasonLength
			case "":
			default:
				msg.StopReason = models.StopReasonStop
			}
		}

		if resp.UsageMetadata != nil {
			msg.Usage.Input = uint64(resp.UsageMetadata.PromptTokenCount)
			msg.Usage.Output = uint64(resp.UsageMetadata.CandidatesTokenCount)
			msg.Usage.TotalTokens = uint64(resp.UsageMetadata.TotalTokenCount)
			msg.Usage.CacheRead = uint64(resp.UsageMetadata.CachedContentTokenCount)
		}
	}

	if sawToolCall {
		msg.StopReason = models.StopReasonToolUse
	}
	if msg.StopReason == "" {
		msg.StopReason = models.StopReasonStop
	}
	if text.Len() > 0 {
		msg.Content = append([]models.Content{models.TextContent(text.String())}, msg.Content...)
	}

	sink.Send(models.AgentEvent{
		Type:    models.AgentEventMessageEnd,
		Message: &models.MessageEventPayload{Message: msg},
	})
	return &msg, nil
}
