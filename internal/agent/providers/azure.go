package providers

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/agent/toolconv"
	"github.com/haasonsaas/nexus/pkg/models"
)

// defaultAzureAPIVersion is used when StreamConfig doesn't carry one via
// Credentials.Extra["apiVersion"].
const defaultAzureAPIVersion = "2024-02-15-preview"

// Azure implements agent.Provider against Azure OpenAI Service, reusing
// OpenAI's Chat Completions streaming logic against Azure's client config
// (deployment-name-as-model, required api-version, resource endpoint).
type Azure struct {
	endpoint string
	delegate OpenAI
}

var _ agent.Provider = (*Azure)(nil)

// NewAzure builds an Azure OpenAI provider for the given resource endpoint,
// e.g. "https://my-resource.openai.azure.com".
func NewAzure(endpoint string) *Azure {
	return &Azure{endpoint: endpoint}
}

func (p *Azure) Name() string { return "azure" }

func (p *Azure) client(cfg agent.StreamConfig) *openai.Client {
	key := cfg.Credentials.APIKey
	if cfg.Credentials.BearerToken != "" {
		key = cfg.Credentials.BearerToken
	}
	azureCfg := openai.DefaultAzureConfig(key, p.endpoint)
	azureCfg.APIVersion = defaultAzureAPIVersion
	if v := cfg.Credentials.Extra["apiVersion"]; v != "" {
		azureCfg.APIVersion = v
	}
	return openai.NewClientWithConfig(azureCfg)
}

// Stream implements agent.Provider. The wire format is identical to plain
// OpenAI Chat Completions; only client construction differs (Azure resource
// endpoint + api-version query parameter instead of a bearer API key), so
// this delegates to OpenAI's message/stream conversion against an
// Azure-configured client.
func (p *Azure) Stream(ctx context.Context, cfg agent.StreamConfig, sink agent.EventSink) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, agent.ClassifyCancelled(p.Name(), err)
	}

	messages, err := p.delegate.convertMessages(cfg)
	if err != nil {
		return nil, agent.NewProviderError(agent.ErrorKindAPI, p.Name(), err.Error()).WithCause(err)
	}

	req := openai.ChatCompletionRequest{
		Model:    cfg.Model, // Azure deployment name
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

	msg, err := p.delegate.processStream(stream, cfg, sink)
	if msg != nil {
		msg.Provider = p.Name()
	}
	return msg, err
}
