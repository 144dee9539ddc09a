package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/nexus/pkg/models"
)

// DefaultSubAgentMaxTurns is the turn limit a sub-agent runs under absent
// an explicit override (spec §4.7).
const DefaultSubAgentMaxTurns = 10

// SubAgentConfig configures a sub-agent-as-tool (spec §4.7): an
// independent agent, wrapped behind the Tool interface, that a parent
// loop can invoke like any other tool. Credentials, Thinking, MaxTokens and
// Cache are not passed to the sub-agent's provider: its requests carry no
// credentials, no thinking level, no max-token limit, and the Auto cache
// strategy.
type SubAgentConfig struct {
	Name         string
	Description  string
	SystemPrompt string
	Model        string
	Credentials  Credentials
	Provider     Provider
	Tools        []Tool
	Thinking     ThinkingLevel
	MaxTokens    int
	Cache        CacheStrategy
	Strategy     ToolExecutionStrategy
	Retries      RetryConfig
	MaxTurns     int
}

var subAgentParamsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"task": {"type": "string", "description": "The task to hand to the sub-agent."}
	},
	"required": ["task"]
}`)

type subAgentParams struct {
	Task string `json:"task"`
}

// SubAgentTool wraps a SubAgentConfig as a Tool: each Execute call starts a
// fresh conversation, injects the task as a User prompt, runs it to
// completion under its own config, and returns the concatenated text of the
// run's last message as the tool result. When the turn or tool-call limit
// ends the run, that last message is the loop's "[Agent stopped: ...]" user
// marker, not an assistant reply.
type SubAgentTool struct {
	cfg SubAgentConfig
}

var _ Tool = (*SubAgentTool)(nil)

// NewSubAgentTool builds a sub-agent tool. MaxTurns defaults to
// DefaultSubAgentMaxTurns when zero or negative.
func NewSubAgentTool(cfg SubAgentConfig) *SubAgentTool {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultSubAgentMaxTurns
	}
	return &SubAgentTool{cfg: cfg}
}

func (t *SubAgentTool) Name() string        { return t.cfg.Name }
func (t *SubAgentTool) Label() string       { return t.cfg.Name }
func (t *SubAgentTool) Description() string { return t.cfg.Description }

func (t *SubAgentTool) ParametersSchema() json.RawMessage { return subAgentParamsSchema }

// Execute runs a fresh sub-agent conversation to completion. ctx is already
// the parent's tool-call cancellation token (itself a child of the parent
// loop's root token), so cancelling the parent cancels the sub-agent run
// too — no separate token is created (spec §4.7, §5 Cancellation). The
// sub-agent's text deltas are forwarded to the parent via tc.Update, and
// its tool starts and progress messages via tc.Report, so nested activity
// surfaces on the parent's own event stream; its other events are dropped.
func (t *SubAgentTool) Execute(ctx context.Context, params json.RawMessage, tc ToolContext) (ToolResult, *ToolError) {
	var p subAgentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return ToolResult{}, NewToolError(ToolErrorInvalidArgs, fmt.Sprintf("invalid sub-agent params: %s", err))
	}
	if p.Task == "" {
		return ToolResult{}, NewToolError(ToolErrorInvalidArgs, "task is required")
	}
	if t.cfg.Provider == nil {
		return ToolResult{}, ToolErrorFailedf("sub-agent %q has no provider configured", t.cfg.Name)
	}

	registry := NewToolRegistry()
	for _, tool := range t.cfg.Tools {
		if err := registry.Register(tool); err != nil {
			return ToolResult{}, ToolErrorFailedf("sub-agent %q: register tool %q: %s", t.cfg.Name, tool.Name(), err)
		}
	}

	loopCfg := DefaultLoopConfig()
	if t.cfg.Strategy.Kind != "" {
		loopCfg.Strategy = t.cfg.Strategy
	}
	if t.cfg.Retries.MaxRetries > 0 || t.cfg.Retries.InitialDelay > 0 {
		loopCfg.Retry = t.cfg.Retries
	}
	loopCfg.Limits.MaxTurns = t.cfg.MaxTurns

	loop := NewAgenticLoop(t.cfg.Provider, registry, loopCfg)
	loop.SetDefaultModel(t.cfg.Model)
	loop.SetDefaultSystem(t.cfg.SystemPrompt)

	sink := EventSinkFunc(func(ev models.AgentEvent) { forwardSubAgentEvent(tc, ev) })

	messages := []models.Message{models.NewUserMessage(p.Task)}
	result, err := loop.Run(ctx, sink, tc.SessionID, messages, nil)
	if err != nil {
		return ToolResult{}, ToolErrorFailedf("sub-agent %q: %s", t.cfg.Name, err)
	}
	if len(result) == 0 {
		return ToolResult{}, ToolErrorFailedf("sub-agent %q produced no messages", t.cfg.Name)
	}

	final := result[len(result)-1]
	switch final.StopReason {
	case models.StopReasonError:
		return ToolResult{}, ToolErrorFailedf("sub-agent %q: %s", t.cfg.Name, final.ErrorMessage)
	case models.StopReasonAborted:
		return ToolResult{}, NewToolError(ToolErrorCancelled, fmt.Sprintf("sub-agent %q: cancelled", t.cfg.Name))
	}

	return TextToolResult(final.Text()), nil
}

// forwardSubAgentEvent relays a sub-agent's internal event onto the
// parent's tool-call callbacks (spec §4.7: "sub-agent events are forwarded
// to the parent via the partial-result callback").
func forwardSubAgentEvent(tc ToolContext, ev models.AgentEvent) {
	switch ev.Type {
	case models.AgentEventMessageUpdate:
		if ev.Message != nil && ev.Message.Delta != nil && ev.Message.Delta.Kind == models.StreamDeltaText {
			tc.Update(models.TextContent(ev.Message.Delta.Text))
		}
	case models.AgentEventToolExecutionStart:
		if ev.Tool != nil {
			tc.Report(fmt.Sprintf("sub-agent: calling %s", ev.Tool.ToolName))
		}
	case models.AgentEventProgressMessage:
		if ev.Progress != nil {
			tc.Report(ev.Progress.Text)
		}
	}
}
