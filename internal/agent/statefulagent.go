package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/haasonsaas/nexus/pkg/models"
)

// AgentConfig configures a persistent Agent (spec §4.6): the system prompt,
// model id, session id, and the loop tunables that govern every Prompt call.
// Credentials, Thinking, MaxTokens and Cache are stored but not passed to
// the provider: every request the loop makes carries no credentials, no
// thinking level, no max-token limit, and the Auto cache strategy.
type AgentConfig struct {
	SessionID    string
	SystemPrompt string
	Model        string
	Credentials  Credentials
	Thinking     ThinkingLevel
	MaxTokens    int
	Cache        CacheStrategy
	Loop         LoopConfig
}

// Agent owns everything one conversation needs across repeated turns: the
// system prompt, model, credentials, the conversation vector (LLM messages
// and opaque host extensions, spec §6 Persistence), a tool list, a
// provider, the steering/follow-up queues, and the current run's
// cancellation token. Exactly one Prompt/PromptMessages call may be in
// flight at a time; a second concurrent call is rejected rather than
// racing the conversation vector (spec §5: "is_streaming enforces
// single-writer access").
type Agent struct {
	mu sync.Mutex

	provider Provider
	registry *ToolRegistry
	loop     *AgenticLoop
	cfg      AgentConfig

	conversation []models.AgentMessage
	steering     *SteeringQueues

	isStreaming bool
	cancel      context.CancelFunc
}

// NewAgent builds an Agent around a provider and tool registry. A nil
// registry is treated as empty.
func NewAgent(provider Provider, registry *ToolRegistry, cfg AgentConfig) *Agent {
	if registry == nil {
		registry = NewToolRegistry()
	}
	loop := NewAgenticLoop(provider, registry, cfg.Loop)
	loop.SetDefaultModel(cfg.Model)
	loop.SetDefaultSystem(cfg.SystemPrompt)
	return &Agent{
		provider: provider,
		registry: registry,
		loop:     loop,
		cfg:      cfg,
		steering: NewSteeringQueues(),
	}
}

// RegisterTool adds a tool to the agent's registry.
func (a *Agent) RegisterTool(t Tool) error { return a.registry.Register(t) }

// SetTracer overrides the underlying loop's OpenTelemetry tracer.
func (a *Agent) SetTracer(tr *Tracer) { a.loop.SetTracer(tr) }

// WithIdentity prepends a persona preamble rendered from id to the agent's
// system prompt. A nil or empty Identity is a no-op. Returns the receiver
// for chaining after NewAgent.
func (a *Agent) WithIdentity(id *Identity) *Agent {
	if id == nil || !id.HasValues() {
		return a
	}
	preamble := identityPreamble(id)
	if preamble == "" {
		return a
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.SystemPrompt == "" {
		a.cfg.SystemPrompt = preamble
	} else {
		a.cfg.SystemPrompt = preamble + "\n\n" + a.cfg.SystemPrompt
	}
	a.loop.SetDefaultSystem(a.cfg.SystemPrompt)
	return a
}

func identityPreamble(id *Identity) string {
	var b strings.Builder
	if id.Name != "" {
		fmt.Fprintf(&b, "You are %s", id.Name)
		if id.Creature != "" {
			fmt.Fprintf(&b, ", a %s", id.Creature)
		}
		b.WriteString(".")
	} else if id.Creature != "" {
		fmt.Fprintf(&b, "You are a %s.", id.Creature)
	}
	if id.Vibe != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "Your tone is %s.", id.Vibe)
	}
	return b.String()
}

// Steer enqueues a message that interrupts the current run at the next
// steering checkpoint (before each turn, or between/after tool calls).
func (a *Agent) Steer(text string) { a.steering.Steer(text) }

// FollowUp enqueues a message delivered once the current run would
// otherwise stop. Steering always takes priority over follow-ups.
func (a *Agent) FollowUp(text string) { a.steering.FollowUp(text) }

// InjectExtension appends a host-specific extension message (never sent to
// the model) to the conversation vector, e.g. a UI notification or
// control-plane marker.
func (a *Agent) InjectExtension(kind string, data any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conversation = append(a.conversation, models.NewExtensionMessage(kind, data))
}

// IsStreaming reports whether a Prompt/PromptMessages call is currently in
// flight.
func (a *Agent) IsStreaming() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isStreaming
}

// Prompt appends a plain-text user message and runs the loop to completion.
func (a *Agent) Prompt(ctx context.Context, sink EventSink, text string) ([]models.Message, error) {
	return a.PromptMessages(ctx, sink, []models.Message{models.NewUserMessage(text)})
}

// PromptMessages asserts the agent isn't already streaming, appends the
// given messages to the conversation, and runs the turn loop to completion
// (or to a limit, error, or cancellation), sending every event to sink. It
// returns the messages the loop appended this call: everything produced by
// the run, not the given messages themselves.
func (a *Agent) PromptMessages(ctx context.Context, sink EventSink, messages []models.Message) ([]models.Message, error) {
	a.mu.Lock()
	if a.isStreaming {
		a.mu.Unlock()
		return nil, fmt.Errorf("agent: prompt already in progress")
	}
	a.isStreaming = true
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	for _, m := range messages {
		a.conversation = append(a.conversation, models.LlmMessage(m))
	}
	prior := a.llmMessagesLocked()
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.isStreaming = false
		a.cancel = nil
		a.mu.Unlock()
	}()

	updated, err := a.loop.Run(runCtx, sink, a.cfg.SessionID, prior, a.steering)
	if err != nil {
		return nil, err
	}

	appended := updated
	if len(updated) >= len(prior) {
		appended = updated[len(prior):]
	}

	a.mu.Lock()
	for _, m := range appended {
		a.conversation = append(a.conversation, models.LlmMessage(m))
	}
	a.mu.Unlock()

	return appended, nil
}

// Abort trips the current run's cancellation token, if one is in flight. A
// no-op when the agent isn't streaming.
func (a *Agent) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Reset clears the conversation vector and both message queues.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conversation = nil
	a.steering = NewSteeringQueues()
}

// Conversation returns a snapshot of the full conversation vector, LLM
// messages and extensions both.
func (a *Agent) Conversation() []models.AgentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.AgentMessage, len(a.conversation))
	copy(out, a.conversation)
	return out
}

func (a *Agent) llmMessagesLocked() []models.Message {
	var out []models.Message
	for _, am := range a.conversation {
		if m, ok := am.AsLLM(); ok {
			out = append(out, m)
		}
	}
	return out
}

// Save serializes the conversation vector to JSON (spec §6 Persistence):
// LLM messages survive, extensions survive as opaque blobs.
func (a *Agent) Save() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return json.Marshal(a.conversation)
}

// Restore replaces the conversation vector from a JSON blob produced by
// Save. Fails closed: on a malformed blob the existing conversation is left
// untouched.
func (a *Agent) Restore(data []byte) error {
	var conv []models.AgentMessage
	if err := json.Unmarshal(data, &conv); err != nil {
		return fmt.Errorf("agent: restore: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conversation = conv
	return nil
}
