package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	agentcontext "github.com/haasonsaas/nexus/internal/agent/context"
	"github.com/haasonsaas/nexus/pkg/models"
)

// TurnContext is passed to the BeforeTurn/AfterTurn hooks.
type TurnContext struct {
	RunID      string
	TurnIndex  int
	Messages   []models.Message
}

// AgenticLoop implements the turn-by-turn agent state machine (spec §4.4).
//
// The loop is two nested cycles: an outer cycle that drains queued
// follow-up messages once the assistant stops asking for tools, and an
// inner cycle that runs exactly one turn — stream a response, run any tool
// calls it asked for, append the results, repeat.
//
//	outer: while conversation not done
//	  inner: while assistant keeps calling tools
//	    check cancel → drain steering → check limits → before_turn hook
//	    → compact → stream_with_retry → append assistant message
//	    → if stop_reason ∈ {Error, Aborted}: end the run (no follow-ups)
//	    → extract tool calls; none → break inner
//	    → scheduler.Run → append tool results → after_turn hook → TurnEnd
//	  if follow-ups queued: inject them, continue outer
//	  else: done
type AgenticLoop struct {
	provider  Provider
	registry  *ToolRegistry
	executor  *Executor
	scheduler *Scheduler
	config    LoopConfig
	tracer    *Tracer

	defaultModel  string
	defaultSystem string
}

func NewAgenticLoop(provider Provider, registry *ToolRegistry, config LoopConfig) *AgenticLoop {
	if registry == nil {
		registry = NewToolRegistry()
	}
	executor := NewExecutor(registry, DefaultExecutorConfig())
	executor.tracer = NewTracer(nil)
	return &AgenticLoop{
		provider: provider,
		registry: registry,
		executor: executor,
		config:   config,
		tracer:   NewTracer(nil),
	}
}

func (l *AgenticLoop) SetDefaultModel(model string)   { l.defaultModel = model }
func (l *AgenticLoop) SetDefaultSystem(system string) { l.defaultSystem = system }
func (l *AgenticLoop) ConfigureTool(name string, cfg *ToolConfig) { l.executor.ConfigureTool(name, cfg) }
func (l *AgenticLoop) RegisterTool(t Tool) error { return l.registry.Register(t) }

// SetTracer overrides the loop's and its executor's OpenTelemetry tracer.
// Pass nil to disable spans (equivalent to not configuring a TracerProvider).
func (l *AgenticLoop) SetTracer(tr *Tracer) {
	l.tracer = tr
	l.executor.tracer = tr
}

// Run drives the loop to completion (or to a limit/cancellation) starting
// from an existing conversation, emitting every event on sink. It returns
// the full, updated conversation.
func (l *AgenticLoop) Run(ctx context.Context, sink EventSink, sessionID string, messages []models.Message, steering *SteeringQueues) ([]models.Message, error) {
	if l.provider == nil {
		return messages, fmt.Errorf("agent: no provider configured")
	}
	if sink == nil {
		sink = EventSinkFunc(func(models.AgentEvent) {})
	}
	if l.scheduler == nil {
		l.scheduler = NewScheduler(l.executor, sink)
	}

	runCtx := ctx
	if l.config.Limits.MaxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.config.Limits.MaxDuration)
		defer cancel()
	}

	messages = repairTranscript(messages)

	runID := uuid.NewString()
	tracker := &agentcontext.Tracker{}
	sink.Send(models.AgentEvent{Type: models.AgentEventAgentStart, RunID: runID})

	turns := 0
	toolCalls := 0

outer:
	for {
		for {
			select {
			case <-runCtx.Done():
				messages = append(messages, syntheticMessage(
					ClassifyCancelled(l.provider.Name(), runCtx.Err()), models.StopReasonAborted))
				break outer
			default:
			}

			sink.Send(models.AgentEvent{Type: models.AgentEventTurnStart, RunID: runID})

			if steering != nil {
				for _, text := range steering.DrainSteering(l.config.SteeringDelivery) {
					messages = append(messages, models.NewUserMessage(text))
					sink.Send(models.AgentEvent{Type: models.AgentEventSteeringInjected, RunID: runID,
						Steering: &models.SteeringEventPayload{Content: text}})
				}
			}

			turns++
			if turns > l.config.Limits.MaxTurns {
				messages = append(messages, models.NewUserMessage("[Agent stopped: max turns reached]"))
				break outer
			}
			if l.config.Limits.MaxToolCalls > 0 && toolCalls > l.config.Limits.MaxToolCalls {
				messages = append(messages, models.NewUserMessage("[Agent stopped: max tool calls reached]"))
				break outer
			}

			tc := &TurnContext{RunID: runID, TurnIndex: turns, Messages: messages}
			if l.config.BeforeTurn != nil {
				if err := l.config.BeforeTurn(tc); err != nil {
					messages = append(messages, models.NewUserMessage(fmt.Sprintf("[Agent stopped: %s]", err)))
					break outer
				}
			}

			compacted := agentcontext.CompactMessages(messages, agentcontext.Config{
				MaxContextTokens:   l.config.Context.MaxContextTokens,
				SystemPromptTokens: l.config.Context.SystemPromptTokens,
				KeepRecent:         l.config.Context.KeepRecent,
				KeepFirst:          l.config.Context.KeepFirst,
				ToolOutputMaxLines: l.config.Context.ToolOutputMaxLines,
			})

			turnCtx, endTurn := l.tracer.StartTurn(runCtx, runID, turns)
			assistantMsg := l.streamWithRetry(turnCtx, sink, compacted, tracker, len(messages))
			messages = append(messages, assistantMsg)

			if assistantMsg.StopReason == models.StopReasonError || assistantMsg.StopReason == models.StopReasonAborted {
				endTurn(fmt.Errorf("%s", assistantMsg.ErrorMessage))
				break outer
			}

			calls := ToolCallRequestsFromMessage(assistantMsg)
			if len(calls) == 0 {
				endTurn(nil)
				break
			}
			toolCalls += len(calls)

			resolver, pol, _ := toolPolicyFromContext(turnCtx)
			calls, denied := l.registry.splitByPolicy(resolver, pol, calls)
			messages = append(messages, denied...)

			results := l.scheduler.Run(turnCtx, l.config.Strategy, calls, sessionID, steering)
			messages = append(messages, results...)

			if l.config.AfterTurn != nil {
				l.config.AfterTurn(tc)
			}
			sink.Send(models.AgentEvent{Type: models.AgentEventTurnEnd, RunID: runID,
				Turn: &models.TurnEventPayload{Message: assistantMsg, ToolResults: results}})
			endTurn(nil)
		}

		if steering != nil {
			followUps := steering.DrainFollowUp(l.config.FollowUpDelivery)
			if len(followUps) > 0 {
				for _, text := range followUps {
					messages = append(messages, models.NewUserMessage(text))
				}
				continue outer
			}
		}
		break
	}

	sink.Send(models.AgentEvent{Type: models.AgentEventAgentEnd, RunID: runID,
		End: &models.EndEventPayload{Messages: messages}})
	return messages, nil
}

// streamWithRetry calls the provider, retrying retryable ProviderErrors with
// exponential backoff (spec §4.4, delay formula grounded on retry.go).
// Cancelled and ContextOverflow errors are never retried. A terminal
// non-retryable error is not returned as a Go error — it is synthesized
// into an Assistant message with StopReason=Error and ErrorMessage set, so
// the loop always has a message to append and the caller always sees a
// well-formed conversation (resolving the loop's handling of a non-retryable
// provider failure without hard-failing the whole run).
func (l *AgenticLoop) streamWithRetry(ctx context.Context, sink EventSink, messages []models.Message, tracker *agentcontext.Tracker, messageIndex int) models.Message {
	resolver, pol, _ := toolPolicyFromContext(ctx)
	model := l.defaultModel
	if override, ok := modelFromContext(ctx); ok {
		model = override
	}
	system := l.defaultSystem
	if override, ok := systemPromptFromContext(ctx); ok {
		system = override
	}

	cfg := l.config.Retry
	attempt := 0
	for {
		attempt++
		scfg := StreamConfig{
			Provider:  l.provider.Name(),
			Model:     model,
			System:    system,
			Messages:  messages,
			Tools:     l.registry.FilteredDefinitions(resolver, pol),
			Cache:     CacheStrategy{Mode: CacheAuto},
		}

		streamCtx, endStream := l.tracer.StartStream(ctx, l.provider.Name(), model, attempt)
		msg, err := l.provider.Stream(streamCtx, scfg, sink)
		endStream(err)
		if err == nil {
			tracker.RecordUsage(msg.Usage, messageIndex)
			return *msg
		}

		perr, ok := err.(*ProviderError)
		if !ok {
			perr = NewProviderError(ErrorKindOther, l.provider.Name(), err.Error()).WithCause(err)
		}

		if perr.Kind == ErrorKindCancelled {
			return syntheticMessage(perr, models.StopReasonAborted)
		}
		if perr.Kind == ErrorKindContextOverflow {
			return syntheticMessage(perr, models.StopReasonError)
		}
		if !perr.IsRetryable() || attempt > cfg.MaxRetries {
			if l.config.OnError != nil {
				l.config.OnError(perr)
			}
			return syntheticMessage(perr, models.StopReasonError)
		}

		delay := delayForAttempt(cfg, attempt)
		if ra := perr.RetryAfter(); ra != nil {
			delay = time.Duration(*ra) * time.Millisecond
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return syntheticMessage(ClassifyCancelled(l.provider.Name(), ctx.Err()), models.StopReasonAborted)
		}
	}
}

func syntheticMessage(perr *ProviderError, stopReason models.StopReason) models.Message {
	return models.Message{
		Role:         models.RoleAssistant,
		Content:      []models.Content{models.TextContent("")},
		StopReason:   stopReason,
		Provider:     perr.Provider,
		ErrorMessage: perr.Message,
		Timestamp:    models.NowMillis(),
	}
}
