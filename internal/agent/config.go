package agent

import (
	"context"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ToolExecutionStrategyKind selects how the scheduler runs a turn's tool
// calls (spec §4.3).
type ToolExecutionStrategyKind string

const (
	StrategySequential ToolExecutionStrategyKind = "sequential"
	StrategyParallel   ToolExecutionStrategyKind = "parallel"
	StrategyBatched    ToolExecutionStrategyKind = "batched"
)

// ToolExecutionStrategy configures the scheduler. BatchSize is only used
// when Kind == StrategyBatched.
type ToolExecutionStrategy struct {
	Kind      ToolExecutionStrategyKind
	BatchSize int
}

func SequentialStrategy() ToolExecutionStrategy {
	return ToolExecutionStrategy{Kind: StrategySequential}
}

func ParallelStrategy() ToolExecutionStrategy {
	return ToolExecutionStrategy{Kind: StrategyParallel}
}

func BatchedStrategy(size int) ToolExecutionStrategy {
	return ToolExecutionStrategy{Kind: StrategyBatched, BatchSize: size}
}

// RetryConfig governs Stream retries on retryable ProviderErrors (spec
// §4.4/§4.1), grounded exactly on original_source's retry.rs.
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
	}
}

// NoRetryConfig disables retrying entirely.
func NoRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 0, InitialDelay: 0, BackoffMultiplier: 1, MaxDelay: 0}
}

// ContextConfig governs the tiered compaction engine (spec §4.5), grounded
// exactly on original_source's context.rs ContextConfig defaults.
type ContextConfig struct {
	MaxContextTokens  int
	SystemPromptTokens int
	KeepRecent        int
	KeepFirst         int
	ToolOutputMaxLines int
}

func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		MaxContextTokens:   100000,
		SystemPromptTokens: 4000,
		KeepRecent:         10,
		KeepFirst:          2,
		ToolOutputMaxLines: 50,
	}
}

// ExecutionLimits bounds a single AgenticLoop.Run call so a runaway loop
// cannot run forever (spec §4.4).
type ExecutionLimits struct {
	MaxTurns    int
	MaxToolCalls int
	MaxDuration time.Duration
}

func DefaultExecutionLimits() ExecutionLimits {
	return ExecutionLimits{MaxTurns: 50, MaxToolCalls: 200, MaxDuration: 10 * time.Minute}
}

// SteeringDeliveryMode controls how many queued steering/follow-up messages
// are drained per check (spec §4.6).
type SteeringDeliveryMode string

const (
	DeliverOneAtATime SteeringDeliveryMode = "oneAtATime"
	DeliverAll        SteeringDeliveryMode = "all"
)

// BeforeTurnHook runs before streaming starts for a turn; returning an error
// aborts the turn.
type BeforeTurnHook func(ctx *TurnContext) error

// AfterTurnHook runs after a turn's tool results have been appended.
type AfterTurnHook func(ctx *TurnContext)

// OnErrorHook observes a ProviderError the retry loop ultimately gave up
// on, after it has been converted into a synthetic error assistant message.
type OnErrorHook func(err *ProviderError)

// ContentFilterHook is the Non-goal-scoped prompt-injection hook: a single
// synchronous filter a caller may install to reject content before it is
// sent to the model. Returning ok=false drops the content. This is a
// concession, not a policy engine (spec §1 Non-goals).
type ContentFilterHook func(ctx context.Context, content models.Content) (ok bool, err error)

// LoopConfig bundles every tunable of the turn loop, following
// original_source's AgentLoopConfig of plain function-pointer fields
// alongside strategy/retry/context/limit structs.
type LoopConfig struct {
	Strategy         ToolExecutionStrategy
	Retry            RetryConfig
	Context          ContextConfig
	Limits           ExecutionLimits
	SteeringDelivery SteeringDeliveryMode
	FollowUpDelivery SteeringDeliveryMode

	BeforeTurn   BeforeTurnHook
	AfterTurn    AfterTurnHook
	OnError      OnErrorHook
	ContentFilter ContentFilterHook
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Strategy:         ParallelStrategy(),
		Retry:            DefaultRetryConfig(),
		Context:          DefaultContextConfig(),
		Limits:           DefaultExecutionLimits(),
		SteeringDelivery: DeliverOneAtATime,
		FollowUpDelivery: DeliverOneAtATime,
	}
}
