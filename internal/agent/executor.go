package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ExecutorConfig configures the per-call tool executor: concurrency limits,
// timeouts, and retry strategy for transient tool failures. Distinct from
// the turn-level scheduler strategy (scheduler.go) which decides the order
// calls are submitted in; ExecutorConfig governs each individual call.
type ExecutorConfig struct {
	MaxConcurrency  int
	DefaultTimeout  time.Duration
	DefaultRetries  int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency:  5,
		DefaultTimeout:  30 * time.Second,
		DefaultRetries:  0,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
	}
}

// ToolConfig holds per-tool overrides for timeout and retry behavior.
type ToolConfig struct {
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
}

// Executor runs individual tool calls with concurrency limiting (semaphore),
// per-call timeout, panic recovery, and retry on transient ToolError kinds.
// The turn-level scheduler (scheduler.go) decides which calls to submit to
// it and in what order/grouping.
type Executor struct {
	registry   *ToolRegistry
	config     *ExecutorConfig
	toolConfig map[string]*ToolConfig
	mu         sync.RWMutex
	sem        chan struct{}
	metrics    *ExecutorMetrics
	tracer     *Tracer
}

type ExecutorMetrics struct {
	mu              sync.Mutex
	TotalExecutions int64
	TotalRetries    int64
	TotalFailures   int64
	TotalTimeouts   int64
	TotalPanics     int64
}

func NewExecutor(registry *ToolRegistry, config *ExecutorConfig) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	return &Executor{
		registry:   registry,
		config:     config,
		toolConfig: make(map[string]*ToolConfig),
		sem:        make(chan struct{}, config.MaxConcurrency),
		metrics:    &ExecutorMetrics{},
		tracer:     NewTracer(nil),
	}
}

func (e *Executor) ConfigureTool(name string, config *ToolConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toolConfig[name] = config
}

func (e *Executor) getToolConfig(name string) *ToolConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.toolConfig[name]
}

// ToolCallRequest is the scheduler's view of one pending tool invocation,
// extracted from an assistant message's ToolCall content blocks.
type ToolCallRequest struct {
	ID   string
	Name string
	Args []byte
}

// ToolCallRequestsFromMessage extracts every tool call from an assistant message.
func ToolCallRequestsFromMessage(m models.Message) []ToolCallRequest {
	var out []ToolCallRequest
	for _, c := range m.ToolCalls() {
		out = append(out, ToolCallRequest{ID: c.ToolCallID, Name: c.ToolCallName, Args: c.ToolCallArguments})
	}
	return out
}

// ExecutionOutcome is the result of running one tool call: always exactly
// one ToolResult message, ready to append to the conversation.
type ExecutionOutcome struct {
	Request  ToolCallRequest
	Message  models.Message
	Attempts int
	Duration time.Duration
}

func (o ExecutionOutcome) err() error {
	if !o.Message.IsError {
		return nil
	}
	return fmt.Errorf("%s", o.Message.Text())
}

// Execute runs a single tool call to completion: semaphore-gated,
// timed-out, retried on transient failure, and panic-recovered. It always
// returns an ExecutionOutcome — failures are carried as an IsError
// ToolResult message, never as a Go error, so callers never need a
// separate error path (spec §7: tool errors are always converted to a
// ToolResult).
func (e *Executor) Execute(ctx context.Context, call ToolCallRequest, tc ToolContext) ExecutionOutcome {
	start := time.Now()
	outcome := ExecutionOutcome{Request: call}

	ctx, endSpan := e.tracer.StartTool(ctx, call.Name, call.ID)
	defer func() { endSpan(outcome.err()) }()

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		outcome.Message = toolErrorMessage(call, NewToolError(ToolErrorCancelled, ctx.Err().Error()))
		outcome.Duration = time.Since(start)
		return outcome
	}

	cfg := e.getToolConfig(call.Name)
	timeout := e.config.DefaultTimeout
	maxRetries := e.config.DefaultRetries
	backoff := e.config.RetryBackoff
	if cfg != nil {
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
		if cfg.Retries >= 0 {
			maxRetries = cfg.Retries
		}
		if cfg.RetryBackoff > 0 {
			backoff = cfg.RetryBackoff
		}
	}

	var lastResult ToolResult
	var lastErr *ToolError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		outcome.Attempts = attempt + 1

		res, err := e.executeWithTimeout(ctx, call, tc, timeout)
		if err == nil {
			lastResult = res
			lastErr = nil
			break
		}
		lastErr = err

		if err.Kind != ToolErrorFailed && err.Kind != ToolErrorCancelled {
			// NotFound/InvalidArgs are not transient; don't retry.
			break
		}
		if ctx.Err() != nil || attempt >= maxRetries {
			break
		}

		sleep := backoff * time.Duration(1<<uint(attempt))
		if sleep > e.config.MaxRetryBackoff {
			sleep = e.config.MaxRetryBackoff
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			lastErr = NewToolError(ToolErrorCancelled, ctx.Err().Error())
		}
	}

	e.metrics.mu.Lock()
	e.metrics.TotalExecutions++
	if outcome.Attempts > 1 {
		e.metrics.TotalRetries += int64(outcome.Attempts - 1)
	}
	if lastErr != nil {
		e.metrics.TotalFailures++
	}
	e.metrics.mu.Unlock()

	if lastErr != nil {
		outcome.Message = toolErrorMessage(call, lastErr)
	} else {
		outcome.Message = models.NewToolResultMessage(call.ID, call.Name, lastResult.Content, false)
	}
	outcome.Duration = time.Since(start)
	return outcome
}

func toolErrorMessage(call ToolCallRequest, err *ToolError) models.Message {
	return models.NewToolResultMessage(call.ID, call.Name, []models.Content{models.TextContent(err.Error())}, true)
}

func (e *Executor) executeWithTimeout(ctx context.Context, call ToolCallRequest, tc ToolContext, timeout time.Duration) (ToolResult, *ToolError) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result ToolResult
		err    *ToolError
	}
	ch := make(chan outcome, 1)

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		return ToolResult{}, ToolErrorNotFoundf(call.Name)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.metrics.mu.Lock()
				e.metrics.TotalPanics++
				e.metrics.mu.Unlock()
				ch <- outcome{err: ToolErrorFailedf("panic: %v\n%s", r, debug.Stack())}
			}
		}()
		res, toolErr := tool.Execute(execCtx, call.Args, tc)
		ch <- outcome{result: res, err: toolErr}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-execCtx.Done():
		e.metrics.mu.Lock()
		e.metrics.TotalTimeouts++
		e.metrics.mu.Unlock()
		if ctx.Err() != nil {
			return ToolResult{}, NewToolError(ToolErrorCancelled, "context cancelled")
		}
		return ToolResult{}, NewToolError(ToolErrorFailed, fmt.Sprintf("execution timed out after %s", timeout))
	}
}

func (e *Executor) Metrics() ExecutorMetricsSnapshot {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()
	return ExecutorMetricsSnapshot{
		TotalExecutions: e.metrics.TotalExecutions,
		TotalRetries:    e.metrics.TotalRetries,
		TotalFailures:   e.metrics.TotalFailures,
		TotalTimeouts:   e.metrics.TotalTimeouts,
		TotalPanics:     e.metrics.TotalPanics,
	}
}

type ExecutorMetricsSnapshot struct {
	TotalExecutions int64
	TotalRetries    int64
	TotalFailures   int64
	TotalTimeouts   int64
	TotalPanics     int64
}
