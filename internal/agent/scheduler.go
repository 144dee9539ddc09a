package agent

import (
	"context"
	"sync"

	"github.com/haasonsaas/nexus/pkg/models"
)

// Scheduler runs a turn's tool calls according to a ToolExecutionStrategy
// (spec §4.3): Sequential checks steering after every call, Parallel runs
// the whole batch concurrently and checks steering once at the end,
// Batched{size} chunks the batch and checks steering between chunks.
//
// Regardless of strategy, ToolExecutionStart/End events are emitted for
// every call including skipped ones, and the returned messages preserve
// the original call order — never completion order.
type Scheduler struct {
	executor *Executor
	sink     EventSink
}

func NewScheduler(executor *Executor, sink EventSink) *Scheduler {
	return &Scheduler{executor: executor, sink: sink}
}

// Run executes calls per strategy and returns one ToolResult message per
// call, in call order.
func (s *Scheduler) Run(ctx context.Context, strategy ToolExecutionStrategy, calls []ToolCallRequest, sessionID string, steering *SteeringQueues) []models.Message {
	switch strategy.Kind {
	case StrategySequential:
		return s.runSequential(ctx, calls, sessionID, steering)
	case StrategyBatched:
		size := strategy.BatchSize
		if size <= 0 {
			size = 1
		}
		return s.runBatched(ctx, calls, sessionID, steering, size)
	default:
		return s.runParallel(ctx, calls, sessionID, steering)
	}
}

func (s *Scheduler) runSequential(ctx context.Context, calls []ToolCallRequest, sessionID string, steering *SteeringQueues) []models.Message {
	out := make([]models.Message, len(calls))
	skipping := false
	for i, call := range calls {
		if skipping {
			out[i] = s.skippedResult(call)
			continue
		}
		out[i] = s.runOne(ctx, call, sessionID)
		if steering != nil && steering.HasSteering() {
			skipping = true
		}
	}
	return out
}

func (s *Scheduler) runParallel(ctx context.Context, calls []ToolCallRequest, sessionID string, steering *SteeringQueues) []models.Message {
	out := make([]models.Message, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c ToolCallRequest) {
			defer wg.Done()
			out[idx] = s.runOne(ctx, c, sessionID)
		}(i, call)
	}
	wg.Wait()
	_ = steering // checked once by the caller (loop.go) after the whole batch
	return out
}

func (s *Scheduler) runBatched(ctx context.Context, calls []ToolCallRequest, sessionID string, steering *SteeringQueues, size int) []models.Message {
	out := make([]models.Message, len(calls))
	skipping := false
	for start := 0; start < len(calls); start += size {
		end := start + size
		if end > len(calls) {
			end = len(calls)
		}
		chunk := calls[start:end]

		if skipping {
			for i, c := range chunk {
				out[start+i] = s.skippedResult(c)
			}
			continue
		}

		var wg sync.WaitGroup
		for i, call := range chunk {
			wg.Add(1)
			go func(idx int, c ToolCallRequest) {
				defer wg.Done()
				out[start+idx] = s.runOne(ctx, c, sessionID)
			}(i, call)
		}
		wg.Wait()

		if steering != nil && steering.HasSteering() {
			skipping = true
		}
	}
	return out
}

func (s *Scheduler) runOne(ctx context.Context, call ToolCallRequest, sessionID string) models.Message {
	s.emit(models.AgentEvent{
		Type: models.AgentEventToolExecutionStart,
		Tool: &models.ToolEventPayload{ToolCallID: call.ID, ToolName: call.Name, Args: call.Args},
	})

	tc := ToolContext{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		SessionID:  sessionID,
		OnUpdate: func(partial models.Content) {
			s.emit(models.AgentEvent{
				Type: models.AgentEventToolExecutionUpdate,
				Tool: &models.ToolEventPayload{ToolCallID: call.ID, ToolName: call.Name, PartialResult: &partial},
			})
		},
		OnProgress: func(text string) {
			s.emit(models.AgentEvent{
				Type:     models.AgentEventProgressMessage,
				Progress: &models.ProgressPayload{ToolCallID: call.ID, Text: text},
			})
		},
	}

	outcome := s.executor.Execute(ctx, call, tc)

	s.emit(models.AgentEvent{
		Type: models.AgentEventToolExecutionEnd,
		Tool: &models.ToolEventPayload{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Result:     &outcome.Message,
			IsError:    outcome.Message.IsError,
		},
	})
	return outcome.Message
}

func (s *Scheduler) skippedResult(call ToolCallRequest) models.Message {
	msg := models.NewToolResultMessage(call.ID, call.Name,
		[]models.Content{models.TextContent("Skipped due to queued user message.")}, false)

	s.emit(models.AgentEvent{Type: models.AgentEventToolExecutionStart,
		Tool: &models.ToolEventPayload{ToolCallID: call.ID, ToolName: call.Name, Args: call.Args}})
	s.emit(models.AgentEvent{Type: models.AgentEventToolExecutionEnd,
		Tool: &models.ToolEventPayload{ToolCallID: call.ID, ToolName: call.Name, Result: &msg}})
	return msg
}

func (s *Scheduler) emit(e models.AgentEvent) {
	if s.sink != nil {
		s.sink.Send(e)
	}
}
