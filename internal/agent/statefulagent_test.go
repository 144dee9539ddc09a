package agent

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

// stubProvider is a minimal in-package Provider double, used instead of
// providers.Mock to avoid an import cycle (package providers imports
// package agent).
type stubProvider struct {
	texts []string
	i     int
	block chan struct{}
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Stream(ctx context.Context, cfg StreamConfig, sink EventSink) (*models.Message, error) {
	if s.block != nil {
		select {
		case <-ctx.Done():
			return nil, ClassifyCancelled(s.Name(), ctx.Err())
		case <-s.block:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, ClassifyCancelled(s.Name(), err)
	}

	text := "(exhausted)"
	if s.i < len(s.texts) {
		text = s.texts[s.i]
		s.i++
	}
	msg := models.Message{
		Role:       models.RoleAssistant,
		Content:    []models.Content{models.TextContent(text)},
		StopReason: models.StopReasonStop,
		Provider:   s.Name(),
		Timestamp:  models.NowMillis(),
	}
	sink.Send(models.AgentEvent{Type: models.AgentEventMessageEnd, Message: &models.MessageEventPayload{Message: msg}})
	return &msg, nil
}

func newTestAgent(texts ...string) *Agent {
	return NewAgent(&stubProvider{texts: texts}, nil, AgentConfig{
		SystemPrompt: "be terse",
		Model:        "stub-model",
		Loop:         DefaultLoopConfig(),
	})
}

func TestAgent_Prompt_AppendsConversation(t *testing.T) {
	a := newTestAgent("Hello!")
	sink := EventSinkFunc(func(models.AgentEvent) {})

	appended, err := a.Prompt(context.Background(), sink, "Hi")
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if len(appended) != 1 || appended[0].Text() != "Hello!" {
		t.Fatalf("appended = %+v, want one assistant message \"Hello!\"", appended)
	}

	conv := a.Conversation()
	if len(conv) != 2 {
		t.Fatalf("len(conversation) = %d, want 2 (user + assistant)", len(conv))
	}
	um, ok := conv[0].AsLLM()
	if !ok || um.Role != models.RoleUser || um.Text() != "Hi" {
		t.Errorf("first message = %+v, want user \"Hi\"", conv[0])
	}
	am, ok := conv[1].AsLLM()
	if !ok || am.Role != models.RoleAssistant || am.Text() != "Hello!" {
		t.Errorf("second message = %+v, want assistant \"Hello!\"", conv[1])
	}
}

func TestAgent_Prompt_RejectsConcurrent(t *testing.T) {
	a := newTestAgent("Hello!")
	a.mu.Lock()
	a.isStreaming = true
	a.mu.Unlock()

	_, err := a.Prompt(context.Background(), nil, "Hi")
	if err == nil {
		t.Fatal("expected error for concurrent Prompt call")
	}
}

func TestAgent_Abort(t *testing.T) {
	block := make(chan struct{})
	a := NewAgent(&stubProvider{texts: []string{"too late"}, block: block}, nil, AgentConfig{
		Model: "stub-model",
		Loop:  DefaultLoopConfig(),
	})

	done := make(chan struct{})
	var appended []models.Message
	var err error
	go func() {
		appended, err = a.Prompt(context.Background(), EventSinkFunc(func(models.AgentEvent) {}), "Hi")
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for a.IsStreaming() == false {
		select {
		case <-deadline:
			t.Fatal("agent never started streaming")
		default:
		}
	}
	a.Abort()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Prompt did not return after Abort")
	}
	if err != nil {
		t.Fatalf("Prompt returned error: %v", err)
	}
	if len(appended) == 0 || appended[len(appended)-1].StopReason != models.StopReasonAborted {
		t.Fatalf("appended = %+v, want a trailing Aborted message", appended)
	}
}

func TestAgent_SaveRestore(t *testing.T) {
	a := newTestAgent("Hello!")
	if _, err := a.Prompt(context.Background(), EventSinkFunc(func(models.AgentEvent) {}), "Hi"); err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	a.InjectExtension("note", map[string]string{"text": "pinned"})

	blob, err := a.Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	b := newTestAgent()
	if err := b.Restore(blob); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	orig, restored := a.Conversation(), b.Conversation()
	if len(orig) != len(restored) {
		t.Fatalf("len(restored) = %d, want %d", len(restored), len(orig))
	}
	for i := range orig {
		if orig[i].Role() != restored[i].Role() {
			t.Errorf("message %d role = %q, want %q", i, restored[i].Role(), orig[i].Role())
		}
	}
}

func TestAgent_Reset(t *testing.T) {
	a := newTestAgent("Hello!")
	if _, err := a.Prompt(context.Background(), EventSinkFunc(func(models.AgentEvent) {}), "Hi"); err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	a.Steer("steer me")
	a.Reset()

	if len(a.Conversation()) != 0 {
		t.Errorf("conversation not cleared: %+v", a.Conversation())
	}
	if a.steering.HasSteering() {
		t.Error("steering queue not cleared")
	}
}

func TestAgent_WithIdentity(t *testing.T) {
	a := newTestAgent("hi")
	a.WithIdentity(&Identity{Name: "Nova", Creature: "familiar", Vibe: "warm"})

	if got := a.cfg.SystemPrompt; got == "be terse" {
		t.Error("WithIdentity did not modify the system prompt")
	}
}
