package context

import (
	"fmt"

	"github.com/haasonsaas/nexus/pkg/models"
)

// CompactMessages applies the deterministic tiered compaction cascade (spec
// §4.5), grounded exactly on original_source's context.rs compact_messages:
// level 1 truncates tool-result text, level 2 summarizes old turns, level 3
// drops the middle of the conversation outright. Each level only runs if
// the previous one still leaves the conversation over budget. The function
// is pure: it never mutates its input and is idempotent when re-applied to
// its own output.
func CompactMessages(messages []models.Message, cfg ContextConfigLike) []models.Message {
	budget := cfg.GetMaxContextTokens() - cfg.GetSystemPromptTokens()
	if budget < 0 {
		budget = 0
	}

	if TotalTokens(messages) <= budget {
		return messages
	}

	out := level1TruncateToolOutputs(messages, cfg.GetToolOutputMaxLines())
	if TotalTokens(out) <= budget {
		return out
	}

	out = level2SummarizeOldTurns(out, cfg.GetKeepRecent())
	if TotalTokens(out) <= budget {
		return out
	}

	out = level3DropMiddle(out, cfg.GetKeepFirst(), cfg.GetKeepRecent())
	if TotalTokens(out) <= budget {
		return out
	}

	return keepWithinBudget(out, budget)
}

// ContextConfigLike lets compact.go depend on a narrow accessor interface
// rather than the agent package's concrete ContextConfig, avoiding an
// import cycle between internal/agent and internal/agent/context.
type ContextConfigLike interface {
	GetMaxContextTokens() int
	GetSystemPromptTokens() int
	GetKeepRecent() int
	GetKeepFirst() int
	GetToolOutputMaxLines() int
}

// Config is a concrete ContextConfigLike usable directly by tests and by
// callers that don't want to define their own accessor type.
type Config struct {
	MaxContextTokens   int
	SystemPromptTokens int
	KeepRecent         int
	KeepFirst          int
	ToolOutputMaxLines int
}

func (c Config) GetMaxContextTokens() int   { return c.MaxContextTokens }
func (c Config) GetSystemPromptTokens() int { return c.SystemPromptTokens }
func (c Config) GetKeepRecent() int         { return c.KeepRecent }
func (c Config) GetKeepFirst() int          { return c.KeepFirst }
func (c Config) GetToolOutputMaxLines() int { return c.ToolOutputMaxLines }

func DefaultConfig() Config {
	return Config{
		MaxContextTokens:   100000,
		SystemPromptTokens: 4000,
		KeepRecent:         10,
		KeepFirst:          2,
		ToolOutputMaxLines: 50,
	}
}

func level1TruncateToolOutputs(messages []models.Message, maxLines int) []models.Message {
	out := make([]models.Message, len(messages))
	for i, m := range messages {
		if m.Role != models.RoleToolResult {
			out[i] = m
			continue
		}
		content := make([]models.Content, len(m.Content))
		for j, c := range m.Content {
			if c.Type == models.ContentTypeText {
				c.Text = truncateTextHeadTail(c.Text, maxLines)
			}
			content[j] = c
		}
		m.Content = content
		out[i] = m
	}
	return out
}

// truncateTextHeadTail keeps the first head lines and last tail lines of
// text, inserting a marker for the omitted middle. head = maxLines/2,
// tail = maxLines - head, matching original_source exactly.
func truncateTextHeadTail(text string, maxLines int) string {
	lines := splitLines(text)
	if len(lines) <= maxLines {
		return text
	}
	head := maxLines / 2
	tail := maxLines - head
	omitted := len(lines) - head - tail

	result := joinLines(lines[:head])
	result += fmt.Sprintf("\n\n[... %d lines truncated ...]\n\n", omitted)
	result += joinLines(lines[len(lines)-tail:])
	return result
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

// level2SummarizeOldTurns replaces assistant messages older than the last
// keepRecent messages with a synthetic User summary message, drops their
// associated tool-result messages, and keeps the user messages that
// prompted them — matching original_source's level2_summarize_old_turns.
func level2SummarizeOldTurns(messages []models.Message, keepRecent int) []models.Message {
	boundary := len(messages) - keepRecent
	if boundary <= 0 {
		return messages
	}

	var out []models.Message
	i := 0
	for i < boundary {
		m := messages[i]
		switch m.Role {
		case models.RoleUser:
			out = append(out, m)
			i++
		case models.RoleAssistant:
			out = append(out, summarizeAssistant(m))
			i++
			// Drop the tool-result messages this assistant turn produced.
			for i < boundary && messages[i].Role == models.RoleToolResult {
				i++
			}
		default:
			i++
		}
	}
	out = append(out, messages[boundary:]...)
	return out
}

func summarizeAssistant(m models.Message) models.Message {
	text := m.Text()
	toolCalls := len(m.ToolCalls())
	var summary string
	switch {
	case text != "":
		summary = "[Summary] " + text
	case toolCalls > 0:
		summary = fmt.Sprintf("[Assistant used %d tool(s)]", toolCalls)
	default:
		summary = "[Assistant response]"
	}
	return models.NewUserMessage(summary)
}

// level3DropMiddle keeps the first keepFirst messages and the last
// keepRecent messages, replacing everything else with a single marker
// message — matching original_source's level3_drop_middle.
func level3DropMiddle(messages []models.Message, keepFirst, keepRecent int) []models.Message {
	if len(messages) <= keepFirst+keepRecent {
		return messages
	}
	recentStart := len(messages) - keepRecent
	if recentStart < keepFirst {
		recentStart = keepFirst
	}
	removed := recentStart - keepFirst

	out := make([]models.Message, 0, keepFirst+1+keepRecent)
	out = append(out, messages[:keepFirst]...)
	if removed > 0 {
		out = append(out, models.NewUserMessage(
			fmt.Sprintf("[Context compacted: %d messages removed to fit context window]", removed)))
	}
	out = append(out, messages[recentStart:]...)
	return out
}

// keepWithinBudget is the last-resort fallback: it reverse-accumulates
// messages from the tail of the conversation, stopping once adding another
// would exceed the remaining token budget, matching original_source's
// keep_within_budget.
func keepWithinBudget(messages []models.Message, budget int) []models.Message {
	var kept []models.Message
	used := 0
	for i := len(messages) - 1; i >= 0; i-- {
		t := MessageTokens(messages[i])
		if used+t > budget && len(kept) > 0 {
			break
		}
		kept = append(kept, messages[i])
		used += t
	}
	// reverse kept back into chronological order
	for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
		kept[l], kept[r] = kept[r], kept[l]
	}
	return kept
}
