package context

import (
	"encoding/base64"

	"github.com/haasonsaas/nexus/pkg/models"
)

// EstimateTokens approximates token count for a text/thinking block:
// ceil(chars/4), matching original_source's context.rs estimate_tokens.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// toolCallTokens approximates a tool-call block's token cost: the name and
// JSON-args char counts each divided by 4, plus a fixed 8-token overhead.
func toolCallTokens(nameChars, argsChars int) int {
	return nameChars/4 + argsChars/4 + 8
}

// imageTokens approximates an inline image's token cost from its raw byte
// size (decoded from base64), clamped to [85, 16000] per original_source.
func imageTokens(base64Data string) int {
	rawBytes := len(base64Data) * 3 / 4
	tok := rawBytes / 750
	if tok < 85 {
		return 85
	}
	if tok > 16000 {
		return 16000
	}
	return tok
}

// ContentTokens estimates the token cost of a single content block.
func ContentTokens(c models.Content) int {
	switch c.Type {
	case models.ContentTypeText, models.ContentTypeThinking:
		return EstimateTokens(c.Text)
	case models.ContentTypeToolCall:
		return toolCallTokens(len(c.ToolCallName), len(c.ToolCallArguments))
	case models.ContentTypeImage:
		return imageTokens(c.ImageData)
	default:
		return 0
	}
}

// messageOverheadTokens is the fixed per-message overhead original_source
// adds on top of content tokens: 4 for user/assistant messages, or
// name_tokens+8 for tool-result messages.
func messageOverheadTokens(m models.Message) int {
	if m.Role == models.RoleToolResult {
		return EstimateTokens(m.ToolName) + 8
	}
	return 4
}

// MessageTokens estimates the total token cost of one message.
func MessageTokens(m models.Message) int {
	total := messageOverheadTokens(m)
	for _, c := range m.Content {
		total += ContentTokens(c)
	}
	return total
}

// TotalTokens estimates the token cost of a whole conversation.
func TotalTokens(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		total += MessageTokens(m)
	}
	return total
}

// decodedImageBytes is unused by the estimator (which works off base64 char
// length directly per original_source) but kept as a documented helper for
// callers that need the real decoded size for logging/metrics.
func decodedImageBytes(b64 string) int {
	n, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return 0
	}
	return len(n)
}
