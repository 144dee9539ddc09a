package models

import "strings"

// overflowPhrases are vendor error-message substrings that indicate the
// request exceeded the model's context window. Matching is case-insensitive
// substring search (spec §4.1 / P7).
var overflowPhrases = []string{
	"context length",
	"context window",
	"maximum context length",
	"context_length_exceeded",
	"too many tokens",
	"exceeds the maximum number of tokens",
	"exceeds context limit",
	"prompt is too long",
	"input is too long",
	"reduce the length of the messages",
	"maximum prompt length",
	"token limit",
	"context_length",
	"request too large",
	"payload size exceeded",
}

// IsOverflowPhrase reports whether msg contains a known vendor context-overflow
// phrase. Used both to classify a raw provider error (§4.1: HTTP 400/413 with
// an empty body or an overflow phrase maps to ContextOverflow) and to detect
// context overflow already recorded on an assistant message's error_message
// (P7).
func IsOverflowPhrase(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)
	for _, phrase := range overflowPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
