package context

import "github.com/haasonsaas/nexus/pkg/models"

// Tracker combines the last real provider-reported Usage with per-message
// estimates for messages appended since that response, giving a more
// accurate running context-size total than pure estimation alone
// (original_source's ContextTracker, supplementing spec §4.5's "may
// combine" language with the concrete algorithm).
type Tracker struct {
	lastUsageTokens int
	lastUsageIndex  int
}

// RecordUsage records a real Usage report observed at messageIndex (the
// length of the conversation at the time the response was received).
func (t *Tracker) RecordUsage(u models.Usage, messageIndex int) {
	t.lastUsageTokens = int(u.Input + u.Output + u.CacheRead + u.CacheWrite)
	t.lastUsageIndex = messageIndex
}

// EstimateContextTokens returns the last known real usage plus estimates
// for every message appended after it.
func (t *Tracker) EstimateContextTokens(messages []models.Message) int {
	total := t.lastUsageTokens
	for i := t.lastUsageIndex; i < len(messages); i++ {
		total += MessageTokens(messages[i])
	}
	return total
}

// Reset clears the tracker, e.g. after a context-compaction pass.
func (t *Tracker) Reset() {
	t.lastUsageTokens = 0
	t.lastUsageIndex = 0
}
