package agent

import "github.com/haasonsaas/nexus/pkg/models"

// repairTranscript enforces the tool-call/tool-result pairing invariant
// (spec P1/P2: every assistant ToolCall content block must be followed by
// exactly one matching RoleToolResult message, and a RoleToolResult must
// never appear without a preceding call). It's used before sending history
// back to a provider that rejects unpaired tool messages (notably after a
// restore, a compaction that dropped tool results, or an aborted turn that
// left calls unanswered).
//
// Dangling calls (no result ever arrived) get a synthetic aborted
// ToolResult appended; dangling results (no matching call, or already
// answered) are dropped.
func repairTranscript(history []models.Message) []models.Message {
	if len(history) == 0 {
		return history
	}

	pending := make(map[string]struct{})
	pendingOrder := make([]string, 0)
	repaired := make([]models.Message, 0, len(history)+4)

	flushPending := func() {
		for _, id := range pendingOrder {
			repaired = append(repaired, models.NewToolResultMessage(id, "",
				[]models.Content{models.TextContent("tool call aborted: no result recorded")}, true))
		}
		pending = make(map[string]struct{})
		pendingOrder = pendingOrder[:0]
	}

	for _, msg := range history {
		switch msg.Role {
		case models.RoleAssistant:
			flushPending()
			repaired = append(repaired, msg)
			for _, call := range msg.ToolCalls() {
				if call.ToolCallID == "" {
					continue
				}
				pending[call.ToolCallID] = struct{}{}
				pendingOrder = append(pendingOrder, call.ToolCallID)
			}
		case models.RoleToolResult:
			if _, ok := pending[msg.ToolCallID]; !ok {
				continue // orphaned or duplicate result
			}
			delete(pending, msg.ToolCallID)
			pendingOrder = removeID(pendingOrder, msg.ToolCallID)
			repaired = append(repaired, msg)
		default:
			repaired = append(repaired, msg)
		}
	}
	flushPending()

	return repaired
}

func removeID(ids []string, target string) []string {
	for i, id := range ids {
		if id == target {
			copy(ids[i:], ids[i+1:])
			return ids[:len(ids)-1]
		}
	}
	return ids
}
