package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/haasonsaas/nexus/internal/tools/policy"
	"github.com/haasonsaas/nexus/pkg/models"
)

const (
	// MaxToolNameLength bounds a registered tool's name.
	MaxToolNameLength = 256
	// MaxToolParamsSize is a size limit for a tool call's JSON args. Nothing
	// in this module checks it; tool-call arguments are not size-limited.
	MaxToolParamsSize = 10 << 20
)

// ToolRegistry holds every Tool available to a turn loop, keyed by name.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool, rejecting names that are empty, too long, or already taken.
func (r *ToolRegistry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if len(name) > MaxToolNameLength {
		return fmt.Errorf("tool name %q exceeds max length %d", name, MaxToolNameLength)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Unregister removes a tool by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool, sorted by name for deterministic
// iteration (tests and LLM tool-list serialization both want this).
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// AsDefinitions renders every registered tool as the wire-level
// ToolDefinition shape a Provider advertises to the model.
func (r *ToolRegistry) AsDefinitions() []ToolDefinition {
	tools := r.List()
	defs := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: t.ParametersSchema()}
	}
	return defs
}

// FilteredDefinitions renders only the tools a policy.Resolver allows under
// pol, so a caller with a restricted tool policy (§4.2) never advertises a
// denied tool to the model in the first place. A nil resolver or policy
// falls back to AsDefinitions (no filtering configured).
func (r *ToolRegistry) FilteredDefinitions(resolver *policy.Resolver, pol *policy.Policy) []ToolDefinition {
	if resolver == nil || pol == nil {
		return r.AsDefinitions()
	}
	tools := r.List()
	defs := make([]ToolDefinition, 0, len(tools))
	for _, t := range tools {
		if !resolver.IsAllowed(pol, t.Name()) {
			continue
		}
		defs = append(defs, ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: t.ParametersSchema()})
	}
	return defs
}

// Allowed reports whether toolName may be called under pol, per resolver. A
// nil resolver or policy allows everything (no policy configured).
func (r *ToolRegistry) Allowed(resolver *policy.Resolver, pol *policy.Policy, toolName string) bool {
	if resolver == nil || pol == nil {
		return true
	}
	return resolver.IsAllowed(pol, toolName)
}

// splitByPolicy partitions calls into those a policy allows and a
// ToolResult message for each one it denies, so a denied call still gets a
// well-formed tool-result reply instead of being silently dropped (spec P1:
// every tool call must be answered).
func (r *ToolRegistry) splitByPolicy(resolver *policy.Resolver, pol *policy.Policy, calls []ToolCallRequest) ([]ToolCallRequest, []models.Message) {
	if resolver == nil || pol == nil {
		return calls, nil
	}
	allowed := make([]ToolCallRequest, 0, len(calls))
	var denied []models.Message
	for _, c := range calls {
		if resolver.IsAllowed(pol, c.Name) {
			allowed = append(allowed, c)
			continue
		}
		denied = append(denied, models.NewToolResultMessage(c.ID, c.Name,
			[]models.Content{models.TextContent(fmt.Sprintf("tool %q denied by policy", c.Name))}, true))
	}
	return allowed, denied
}
