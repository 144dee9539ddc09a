package toolconv

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/haasonsaas/nexus/internal/agent"
)

// ToAnthropicTools converts wire-level tool definitions to Anthropic tool params.
func ToAnthropicTools(tools []agent.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		param, err := ToAnthropicTool(tool)
		if err != nil {
			return nil, err
		}
		result = append(result, param)
	}
	return result, nil
}

// ToAnthropicTool converts a single tool definition to an Anthropic tool param.
func ToAnthropicTool(tool agent.ToolDefinition) (anthropic.ToolUnionParam, error) {
	var schema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
	}

	toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
	if toolParam.OfTool == nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
	}
	toolParam.OfTool.Description = anthropic.String(tool.Description)
	return toolParam, nil
}
