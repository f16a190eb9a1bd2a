package tool

import (
	"encoding/json"
	"fmt"

	"github.com/intrafind/llm-gateway/pkg/provider/types"
)

// ToJSONSchema converts a Tool to the OpenAI/vLLM function-calling envelope.
func ToJSONSchema(t types.Tool) map[string]interface{} {
	functionDef := map[string]interface{}{
		"name":        t.Name,
		"description": t.Description,
	}
	if t.Parameters != nil {
		functionDef["parameters"] = t.Parameters
	}
	return map[string]interface{}{
		"type":     "function",
		"function": functionDef,
	}
}

// ToOpenAIFormat converts tools to OpenAI's tool format.
func ToOpenAIFormat(tools []types.Tool) []map[string]interface{} {
	result := make([]map[string]interface{}, len(tools))
	for i, t := range tools {
		result[i] = ToJSONSchema(t)
	}
	return result
}

// ToAnthropicFormat converts tools to Anthropic's tool format.
func ToAnthropicFormat(tools []types.Tool) []map[string]interface{} {
	result := make([]map[string]interface{}, len(tools))
	for i, t := range tools {
		result[i] = map[string]interface{}{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": t.Parameters,
		}
	}
	return result
}

// ToGoogleFormat converts tools to Gemini's function-declaration format.
func ToGoogleFormat(tools []types.Tool) []map[string]interface{} {
	result := make([]map[string]interface{}, len(tools))
	for i, t := range tools {
		result[i] = map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		}
	}
	return result
}

// ToVLLMFormat converts tools to the OpenAI-compatible envelope vLLM expects,
// with JSON Schema keywords its guided-decoding backend can't consume
// stripped out (§4.2 structured-output emulation rules).
func ToVLLMFormat(tools []types.Tool) []map[string]interface{} {
	result := make([]map[string]interface{}, len(tools))
	for i, t := range tools {
		sanitized := t
		sanitized.Parameters = SanitizeSchemaForVLLM(t.Parameters)
		result[i] = ToJSONSchema(sanitized)
	}
	return result
}

// unsupportedSchemaKeywords are stripped recursively from any schema handed
// to vLLM's guided-decoding backend, which rejects them.
var unsupportedSchemaKeywords = []string{
	"additionalProperties", "patternProperties", "dependencies",
	"allOf", "anyOf", "oneOf", "not", "$ref", "format",
}

// SanitizeSchemaForVLLM recursively strips JSON Schema keywords that vLLM's
// guided-decoding backend doesn't support.
func SanitizeSchemaForVLLM(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		skip := false
		for _, bad := range unsupportedSchemaKeywords {
			if k == bad {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		out[k] = sanitizeSchemaValue(v)
	}
	return out
}

func sanitizeSchemaValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return SanitizeSchemaForVLLM(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = sanitizeSchemaValue(e)
		}
		return out
	default:
		return v
	}
}

// EnforceOpenAIStrictSchema recursively sets additionalProperties:false and
// marks every property required, per OpenAI's strict structured-output mode.
func EnforceOpenAIStrictSchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	out := make(map[string]interface{}, len(schema)+1)
	for k, v := range schema {
		out[k] = v
	}
	if t, ok := out["type"]; ok && t == "object" {
		out["additionalProperties"] = false
		if props, ok := out["properties"].(map[string]interface{}); ok {
			required := make([]string, 0, len(props))
			sanitizedProps := make(map[string]interface{}, len(props))
			for name, propSchema := range props {
				required = append(required, name)
				if nested, ok := propSchema.(map[string]interface{}); ok {
					sanitizedProps[name] = EnforceOpenAIStrictSchema(nested)
				} else {
					sanitizedProps[name] = propSchema
				}
			}
			out["properties"] = sanitizedProps
			out["required"] = required
		}
	}
	return out
}

// ParseToolCallArguments parses tool call arguments from various wire shapes.
func ParseToolCallArguments(args interface{}) (map[string]interface{}, error) {
	switch v := args.(type) {
	case map[string]interface{}:
		return v, nil
	case string:
		var result map[string]interface{}
		if err := json.Unmarshal([]byte(v), &result); err != nil {
			return nil, fmt.Errorf("failed to parse tool arguments JSON: %w", err)
		}
		return result, nil
	case []byte:
		var result map[string]interface{}
		if err := json.Unmarshal(v, &result); err != nil {
			return nil, fmt.Errorf("failed to parse tool arguments JSON: %w", err)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported tool arguments type: %T", args)
	}
}

// ValidateToolCall validates that a tool call references a known tool.
func ValidateToolCall(toolCall types.ToolCall, availableTools []types.Tool) error {
	for _, t := range availableTools {
		if t.Name == toolCall.Name {
			return nil
		}
	}
	return fmt.Errorf("unknown tool: %s", toolCall.Name)
}

// FindTool finds a tool by name in a list of tools.
func FindTool(toolName string, tools []types.Tool) (*types.Tool, error) {
	for i := range tools {
		if tools[i].Name == toolName {
			return &tools[i], nil
		}
	}
	return nil, fmt.Errorf("tool not found: %s", toolName)
}

// ConvertToolChoiceToOpenAI converts a unified ToolChoice to OpenAI's format.
func ConvertToolChoiceToOpenAI(choice types.ToolChoice) interface{} {
	switch choice.Type {
	case types.ToolChoiceAuto:
		return "auto"
	case types.ToolChoiceNone:
		return "none"
	case types.ToolChoiceRequired:
		return "required"
	case types.ToolChoiceTool:
		return map[string]interface{}{
			"type":     "function",
			"function": map[string]interface{}{"name": choice.Name},
		}
	default:
		return "auto"
	}
}

// ConvertToolChoiceToAnthropic converts a unified ToolChoice to Anthropic's format.
func ConvertToolChoiceToAnthropic(choice types.ToolChoice) interface{} {
	switch choice.Type {
	case types.ToolChoiceAuto:
		return map[string]interface{}{"type": "auto"}
	case types.ToolChoiceNone:
		return nil
	case types.ToolChoiceRequired:
		return map[string]interface{}{"type": "any"}
	case types.ToolChoiceTool:
		return map[string]interface{}{"type": "tool", "name": choice.Name}
	default:
		return map[string]interface{}{"type": "auto"}
	}
}

// ConvertToolChoiceToGoogle converts a unified ToolChoice to Google's format.
func ConvertToolChoiceToGoogle(choice types.ToolChoice) string {
	switch choice.Type {
	case types.ToolChoiceAuto:
		return "AUTO"
	case types.ToolChoiceNone:
		return "NONE"
	case types.ToolChoiceRequired:
		return "ANY"
	default:
		return "AUTO"
	}
}
