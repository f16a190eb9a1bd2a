package prompt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/intrafind/llm-gateway/pkg/provider/types"
)

// ToOpenAIMessages converts unified messages to the OpenAI/vLLM chat.completions
// wire format, including assistant tool_calls and tool-role round-tripping.
func ToOpenAIMessages(messages []types.Message) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == types.RoleTool {
			result = append(result, map[string]interface{}{
				"role":         "tool",
				"tool_call_id": msg.ToolCallID,
				"content":      msg.Text(),
			})
			continue
		}

		openAIMsg := map[string]interface{}{
			"role": string(msg.Role),
		}

		if text := textOnlyContent(msg.Content); text != nil {
			openAIMsg["content"] = *text
		} else if content := openAIContentParts(msg.Content); len(content) > 0 {
			openAIMsg["content"] = content
		} else {
			openAIMsg["content"] = ""
		}

		if len(msg.ToolCalls) > 0 {
			calls := make([]map[string]interface{}, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Arguments)
				calls[i] = map[string]interface{}{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]interface{}{
						"name":      tc.Name,
						"arguments": string(argsJSON),
					},
				}
			}
			openAIMsg["tool_calls"] = calls
		}

		if msg.Name != "" {
			openAIMsg["name"] = msg.Name
		}

		result = append(result, openAIMsg)
	}

	return result
}

func openAIContentParts(content []types.ContentPart) []map[string]interface{} {
	parts := make([]map[string]interface{}, 0, len(content))
	for _, part := range content {
		switch p := part.(type) {
		case types.TextContent:
			parts = append(parts, map[string]interface{}{"type": "text", "text": p.Text})
		case types.ImageContent:
			var url string
			if p.URL != "" {
				url = p.URL
			} else {
				url = fmt.Sprintf("data:%s;base64,%s", p.MimeType, base64.StdEncoding.EncodeToString(p.Image))
			}
			parts = append(parts, map[string]interface{}{
				"type":      "image_url",
				"image_url": map[string]interface{}{"url": url},
			})
		}
	}
	return parts
}

// textOnlyContent returns a pointer to the concatenated text when content is
// entirely TextContent parts (the common case), letting callers send the
// cheaper string form instead of a content-part array.
func textOnlyContent(content []types.ContentPart) *string {
	var text string
	for _, part := range content {
		tc, ok := part.(types.TextContent)
		if !ok {
			return nil
		}
		text += tc.Text
	}
	return &text
}

// ToAnthropicMessages converts unified messages to the Anthropic Messages API
// format. System messages are excluded; use ExtractSystemMessage for those.
// Tool calls surface as tool_use blocks on the assistant message that made
// them; tool-role messages become tool_result blocks on a user message.
func ToAnthropicMessages(messages []types.Message) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			continue
		}

		if msg.Role == types.RoleTool {
			result = append(result, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{{
					"type":        "tool_result",
					"tool_use_id": msg.ToolCallID,
					"content":     msg.Text(),
					"is_error":    msg.IsError,
				}},
			})
			continue
		}

		anthropicMsg := map[string]interface{}{"role": string(msg.Role)}
		contentParts := make([]map[string]interface{}, 0, len(msg.Content)+len(msg.ToolCalls))

		for _, part := range msg.Content {
			switch p := part.(type) {
			case types.TextContent:
				contentParts = append(contentParts, map[string]interface{}{"type": "text", "text": p.Text})
			case types.ImageContent:
				contentParts = append(contentParts, map[string]interface{}{
					"type": "image",
					"source": map[string]interface{}{
						"type":       "base64",
						"media_type": p.MimeType,
						"data":       base64.StdEncoding.EncodeToString(p.Image),
					},
				})
			}
		}

		for _, tc := range msg.ToolCalls {
			contentParts = append(contentParts, map[string]interface{}{
				"type":  "tool_use",
				"id":    tc.ID,
				"name":  tc.Name,
				"input": tc.Arguments,
			})
		}

		if len(contentParts) == 1 && contentParts[0]["type"] == "text" {
			anthropicMsg["content"] = contentParts[0]["text"]
		} else {
			anthropicMsg["content"] = contentParts
		}

		result = append(result, anthropicMsg)
	}

	return result
}

// ExtractSystemMessage concatenates the text of every system-role message in
// prompt.Messages, then falls back to Prompt.System.
func ExtractSystemMessage(p types.Prompt) string {
	var system string
	for _, msg := range p.Messages {
		if msg.Role == types.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += msg.Text()
		}
	}
	if system == "" {
		return p.System
	}
	return system
}

// ToGoogleMessages converts unified messages to Gemini generateContent
// "contents" entries. Tool calls become functionCall parts; tool-role
// messages become functionResponse parts.
func ToGoogleMessages(messages []types.Message) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			continue
		}

		if msg.Role == types.RoleTool {
			result = append(result, map[string]interface{}{
				"role": "user",
				"parts": []map[string]interface{}{{
					"functionResponse": map[string]interface{}{
						"name":     msg.ToolName,
						"response": map[string]interface{}{"content": msg.Text()},
					},
				}},
			})
			continue
		}

		role := "user"
		if msg.Role == types.RoleAssistant {
			role = "model"
		}

		parts := make([]map[string]interface{}, 0, len(msg.Content)+len(msg.ToolCalls))
		for _, part := range msg.Content {
			switch p := part.(type) {
			case types.TextContent:
				parts = append(parts, map[string]interface{}{"text": p.Text})
			case types.ImageContent:
				parts = append(parts, map[string]interface{}{
					"inline_data": map[string]interface{}{
						"mime_type": p.MimeType,
						"data":      base64.StdEncoding.EncodeToString(p.Image),
					},
				})
			}
		}
		for _, tc := range msg.ToolCalls {
			parts = append(parts, map[string]interface{}{
				"functionCall": map[string]interface{}{"name": tc.Name, "args": tc.Arguments},
			})
		}

		result = append(result, map[string]interface{}{"role": role, "parts": parts})
	}

	return result
}

// AddToolResultsToMessages appends one tool-role message per result.
func AddToolResultsToMessages(messages []types.Message, toolResults []types.ToolResult) []types.Message {
	for _, r := range toolResults {
		text := fmt.Sprintf("%v", r.Value)
		if r.Err != nil {
			text = r.Err.Message
		}
		messages = append(messages, types.Message{
			Role:       types.RoleTool,
			ToolCallID: r.ToolCallID,
			ToolName:   r.ToolName,
			IsError:    !r.Ok,
			Content:    []types.ContentPart{types.TextContent{Text: text}},
		})
	}
	return messages
}

// ValidateMessages validates that messages are well-formed.
func ValidateMessages(messages []types.Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("messages cannot be empty")
	}

	for i, msg := range messages {
		if msg.Role == "" {
			return fmt.Errorf("message %d has empty role", i)
		}
		if msg.Role == types.RoleTool && msg.ToolCallID == "" {
			return fmt.Errorf("message %d is a tool message with no ToolCallID", i)
		}
	}

	return nil
}

