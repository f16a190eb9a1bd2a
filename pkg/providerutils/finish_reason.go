package providerutils

import (
	"strings"

	"github.com/intrafind/llm-gateway/pkg/provider/types"
)

// MapOpenAIFinishReason maps an OpenAI/vLLM-compatible finish reason string
// onto the closed FinishReason enum. Handles both current ("tool_calls") and
// legacy ("function_call") values. Unknown values pass through lowercased.
func MapOpenAIFinishReason(reason string) types.FinishReason {
	switch reason {
	case "stop":
		return types.FinishReasonStop
	case "length":
		return types.FinishReasonLength
	case "tool_calls", "function_call":
		return types.FinishReasonToolCalls
	case "content_filter":
		return types.FinishReasonContentFilter
	default:
		return types.FinishReason(strings.ToLower(reason))
	}
}

// MapAnthropicFinishReason maps an Anthropic stop_reason onto the closed
// FinishReason enum.
func MapAnthropicFinishReason(reason string) types.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return types.FinishReasonStop
	case "max_tokens":
		return types.FinishReasonLength
	case "tool_use":
		return types.FinishReasonToolCalls
	default:
		return types.FinishReason(strings.ToLower(reason))
	}
}

// MapGoogleFinishReason maps a Gemini finishReason onto the closed
// FinishReason enum.
func MapGoogleFinishReason(reason string) types.FinishReason {
	switch reason {
	case "STOP":
		return types.FinishReasonStop
	case "MAX_TOKENS":
		return types.FinishReasonLength
	case "SAFETY", "RECITATION", "PROHIBITED_CONTENT", "SPII", "BLOCKLIST":
		return types.FinishReasonContentFilter
	default:
		return types.FinishReason(strings.ToLower(reason))
	}
}
