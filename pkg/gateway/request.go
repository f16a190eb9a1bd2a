package gateway

import "github.com/intrafind/llm-gateway/pkg/provider/types"

// ModelSpec is the read-only configuration record for one upstream model,
// sourced externally from models.json (§6) and treated as an opaque,
// already-validated value by the rest of the core.
type ModelSpec struct {
	ID                string                 `json:"id"`
	Provider          string                 `json:"provider"`
	URL               string                 `json:"url,omitempty"`
	MaxTokens         *int                   `json:"maxTokens,omitempty"`
	SupportsTools     bool                   `json:"supportsTools,omitempty"`
	SupportsStreaming bool                   `json:"supportsStreaming,omitempty"`
	ContextLength     int                    `json:"contextLength,omitempty"`
	Pricing           map[string]interface{} `json:"pricing,omitempty"`
}

// AppSpec is the read-only configuration record for one tenant application,
// sourced externally from apps.json (§6). The orchestrator only ever reads
// the keys it recognizes (SystemPrompt, AllowedTools, DefaultModel,
// CompatibleModels) and otherwise treats it as an opaque bag, per §3.
type AppSpec struct {
	ID               string            `json:"id"`
	SystemPrompt     map[string]string `json:"systemPrompt,omitempty"` // keyed by locale
	TokenLimit       *int              `json:"tokenLimit,omitempty"`
	AllowedTools     []string          `json:"allowedTools,omitempty"`
	DefaultModel     string            `json:"defaultModel,omitempty"`
	CompatibleModels []string          `json:"compatibleModels,omitempty"`
	Variables        map[string]string `json:"variables,omitempty"`
	Inherits         string            `json:"inherits,omitempty"`
}

// SystemPromptFor resolves the app's system prompt for lang, falling back
// to "en" and then to the first available locale.
func (a AppSpec) SystemPromptFor(lang string) string {
	if p, ok := a.SystemPrompt[lang]; ok {
		return p
	}
	if p, ok := a.SystemPrompt["en"]; ok {
		return p
	}
	for _, p := range a.SystemPrompt {
		return p
	}
	return ""
}

// AllowsTool reports whether toolName is in the app's allow-list. An empty
// allow-list means no tools are permitted for this app.
func (a AppSpec) AllowsTool(toolName string) bool {
	for _, t := range a.AllowedTools {
		if t == toolName {
			return true
		}
	}
	return false
}

// ChatRequest is the decoded body of POST /api/apps/:appId/chat/:chatId
// (§6). The canonical POST body is the union of every field observed
// across providers; unknown fields are ignored rather than rejected, per
// §9 Open Question (c).
type ChatRequest struct {
	Messages          []types.Message `json:"messages" validate:"required,min=1"`
	ModelID           string          `json:"modelId" validate:"required"`
	Temperature       *float64        `json:"temperature,omitempty"`
	Style             string          `json:"style,omitempty"`
	OutputFormat      string          `json:"outputFormat,omitempty"`
	Language          string          `json:"language,omitempty"`
	UseMaxTokens      bool            `json:"useMaxTokens,omitempty"`
	BypassAppPrompts  bool            `json:"bypassAppPrompts,omitempty"`
	ThinkingEnabled   bool            `json:"thinkingEnabled,omitempty"`
	ThinkingBudget    *int            `json:"thinkingBudget,omitempty"`
	EnabledTools      []string        `json:"enabledTools,omitempty"`
	ImageAspectRatio  string          `json:"imageAspectRatio,omitempty"`
	ImageQuality      string          `json:"imageQuality,omitempty"`
	RequestedSkill    string          `json:"requestedSkill,omitempty"`
}

// ChatAcceptedResponse is returned for a POST that streams its result over
// an already-open SSE channel.
type ChatAcceptedResponse struct {
	Status string `json:"status"`
	ChatID string `json:"chatId"`
}

// ModelTestResponse wraps the verbatim upstream body for the
// GET /api/models/:modelId/chat/test smoke-test endpoint.
type ModelTestResponse struct {
	ModelID string      `json:"modelId"`
	Raw     interface{} `json:"raw"`
}
