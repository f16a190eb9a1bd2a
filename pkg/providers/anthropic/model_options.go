package anthropic

// Effort names a reasoning effort level. It is carried on ModelOptions but
// is not included in the request body sent to the API.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
	EffortMax    Effort = "max"
)

// ThinkingType is the kind of extended-thinking configuration sent to the API.
type ThinkingType string

const (
	ThinkingTypeEnabled  ThinkingType = "enabled"
	ThinkingTypeDisabled ThinkingType = "disabled"
)

// ThinkingConfig configures Claude's extended thinking. It is set only
// through the ModelOptions passed to NewLanguageModel; Provider.LanguageModel
// passes no options, so models obtained that way send no thinking config.
type ThinkingConfig struct {
	Type ThinkingType `json:"type"`

	// BudgetTokens is only valid for ThinkingTypeEnabled; it counts towards
	// max_tokens and must be at least 1024.
	BudgetTokens *int `json:"budget_tokens,omitempty"`
}

// ModelOptions carries Anthropic-specific generation settings that have no
// equivalent in the vendor-neutral GenerateOptions.
type ModelOptions struct {
	Thinking *ThinkingConfig

	Effort Effort
}
