package mistral

import (
	"github.com/intrafind/llm-gateway/pkg/internal/http"
	"github.com/intrafind/llm-gateway/pkg/provider"
)

// Provider implements the provider.Provider interface for Mistral AI
type Provider struct {
	config Config
	client *http.Client
}

// Config contains configuration for the Mistral AI provider
type Config struct {
	// APIKey is the Mistral AI API key
	APIKey string

	// BaseURL is the base URL for the Mistral AI API (optional)
	BaseURL string
}

// New creates a new Mistral AI provider with the given configuration
func New(cfg Config) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.mistral.ai"
	}

	client := http.NewClient(http.Config{
		BaseURL: baseURL,
		Headers: map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
			"Content-Type":  "application/json",
		},
	})

	return &Provider{
		config: cfg,
		client: client,
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "mistral"
}

// LanguageModel returns a language model by ID
func (p *Provider) LanguageModel(modelID string) (provider.LanguageModel, error) {
	if modelID == "" {
		modelID = "mistral-medium"
	}

	return NewLanguageModel(p, modelID), nil
}

// Client returns the HTTP client for making API requests
func (p *Provider) Client() *http.Client {
	return p.client
}
