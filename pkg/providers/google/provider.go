package google

import (
	"fmt"

	"github.com/intrafind/llm-gateway/pkg/internal/http"
	"github.com/intrafind/llm-gateway/pkg/provider"
)

const (
	// DefaultBaseURL is the default Google Generative AI API base URL
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
)

// Provider implements the provider.Provider interface for Google (Gemini)
type Provider struct {
	config Config
	client *http.Client
}

// Config contains configuration for the Google provider
type Config struct {
	// APIKey is the Google API key
	APIKey string

	// BaseURL is the base URL for the Google API
	BaseURL string
}

// New creates a new Google provider with the given configuration
func New(cfg Config) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := http.NewClient(http.Config{
		BaseURL: baseURL,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	})

	return &Provider{
		config: cfg,
		client: client,
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "google"
}

// LanguageModel returns a language model by ID
func (p *Provider) LanguageModel(modelID string) (provider.LanguageModel, error) {
	if modelID == "" {
		return nil, fmt.Errorf("model ID cannot be empty")
	}

	return NewLanguageModel(p, modelID), nil
}

// Client returns the HTTP client for making API requests
func (p *Provider) Client() *http.Client {
	return p.client
}

// APIKey returns the API key. Google expects the key as a query parameter
// rather than a header, so adapters read it directly off the provider.
func (p *Provider) APIKey() string {
	return p.config.APIKey
}
