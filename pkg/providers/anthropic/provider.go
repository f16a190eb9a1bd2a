package anthropic

import (
	"fmt"

	"github.com/intrafind/llm-gateway/pkg/internal/http"
	"github.com/intrafind/llm-gateway/pkg/provider"
)

const (
	// DefaultBaseURL is the default Anthropic API base URL
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is the default Anthropic API version
	DefaultAPIVersion = "2023-06-01"
)

// Provider implements the provider.Provider interface for Anthropic
type Provider struct {
	config Config
	client *http.Client
}

// Config contains configuration for the Anthropic provider
type Config struct {
	// APIKey is the Anthropic API key
	APIKey string

	// BaseURL is the base URL for the Anthropic API (default: https://api.anthropic.com)
	BaseURL string

	// APIVersion is the Anthropic API version (default: 2023-06-01)
	APIVersion string
}

// New creates a new Anthropic provider with the given configuration
func New(cfg Config) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	headers := map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": apiVersion,
	}

	client := http.NewClient(http.Config{
		BaseURL: baseURL,
		Headers: headers,
	})

	return &Provider{
		config: cfg,
		client: client,
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "anthropic"
}

// LanguageModel returns a language model by ID
func (p *Provider) LanguageModel(modelID string) (provider.LanguageModel, error) {
	if modelID == "" {
		return nil, fmt.Errorf("model ID cannot be empty")
	}

	return NewLanguageModel(p, modelID, nil), nil
}

// Client returns the HTTP client for making API requests
func (p *Provider) Client() *http.Client {
	return p.client
}
