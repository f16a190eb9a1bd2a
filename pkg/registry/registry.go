// Package registry resolves a "provider:model" string to a concrete
// provider.LanguageModel. Providers are wired into a Registry instance at
// startup (see cmd/gateway) rather than through a package-level singleton,
// so the gateway can construct independent registries per test and avoid
// hidden global state across request goroutines.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/intrafind/llm-gateway/pkg/provider"
)

// Registry manages providers and model alias resolution.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
	aliases   map[string]string // model alias -> provider:model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]provider.Provider),
		aliases:   make(map[string]string),
	}
}

// RegisterProvider registers a provider under a name.
func (r *Registry) RegisterProvider(name string, p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// GetProvider returns a provider by name.
func (r *Registry) GetProvider(name string) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return p, nil
}

// RegisterAlias registers a model alias, e.g. RegisterAlias("default", "openai:gpt-4o").
func (r *Registry) RegisterAlias(alias, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = target
}

// ResolveLanguageModel resolves a "provider:model" string (or a registered
// alias pointing at one) to a LanguageModel.
func (r *Registry) ResolveLanguageModel(model string) (provider.LanguageModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if target, ok := r.aliases[model]; ok {
		model = target
	}

	providerName, modelID, err := parseModelString(model)
	if err != nil {
		return nil, err
	}

	p, ok := r.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerName)
	}

	return p.LanguageModel(modelID)
}

// ListProviders returns all registered provider names.
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// ListAliases returns a copy of the registered alias map.
func (r *Registry) ListAliases() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	aliases := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		aliases[k] = v
	}
	return aliases
}

// parseModelString splits "provider:model" into its two halves.
func parseModelString(model string) (providerName, modelID string, err error) {
	idx := strings.IndexByte(model, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("invalid model string format (expected 'provider:model'): %s", model)
	}
	return model[:idx], model[idx+1:], nil
}
