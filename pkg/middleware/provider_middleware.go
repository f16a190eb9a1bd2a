package middleware

import (
	"github.com/intrafind/llm-gateway/pkg/provider"
)

// wrappedProvider wraps a Provider with middleware
type wrappedProvider struct {
	provider                provider.Provider
	languageModelMiddleware []*LanguageModelMiddleware
}

// WrapProvider wraps a Provider instance with middleware functionality,
// applying it to every language model it resolves.
func WrapProvider(p provider.Provider, languageModelMiddleware []*LanguageModelMiddleware) provider.Provider {
	return &wrappedProvider{
		provider:                p,
		languageModelMiddleware: languageModelMiddleware,
	}
}

// Name returns the provider name
func (w *wrappedProvider) Name() string {
	return w.provider.Name()
}

// LanguageModel returns a language model by ID, with middleware applied
func (w *wrappedProvider) LanguageModel(modelID string) (provider.LanguageModel, error) {
	model, err := w.provider.LanguageModel(modelID)
	if err != nil {
		return nil, err
	}

	if len(w.languageModelMiddleware) > 0 {
		model = WrapLanguageModel(model, w.languageModelMiddleware, nil, nil)
	}

	return model, nil
}
