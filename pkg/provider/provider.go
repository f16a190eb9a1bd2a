package provider

// Provider is a vendor adapter (C2): it knows how to mint a LanguageModel
// for one of its model IDs. The gateway never needs more than this from a
// vendor — embedding/image/speech surfaces are out of scope.
type Provider interface {
	// Name returns the provider name for logging, telemetry, and the
	// "vendor/model" addressing scheme (§6).
	Name() string

	// LanguageModel returns a language model by ID, or an error if the
	// provider cannot serve it.
	LanguageModel(modelID string) (LanguageModel, error)
}
