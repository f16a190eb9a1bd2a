// Package middleware provides middleware functionality for wrapping AI models
// with additional behavior like JSON or reasoning extraction, parameter
// transformation, and operation wrapping.
//
// Middleware can be applied to individual models or to entire providers:
//
//	// Apply middleware to a single model
//	model, err := openai.New(openai.Config{APIKey: "..."}).LanguageModel("gpt-4")
//	wrapped := middleware.WrapLanguageModel(model, []*middleware.LanguageModelMiddleware{
//		middleware.ExtractJSONMiddleware(nil),
//	}, nil, nil)
//
//	// Apply middleware to all models from a provider
//	p := openai.New(openai.Config{APIKey: "..."})
//	wrappedProvider := middleware.WrapProvider(p,
//		[]*middleware.LanguageModelMiddleware{
//			middleware.ExtractJSONMiddleware(nil),
//		},
//	)
package middleware
