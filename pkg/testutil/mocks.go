// Package testutil provides mock implementations for testing gateway
// components against the provider.LanguageModel / provider.Provider
// interfaces without hitting real upstreams.
package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/intrafind/llm-gateway/pkg/provider"
	"github.com/intrafind/llm-gateway/pkg/provider/types"
)

// MockLanguageModel is a mock implementation of provider.LanguageModel.
type MockLanguageModel struct {
	DoGenerateFunc func(ctx context.Context, opts *provider.GenerateOptions) (*types.Response, error)
	DoStreamFunc   func(ctx context.Context, opts *provider.GenerateOptions) (provider.TextStream, error)

	ProviderName      string
	ModelName         string
	ToolSupport       bool
	StructuredSupport bool
	ImageSupport      bool

	mu            sync.Mutex
	GenerateCalls []*provider.GenerateOptions
	StreamCalls   []*provider.GenerateOptions
}

func (m *MockLanguageModel) SpecificationVersion() string { return "v3" }

func (m *MockLanguageModel) Provider() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockLanguageModel) ModelID() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

func (m *MockLanguageModel) SupportsTools() bool            { return m.ToolSupport }
func (m *MockLanguageModel) SupportsStructuredOutput() bool { return m.StructuredSupport }
func (m *MockLanguageModel) SupportsImageInput() bool       { return m.ImageSupport }

func (m *MockLanguageModel) DoGenerate(ctx context.Context, opts *provider.GenerateOptions) (*types.Response, error) {
	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, opts)
	m.mu.Unlock()

	if m.DoGenerateFunc != nil {
		return m.DoGenerateFunc(ctx, opts)
	}

	inputTokens := int64(10)
	outputTokens := int64(5)
	totalTokens := int64(15)
	return &types.Response{
		Model:    m.ModelID(),
		Provider: m.Provider(),
		Choices: []types.ResponseChoice{{
			Index: 0,
			Message: types.Message{
				Role:    types.RoleAssistant,
				Content: []types.ContentPart{types.TextContent{Text: "mock response"}},
			},
			FinishReason: types.FinishReasonStop,
		}},
		Usage: types.Usage{InputTokens: &inputTokens, OutputTokens: &outputTokens, TotalTokens: &totalTokens},
	}, nil
}

func (m *MockLanguageModel) DoStream(ctx context.Context, opts *provider.GenerateOptions) (provider.TextStream, error) {
	m.mu.Lock()
	m.StreamCalls = append(m.StreamCalls, opts)
	m.mu.Unlock()

	if m.DoStreamFunc != nil {
		return m.DoStreamFunc(ctx, opts)
	}
	return NewMockTextStream([]provider.StreamChunk{
		{Type: provider.ChunkTypeText, Text: "mock "},
		{Type: provider.ChunkTypeText, Text: "response"},
		{Type: provider.ChunkTypeFinish, FinishReason: types.FinishReasonStop},
	}), nil
}

// MockTextStream is a mock implementation of provider.TextStream.
type MockTextStream struct {
	chunks []provider.StreamChunk
	index  int
	err    error
	closed bool
	mu     sync.Mutex
}

// NewMockTextStream creates a new MockTextStream with the given chunks.
func NewMockTextStream(chunks []provider.StreamChunk) *MockTextStream {
	return &MockTextStream{chunks: chunks}
}

// NewMockTextStreamWithError creates a MockTextStream that returns an error.
func NewMockTextStreamWithError(err error) *MockTextStream {
	return &MockTextStream{err: err}
}

func (m *MockTextStream) Next() (*provider.StreamChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if m.closed {
		return nil, io.EOF
	}
	if m.index >= len(m.chunks) {
		return nil, io.EOF
	}

	chunk := &m.chunks[m.index]
	m.index++
	return chunk, nil
}

func (m *MockTextStream) Read(p []byte) (n int, err error) {
	chunk, err := m.Next()
	if err != nil {
		return 0, err
	}
	if chunk.Type == provider.ChunkTypeText {
		copy(p, chunk.Text)
		return len(chunk.Text), nil
	}
	return 0, nil
}

func (m *MockTextStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockTextStream) Err() error { return m.err }

// MockProvider is a mock implementation of provider.Provider.
type MockProvider struct {
	ProviderName      string
	LanguageModelFunc func(modelID string) (provider.LanguageModel, error)
}

func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockProvider) LanguageModel(modelID string) (provider.LanguageModel, error) {
	if m.LanguageModelFunc != nil {
		return m.LanguageModelFunc(modelID)
	}
	return &MockLanguageModel{
		ProviderName: m.Name(),
		ModelName:    modelID,
	}, nil
}
