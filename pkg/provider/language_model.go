package provider

import (
	"context"
	"io"

	"github.com/intrafind/llm-gateway/pkg/provider/types"
)

// LanguageModel is the interface every vendor adapter implements. The Chat
// Orchestrator only ever talks to this interface — it never branches on
// provider name.
type LanguageModel interface {
	// Metadata methods
	SpecificationVersion() string // "v3" for every adapter in this tree
	Provider() string             // "openai", "anthropic", "google", "mistral", "vllm"
	ModelID() string

	// Capability methods
	SupportsTools() bool
	SupportsStructuredOutput() bool
	SupportsImageInput() bool

	// Generation methods
	DoGenerate(ctx context.Context, opts *GenerateOptions) (*types.Response, error)
	DoStream(ctx context.Context, opts *GenerateOptions) (TextStream, error)
}

// GenerateOptions contains all options for a single generation round.
type GenerateOptions struct {
	Prompt types.Prompt

	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	TopK             *int
	FrequencyPenalty *float64
	PresencePenalty  *float64
	StopSequences    []string

	Tools      []types.Tool
	ToolChoice types.ToolChoice

	ResponseFormat *ResponseFormat

	Seed    *int
	Headers map[string]string
}

// ResponseFormat requests structured output from the model. Adapters that
// can't express json_schema natively emulate it (synthetic tool-call on
// Anthropic, schema sanitization on vLLM); see providerutils/schema.
type ResponseFormat struct {
	Type        string // "text", "json_object", "json_schema"
	Schema      interface{}
	Name        string
	Description string
}

// TextStream is the per-adapter streaming cursor returned by DoStream. Each
// call to Next returns one normalized StreamChunk; io.EOF ends the stream.
type TextStream interface {
	io.ReadCloser

	Next() (*StreamChunk, error)
	Err() error
}

// StreamChunk is a single normalized event out of an adapter's stream,
// already reassembled from the vendor's wire framing (SSE, partial JSON
// tool-call buffers, etc.) into the shapes the orchestrator understands.
type StreamChunk struct {
	Type ChunkType

	Text string

	// Reasoning carries extended-thinking/reasoning text, only set on
	// ChunkTypeReasoning chunks (Anthropic thinking blocks, OpenAI o-series
	// reasoning summaries).
	Reasoning string

	ToolCall *types.ToolCall

	Usage *types.Usage

	FinishReason types.FinishReason
}

// ChunkType discriminates StreamChunk's payload.
type ChunkType string

const (
	ChunkTypeText      ChunkType = "text"
	ChunkTypeReasoning ChunkType = "reasoning"
	ChunkTypeToolCall  ChunkType = "tool-call"
	ChunkTypeUsage     ChunkType = "usage"
	ChunkTypeFinish    ChunkType = "finish"
	ChunkTypeError     ChunkType = "error"
)
