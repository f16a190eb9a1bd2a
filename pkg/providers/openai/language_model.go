package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	internalhttp "github.com/intrafind/llm-gateway/pkg/internal/http"
	"github.com/intrafind/llm-gateway/pkg/provider"
	providererrors "github.com/intrafind/llm-gateway/pkg/provider/errors"
	"github.com/intrafind/llm-gateway/pkg/provider/types"
	"github.com/intrafind/llm-gateway/pkg/providerutils"
	"github.com/intrafind/llm-gateway/pkg/providerutils/prompt"
	"github.com/intrafind/llm-gateway/pkg/providerutils/streaming"
	"github.com/intrafind/llm-gateway/pkg/providerutils/tool"
)

const jsonResponseToolName = "json_response"

// LanguageModel implements provider.LanguageModel for OpenAI's chat
// completions API.
type LanguageModel struct {
	provider *Provider
	modelID  string
}

// NewLanguageModel creates a new OpenAI language model.
func NewLanguageModel(p *Provider, modelID string) *LanguageModel {
	return &LanguageModel{provider: p, modelID: modelID}
}

func (m *LanguageModel) SpecificationVersion() string { return "v3" }
func (m *LanguageModel) Provider() string             { return "openai" }
func (m *LanguageModel) ModelID() string              { return m.modelID }
func (m *LanguageModel) SupportsTools() bool          { return true }
func (m *LanguageModel) SupportsStructuredOutput() bool {
	return true
}

// SupportsImageInput reports whether the model accepts image content parts.
func (m *LanguageModel) SupportsImageInput() bool {
	switch m.modelID {
	case "gpt-4-vision-preview", "gpt-4-turbo", "gpt-4o", "gpt-4o-mini":
		return true
	default:
		return false
	}
}

// DoGenerate performs non-streaming text generation.
func (m *LanguageModel) DoGenerate(ctx context.Context, opts *provider.GenerateOptions) (*types.Response, error) {
	reqBody := m.buildRequestBody(opts, false)

	var response openAIResponse
	if err := m.provider.client.PostJSON(ctx, "/chat/completions", reqBody, &response); err != nil {
		return nil, m.handleError(err)
	}

	return m.convertResponse(response), nil
}

// DoStream performs streaming text generation.
func (m *LanguageModel) DoStream(ctx context.Context, opts *provider.GenerateOptions) (provider.TextStream, error) {
	reqBody := m.buildRequestBody(opts, true)

	httpResp, err := m.provider.client.DoStream(ctx, internalhttp.Request{
		Method:  http.MethodPost,
		Path:    "/chat/completions",
		Body:    reqBody,
		Headers: map[string]string{"Accept": "text/event-stream"},
	})
	if err != nil {
		return nil, m.handleError(err)
	}

	return newOpenAIStream(httpResp.Body), nil
}

// buildRequestBody builds the OpenAI chat.completions request body.
func (m *LanguageModel) buildRequestBody(opts *provider.GenerateOptions, stream bool) map[string]interface{} {
	body := map[string]interface{}{
		"model":  m.modelID,
		"stream": stream,
	}

	messages := prompt.ToOpenAIMessages(opts.Prompt.Messages)
	if system := prompt.ExtractSystemMessage(opts.Prompt); system != "" {
		messages = append([]map[string]interface{}{{
			"role":    "system",
			"content": system,
		}}, messages...)
	}
	body["messages"] = messages

	if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		body["max_tokens"] = *opts.MaxTokens
	}
	if opts.TopP != nil {
		body["top_p"] = *opts.TopP
	}
	if opts.FrequencyPenalty != nil {
		body["frequency_penalty"] = *opts.FrequencyPenalty
	}
	if opts.PresencePenalty != nil {
		body["presence_penalty"] = *opts.PresencePenalty
	}
	if len(opts.StopSequences) > 0 {
		body["stop"] = opts.StopSequences
	}
	if opts.Seed != nil {
		body["seed"] = *opts.Seed
	}

	if len(opts.Tools) > 0 {
		body["tools"] = tool.ToOpenAIFormat(opts.Tools)
		if opts.ToolChoice.Type != "" {
			body["tool_choice"] = tool.ConvertToolChoiceToOpenAI(opts.ToolChoice)
		}
	}

	if opts.ResponseFormat != nil {
		switch opts.ResponseFormat.Type {
		case "json_schema":
			schema := m.schemaAsMap(opts.ResponseFormat.Schema)
			body["response_format"] = map[string]interface{}{
				"type": "json_schema",
				"json_schema": map[string]interface{}{
					"name":        firstNonEmpty(opts.ResponseFormat.Name, jsonResponseToolName),
					"description": opts.ResponseFormat.Description,
					"schema":      tool.EnforceOpenAIStrictSchema(schema),
					"strict":      true,
				},
			}
		case "json_object":
			body["response_format"] = map[string]interface{}{"type": "json_object"}
		}
	}

	return body
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (m *LanguageModel) schemaAsMap(schema interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	if asMap, ok := schema.(map[string]interface{}); ok {
		return asMap
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil
	}
	return asMap
}

// convertResponse converts an OpenAI response into the canonical Response.
func (m *LanguageModel) convertResponse(response openAIResponse) *types.Response {
	choices := make([]types.ResponseChoice, len(response.Choices))
	for i, c := range response.Choices {
		msg := types.Message{Role: types.RoleAssistant}
		if c.Message.Content != "" {
			msg.Content = []types.ContentPart{types.TextContent{Text: c.Message.Content}}
		}
		if len(c.Message.ToolCalls) > 0 {
			msg.ToolCalls = make([]types.ToolCall, len(c.Message.ToolCalls))
			for j, tc := range c.Message.ToolCalls {
				args, err := tool.ParseToolCallArguments(tc.Function.Arguments)
				if err != nil {
					args = map[string]interface{}{"_partial": tc.Function.Arguments}
				}
				msg.ToolCalls[j] = types.ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: args,
				}
			}
		}
		choices[i] = types.ResponseChoice{
			Index:        c.Index,
			Message:      msg,
			FinishReason: providerutils.MapOpenAIFinishReason(c.FinishReason),
		}
	}

	return &types.Response{
		ID:       response.ID,
		Model:    response.Model,
		Provider: "openai",
		Choices:  choices,
		Usage:    convertOpenAIUsage(response.Usage),
		Raw:      response,
	}
}

// convertOpenAIUsage converts OpenAI usage into the canonical Usage shape,
// including prompt-cache and reasoning token breakdowns where reported.
func convertOpenAIUsage(usage openAIUsage) types.Usage {
	promptTokens := int64(usage.PromptTokens)
	completionTokens := int64(usage.CompletionTokens)
	totalTokens := int64(usage.TotalTokens)

	result := types.Usage{
		InputTokens:  &promptTokens,
		OutputTokens: &completionTokens,
		TotalTokens:  &totalTokens,
	}

	var cachedTokens int64
	if usage.PromptTokensDetails != nil && usage.PromptTokensDetails.CachedTokens != nil {
		cachedTokens = int64(*usage.PromptTokensDetails.CachedTokens)
	}

	var reasoningTokens int64
	if usage.CompletionTokensDetails != nil && usage.CompletionTokensDetails.ReasoningTokens != nil {
		reasoningTokens = int64(*usage.CompletionTokensDetails.ReasoningTokens)
	}

	if cachedTokens > 0 {
		noCacheTokens := promptTokens - cachedTokens
		result.InputDetails = &types.InputTokenDetails{
			NoCacheTokens:   &noCacheTokens,
			CacheReadTokens: &cachedTokens,
		}
	}

	if reasoningTokens > 0 {
		textTokens := completionTokens - reasoningTokens
		result.OutputDetails = &types.OutputTokenDetails{
			TextTokens:      &textTokens,
			ReasoningTokens: &reasoningTokens,
		}
	}

	return result
}

func (m *LanguageModel) handleError(err error) error {
	return providererrors.NewProviderError("openai", 0, "", err.Error(), err)
}

// openAIResponse is the OpenAI chat.completions response wire shape.
type openAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage openAIUsage `json:"usage"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	PromptTokensDetails *struct {
		CachedTokens *int `json:"cached_tokens,omitempty"`
	} `json:"prompt_tokens_details,omitempty"`

	CompletionTokensDetails *struct {
		ReasoningTokens *int `json:"reasoning_tokens,omitempty"`
	} `json:"completion_tokens_details,omitempty"`
}

type openAIMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// openAIStream implements provider.TextStream over an OpenAI SSE body,
// reassembling streamed tool-call argument fragments via
// streaming.ToolCallAccumulator keyed by the delta's tool_calls index.
type openAIStream struct {
	reader         io.ReadCloser
	parser         *streaming.SSEParser
	err            error
	toolCallsState map[int]*streaming.ToolCallAccumulator
	pendingFinish  *string
}

func newOpenAIStream(reader io.ReadCloser) *openAIStream {
	return &openAIStream{
		reader:         reader,
		parser:         streaming.NewSSEParser(reader),
		toolCallsState: make(map[int]*streaming.ToolCallAccumulator),
	}
}

func (s *openAIStream) Read(p []byte) (n int, err error) { return s.reader.Read(p) }
func (s *openAIStream) Close() error                     { return s.reader.Close() }

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
}

// Next returns the next chunk in the stream.
func (s *openAIStream) Next() (*provider.StreamChunk, error) {
	if s.err != nil {
		return nil, s.err
	}

	if s.pendingFinish != nil {
		reason := *s.pendingFinish
		s.pendingFinish = nil
		s.err = io.EOF
		return &provider.StreamChunk{
			Type:         provider.ChunkTypeFinish,
			FinishReason: providerutils.MapOpenAIFinishReason(reason),
		}, nil
	}

	event, err := s.parser.Next()
	if err != nil {
		s.err = err
		return nil, err
	}

	if streaming.IsStreamDone(event) {
		s.err = io.EOF
		return nil, io.EOF
	}

	var chunk openAIStreamChunk
	if err := json.Unmarshal([]byte(event.Data), &chunk); err != nil {
		return nil, fmt.Errorf("failed to parse stream chunk: %w", err)
	}

	if chunk.Usage != nil {
		usage := convertOpenAIUsage(*chunk.Usage)
		return &provider.StreamChunk{Type: provider.ChunkTypeUsage, Usage: &usage}, nil
	}

	if len(chunk.Choices) == 0 {
		return s.Next()
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		return &provider.StreamChunk{Type: provider.ChunkTypeText, Text: choice.Delta.Content}, nil
	}

	for _, tc := range choice.Delta.ToolCalls {
		acc, ok := s.toolCallsState[tc.Index]
		if !ok {
			acc = &streaming.ToolCallAccumulator{}
			s.toolCallsState[tc.Index] = acc
		}
		if tc.ID != "" {
			acc.ID = tc.ID
		}
		if tc.Function.Name != "" {
			acc.Name = tc.Function.Name
		}
		if tc.Function.Arguments != "" {
			acc.Append(tc.Function.Arguments)
		}
	}

	if choice.FinishReason != nil {
		if *choice.FinishReason == "tool_calls" && len(s.toolCallsState) > 0 {
			return s.flushToolCalls(*choice.FinishReason)
		}
		s.pendingFinish = nil
		s.err = io.EOF
		return &provider.StreamChunk{
			Type:         provider.ChunkTypeFinish,
			FinishReason: providerutils.MapOpenAIFinishReason(*choice.FinishReason),
		}, nil
	}

	return s.Next()
}

// flushToolCalls emits the accumulated tool call as a chunk and schedules
// the finish chunk for the next call (only one tool call surfaces per Next
// call, so multi-tool-call rounds drain across several Next invocations).
func (s *openAIStream) flushToolCalls(finishReason string) (*provider.StreamChunk, error) {
	for idx, acc := range s.toolCallsState {
		delete(s.toolCallsState, idx)
		args, err := streaming.ParseToolCallArguments(string(acc.ArgsBuf))
		if err != nil {
			args = map[string]interface{}{"_partial": string(acc.ArgsBuf)}
		}
		if len(s.toolCallsState) == 0 {
			s.pendingFinish = &finishReason
		}
		return &provider.StreamChunk{
			Type: provider.ChunkTypeToolCall,
			ToolCall: &types.ToolCall{
				ID:        acc.ID,
				Name:      acc.Name,
				Arguments: args,
			},
		}, nil
	}
	return s.Next()
}

// Err returns any error that occurred during streaming.
func (s *openAIStream) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
