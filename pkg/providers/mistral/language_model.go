package mistral

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

// LanguageModel implements provider.LanguageModel for Mistral's
// OpenAI-compatible chat completions API.
type LanguageModel struct {
	provider *Provider
	modelID  string
}

// NewLanguageModel creates a new Mistral language model.
func NewLanguageModel(p *Provider, modelID string) *LanguageModel {
	return &LanguageModel{provider: p, modelID: modelID}
}

func (m *LanguageModel) SpecificationVersion() string  { return "v3" }
func (m *LanguageModel) Provider() string              { return "mistral" }
func (m *LanguageModel) ModelID() string               { return m.modelID }
func (m *LanguageModel) SupportsTools() bool           { return true }
func (m *LanguageModel) SupportsStructuredOutput() bool { return true }
func (m *LanguageModel) SupportsImageInput() bool       { return false }

// DoGenerate performs non-streaming text generation.
func (m *LanguageModel) DoGenerate(ctx context.Context, opts *provider.GenerateOptions) (*types.Response, error) {
	reqBody := m.buildRequestBody(opts, false)
	var response mistralResponse
	if err := m.provider.client.PostJSON(ctx, "/v1/chat/completions", reqBody, &response); err != nil {
		return nil, m.handleError(err)
	}
	return m.convertResponse(response), nil
}

// DoStream performs streaming text generation.
func (m *LanguageModel) DoStream(ctx context.Context, opts *provider.GenerateOptions) (provider.TextStream, error) {
	reqBody := m.buildRequestBody(opts, true)
	httpResp, err := m.provider.client.DoStream(ctx, internalhttp.Request{
		Method:  http.MethodPost,
		Path:    "/v1/chat/completions",
		Body:    reqBody,
		Headers: map[string]string{"Accept": "text/event-stream"},
	})
	if err != nil {
		return nil, m.handleError(err)
	}
	return newMistralStream(httpResp.Body), nil
}

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

	if opts.MaxTokens != nil {
		body["max_tokens"] = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		body["top_p"] = *opts.TopP
	}
	if len(opts.StopSequences) > 0 {
		body["stop"] = opts.StopSequences
	}
	if opts.Seed != nil {
		body["random_seed"] = *opts.Seed
	}
	if len(opts.Tools) > 0 {
		body["tools"] = tool.ToOpenAIFormat(opts.Tools)
		if opts.ToolChoice.Type != "" {
			body["tool_choice"] = tool.ConvertToolChoiceToOpenAI(opts.ToolChoice)
		}
	}
	if opts.ResponseFormat != nil {
		body["response_format"] = map[string]interface{}{
			"type": opts.ResponseFormat.Type,
		}
	}

	return body
}

// convertResponse converts a Mistral response into the canonical Response.
func (m *LanguageModel) convertResponse(response mistralResponse) *types.Response {
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
				msg.ToolCalls[j] = types.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}
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
		Provider: "mistral",
		Choices:  choices,
		Usage:    convertMistralUsage(response.Usage),
		Raw:      response,
	}
}

func (m *LanguageModel) handleError(err error) error {
	return providererrors.NewProviderError("mistral", 0, "", err.Error(), err)
}

// convertMistralUsage converts Mistral's OpenAI-compatible usage block.
func convertMistralUsage(usage mistralUsage) types.Usage {
	promptTokens := int64(usage.PromptTokens)
	completionTokens := int64(usage.CompletionTokens)
	totalTokens := int64(usage.TotalTokens)

	return types.Usage{
		InputTokens:  &promptTokens,
		OutputTokens: &completionTokens,
		TotalTokens:  &totalTokens,
	}
}

type mistralResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int    `json:"index"`
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Role      string           `json:"role"`
			Content   string           `json:"content"`
			ToolCalls []mistralToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage mistralUsage `json:"usage"`
}

type mistralToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type mistralUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type mistralStreamChunk struct {
	Choices []struct {
		Index        int    `json:"index"`
		FinishReason string `json:"finish_reason"`
		Delta        struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *mistralUsage `json:"usage,omitempty"`
}

// mistralStream implements provider.TextStream over Mistral's
// OpenAI-compatible SSE body, reassembling tool-call argument fragments via
// streaming.ToolCallAccumulator keyed by delta index, same as the OpenAI
// adapter.
type mistralStream struct {
	reader         io.ReadCloser
	parser         *streaming.SSEParser
	err            error
	toolCallsState map[int]*streaming.ToolCallAccumulator
	pendingFinish  *string
}

func newMistralStream(reader io.ReadCloser) *mistralStream {
	return &mistralStream{
		reader:         reader,
		parser:         streaming.NewSSEParser(reader),
		toolCallsState: make(map[int]*streaming.ToolCallAccumulator),
	}
}

func (s *mistralStream) Read(p []byte) (n int, err error) { return s.reader.Read(p) }
func (s *mistralStream) Close() error                     { return s.reader.Close() }

func (s *mistralStream) Next() (*provider.StreamChunk, error) {
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

	var chunk mistralStreamChunk
	if err := json.Unmarshal([]byte(event.Data), &chunk); err != nil {
		return nil, fmt.Errorf("failed to parse stream chunk: %w", err)
	}

	if chunk.Usage != nil {
		usage := convertMistralUsage(*chunk.Usage)
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

	if choice.FinishReason != "" {
		if choice.FinishReason == "tool_calls" && len(s.toolCallsState) > 0 {
			return s.flushToolCalls(choice.FinishReason)
		}
		s.err = io.EOF
		return &provider.StreamChunk{
			Type:         provider.ChunkTypeFinish,
			FinishReason: providerutils.MapOpenAIFinishReason(choice.FinishReason),
		}, nil
	}

	return s.Next()
}

func (s *mistralStream) flushToolCalls(finishReason string) (*provider.StreamChunk, error) {
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

func (s *mistralStream) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
