package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/intrafind/llm-gateway/pkg/ai"
	internalhttp "github.com/intrafind/llm-gateway/pkg/internal/http"
	"github.com/intrafind/llm-gateway/pkg/provider"
	providererrors "github.com/intrafind/llm-gateway/pkg/provider/errors"
	"github.com/intrafind/llm-gateway/pkg/provider/types"
	"github.com/intrafind/llm-gateway/pkg/providerutils"
	"github.com/intrafind/llm-gateway/pkg/providerutils/prompt"
	"github.com/intrafind/llm-gateway/pkg/providerutils/streaming"
	"github.com/intrafind/llm-gateway/pkg/providerutils/tool"
)

// jsonResponseToolName is the synthetic tool Anthropic adapters inject when
// the caller asks for json_schema structured output and the model has no
// native response_format equivalent (§4.2 formatting rules, Open Question c).
const jsonResponseToolName = "json_response"

// LanguageModel implements provider.LanguageModel for Anthropic's Messages API.
type LanguageModel struct {
	provider *Provider
	modelID  string
	options  *ModelOptions
}

// NewLanguageModel creates a new Anthropic language model.
func NewLanguageModel(p *Provider, modelID string, options *ModelOptions) *LanguageModel {
	return &LanguageModel{provider: p, modelID: modelID, options: options}
}

func (m *LanguageModel) SpecificationVersion() string { return "v3" }
func (m *LanguageModel) Provider() string             { return "anthropic" }
func (m *LanguageModel) ModelID() string              { return m.modelID }
func (m *LanguageModel) SupportsTools() bool          { return true }

// SupportsStructuredOutput reports true for every model: unsupported models
// fall back to the synthetic json_response tool rather than failing.
func (m *LanguageModel) SupportsStructuredOutput() bool { return true }

func (m *LanguageModel) SupportsImageInput() bool {
	return m.modelID == Claude3Opus_20240229 ||
		m.modelID == Claude3_5Sonnet_20241022 ||
		strings.Contains(m.modelID, "claude-sonnet-4") ||
		strings.Contains(m.modelID, "claude-opus-4") ||
		strings.Contains(m.modelID, "claude-haiku-4")
}

// DoGenerate performs non-streaming text generation.
func (m *LanguageModel) DoGenerate(ctx context.Context, opts *provider.GenerateOptions) (*types.Response, error) {
	reqBody := m.buildRequestBody(ctx, opts, false)

	var resp anthropicResponse
	if err := m.provider.client.PostJSON(ctx, "/v1/messages", reqBody, &resp); err != nil {
		return nil, m.handleError(err)
	}

	return m.convertResponse(resp), nil
}

// DoStream performs streaming text generation.
func (m *LanguageModel) DoStream(ctx context.Context, opts *provider.GenerateOptions) (provider.TextStream, error) {
	reqBody := m.buildRequestBody(ctx, opts, true)

	httpResp, err := m.provider.client.DoStream(ctx, internalhttp.Request{
		Method: http.MethodPost,
		Path:   "/v1/messages",
		Body:   reqBody,
		Headers: map[string]string{
			"Accept": "text/event-stream",
		},
	})
	if err != nil {
		return nil, m.handleError(err)
	}

	return newAnthropicStream(httpResp.Body), nil
}

func (m *LanguageModel) buildRequestBody(ctx context.Context, opts *provider.GenerateOptions, stream bool) map[string]interface{} {
	body := map[string]interface{}{
		"model":  m.modelID,
		"stream": stream,
	}

	messages := opts.Prompt.Messages
	if m.SupportsImageInput() {
		messages = prompt.ResolveImages(ctx, messages, ai.DefaultDownload)
	}
	body["messages"] = prompt.ToAnthropicMessages(messages)
	if sys := prompt.ExtractSystemMessage(opts.Prompt); sys != "" {
		body["system"] = sys
	}

	maxTokens := 4096
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	body["max_tokens"] = maxTokens

	isThinking := m.options != nil && m.options.Thinking != nil &&
		m.options.Thinking.Type != ThinkingTypeDisabled
	if !isThinking {
		if opts.Temperature != nil {
			body["temperature"] = *opts.Temperature
		}
		if opts.TopK != nil {
			body["top_k"] = *opts.TopK
		}
		if opts.TopP != nil && opts.Temperature == nil {
			body["top_p"] = *opts.TopP
		}
	}
	if len(opts.StopSequences) > 0 {
		body["stop_sequences"] = opts.StopSequences
	}

	tools := opts.Tools
	toolChoice := opts.ToolChoice
	if opts.ResponseFormat != nil && opts.ResponseFormat.Type == "json_schema" && opts.ResponseFormat.Schema != nil {
		tools = append(append([]types.Tool{}, tools...), types.Tool{
			Name:        jsonResponseToolName,
			Description: "Respond using this tool with the structured output requested.",
			Parameters:  schemaAsMap(opts.ResponseFormat.Schema),
		})
		toolChoice = types.SpecificToolChoice(jsonResponseToolName)
	}

	if len(tools) > 0 {
		body["tools"] = tool.ToAnthropicFormat(tools)
		if toolChoice.Type != "" {
			body["tool_choice"] = tool.ConvertToolChoiceToAnthropic(toolChoice)
		}
	}

	if m.options != nil && m.options.Thinking != nil {
		thinkingConfig := map[string]interface{}{"type": string(m.options.Thinking.Type)}
		if m.options.Thinking.Type == ThinkingTypeEnabled && m.options.Thinking.BudgetTokens != nil {
			thinkingConfig["budget_tokens"] = *m.options.Thinking.BudgetTokens
		}
		body["thinking"] = thinkingConfig
	}

	return body
}

func schemaAsMap(schema interface{}) map[string]interface{} {
	if m, ok := schema.(map[string]interface{}); ok {
		return m
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	_ = json.Unmarshal(b, &m)
	return m
}

func (m *LanguageModel) convertResponse(response anthropicResponse) *types.Response {
	msg := types.Message{Role: types.RoleAssistant}

	for _, content := range response.Content {
		switch content.Type {
		case "text":
			msg.Content = append(msg.Content, types.TextContent{Text: content.Text})
		case "tool_use":
			tc := types.ToolCall{ID: content.ID, Name: content.Name, Arguments: content.Input}
			msg.ToolCalls = append(msg.ToolCalls, tc)
			msg.Content = append(msg.Content, types.ToolUseContent{ToolCall: tc})
		}
	}

	return &types.Response{
		ID:       response.ID,
		Model:    response.Model,
		Provider: "anthropic",
		Choices: []types.ResponseChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: providerutils.MapAnthropicFinishReason(response.StopReason),
		}},
		Usage: convertAnthropicUsage(response.Usage),
		Raw:   response,
	}
}

func convertAnthropicUsage(usage anthropicUsage) types.Usage {
	input := int64(usage.InputTokens)
	output := int64(usage.OutputTokens)
	cacheWrite := int64(usage.CacheCreationInputTokens)
	cacheRead := int64(usage.CacheReadInputTokens)
	total := input + output + cacheWrite + cacheRead

	return types.Usage{
		InputTokens:  &input,
		OutputTokens: &output,
		TotalTokens:  &total,
		InputDetails: &types.InputTokenDetails{
			CacheReadTokens:  &cacheRead,
			CacheWriteTokens: &cacheWrite,
		},
	}
}

func (m *LanguageModel) handleError(err error) error {
	return providererrors.NewProviderError("anthropic", 0, "", err.Error(), err)
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

type anthropicContent struct {
	Type  string                 `json:"type"` // "text" or "tool_use"
	Text  string                 `json:"text,omitempty"`
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`
}

// anthropicStream implements provider.TextStream for Anthropic streaming.
type anthropicStream struct {
	reader io.ReadCloser
	parser *streaming.SSEParser
	err    error

	inputTokens, cacheReadTokens, cacheWriteTokens int64

	// toolCallsState mirrors §4.2's per-index accumulator, keyed by SSE
	// content_block index.
	toolCallsState map[int]*streaming.ToolCallAccumulator
	textBlocks     map[int]bool
}

func newAnthropicStream(reader io.ReadCloser) *anthropicStream {
	return &anthropicStream{
		reader:         reader,
		parser:         streaming.NewSSEParser(reader),
		toolCallsState: make(map[int]*streaming.ToolCallAccumulator),
		textBlocks:     make(map[int]bool),
	}
}

func (s *anthropicStream) Read(p []byte) (int, error) { return s.reader.Read(p) }
func (s *anthropicStream) Close() error               { return s.reader.Close() }

func (s *anthropicStream) Next() (*provider.StreamChunk, error) {
	if s.err != nil {
		return nil, s.err
	}

	event, err := s.parser.Next()
	if err != nil {
		s.err = err
		return nil, err
	}

	switch event.Event {
	case "ping":
		return s.Next()

	case "message_start":
		var msg struct {
			Message struct {
				Usage struct {
					InputTokens              int `json:"input_tokens"`
					CacheReadInputTokens     int `json:"cache_read_input_tokens"`
					CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
				} `json:"usage"`
			} `json:"message"`
		}
		if err := json.Unmarshal([]byte(event.Data), &msg); err == nil {
			s.inputTokens = int64(msg.Message.Usage.InputTokens)
			s.cacheReadTokens = int64(msg.Message.Usage.CacheReadInputTokens)
			s.cacheWriteTokens = int64(msg.Message.Usage.CacheCreationInputTokens)
		}
		return s.Next()

	case "content_block_start":
		var start struct {
			Index        int `json:"index"`
			ContentBlock struct {
				Type string `json:"type"`
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"content_block"`
		}
		if err := json.Unmarshal([]byte(event.Data), &start); err != nil {
			return s.Next()
		}
		if start.ContentBlock.Type == "tool_use" {
			s.toolCallsState[start.Index] = &streaming.ToolCallAccumulator{ID: start.ContentBlock.ID, Name: start.ContentBlock.Name}
		} else {
			s.textBlocks[start.Index] = true
		}
		return s.Next()

	case "content_block_delta":
		var delta struct {
			Index int `json:"index"`
			Delta struct {
				Type        string `json:"type"`
				Text        string `json:"text"`
				PartialJSON string `json:"partial_json"`
			} `json:"delta"`
		}
		if err := json.Unmarshal([]byte(event.Data), &delta); err != nil {
			return nil, providererrors.NewStreamingError("malformed content_block_delta", err)
		}
		switch delta.Delta.Type {
		case "text_delta":
			return &provider.StreamChunk{Type: provider.ChunkTypeText, Text: delta.Delta.Text}, nil
		case "input_json_delta":
			if tc := s.toolCallsState[delta.Index]; tc != nil {
				tc.Append(delta.Delta.PartialJSON)
			}
			return s.Next()
		}
		return s.Next()

	case "content_block_stop":
		var stop struct {
			Index int `json:"index"`
		}
		if err := json.Unmarshal([]byte(event.Data), &stop); err != nil {
			return s.Next()
		}
		tc := s.toolCallsState[stop.Index]
		delete(s.toolCallsState, stop.Index)
		delete(s.textBlocks, stop.Index)
		if tc == nil {
			return s.Next()
		}

		args, err := streaming.ParseToolCallArguments(string(tc.ArgsBuf))
		if err != nil {
			// Bounded repair failed: surface the partial buffer per §4.2's
			// documented _partial fallback rather than dropping the call.
			args = map[string]interface{}{"_partial": string(tc.ArgsBuf)}
		}
		return &provider.StreamChunk{
			Type:     provider.ChunkTypeToolCall,
			ToolCall: &types.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: args},
		}, nil

	case "message_delta":
		var delta struct {
			Delta struct {
				StopReason string `json:"stop_reason"`
			} `json:"delta"`
			Usage struct {
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal([]byte(event.Data), &delta); err != nil {
			return nil, providererrors.NewStreamingError("malformed message_delta", err)
		}
		if delta.Delta.StopReason == "" {
			return s.Next()
		}

		outputTokens := int64(delta.Usage.OutputTokens)
		inputTotal := s.inputTokens + s.cacheReadTokens + s.cacheWriteTokens
		total := inputTotal + outputTokens
		usage := &types.Usage{
			InputTokens:  &inputTotal,
			OutputTokens: &outputTokens,
			TotalTokens:  &total,
			InputDetails: &types.InputTokenDetails{
				CacheReadTokens:  &s.cacheReadTokens,
				CacheWriteTokens: &s.cacheWriteTokens,
			},
		}
		return &provider.StreamChunk{
			Type:         provider.ChunkTypeFinish,
			FinishReason: providerutils.MapAnthropicFinishReason(delta.Delta.StopReason),
			Usage:        usage,
		}, nil

	case "message_stop":
		s.err = io.EOF
		return nil, io.EOF
	}

	return s.Next()
}

func (s *anthropicStream) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
