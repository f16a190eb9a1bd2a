package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

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

// LanguageModel implements provider.LanguageModel for Gemini's
// generateContent API.
type LanguageModel struct {
	provider *Provider
	modelID  string
}

// NewLanguageModel creates a new Google language model.
func NewLanguageModel(p *Provider, modelID string) *LanguageModel {
	return &LanguageModel{provider: p, modelID: modelID}
}

func (m *LanguageModel) SpecificationVersion() string   { return "v3" }
func (m *LanguageModel) Provider() string               { return "google" }
func (m *LanguageModel) ModelID() string                { return m.modelID }
func (m *LanguageModel) SupportsTools() bool             { return true }
func (m *LanguageModel) SupportsStructuredOutput() bool  { return true }

// SupportsImageInput reports whether the model accepts image content parts.
func (m *LanguageModel) SupportsImageInput() bool {
	switch m.modelID {
	case "gemini-pro-vision", "gemini-1.5-pro", "gemini-1.5-flash", "gemini-2.0-flash":
		return true
	default:
		return false
	}
}

// DoGenerate performs non-streaming text generation.
func (m *LanguageModel) DoGenerate(ctx context.Context, opts *provider.GenerateOptions) (*types.Response, error) {
	reqBody := m.buildRequestBody(ctx, opts)
	path := fmt.Sprintf("/v1beta/models/%s:generateContent?key=%s", m.modelID, m.provider.APIKey())

	var response googleResponse
	if err := m.provider.client.PostJSON(ctx, path, reqBody, &response); err != nil {
		return nil, m.handleError(err)
	}

	return m.convertResponse(response), nil
}

// DoStream performs streaming text generation.
func (m *LanguageModel) DoStream(ctx context.Context, opts *provider.GenerateOptions) (provider.TextStream, error) {
	reqBody := m.buildRequestBody(ctx, opts)
	path := fmt.Sprintf("/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s", m.modelID, m.provider.APIKey())

	httpResp, err := m.provider.client.DoStream(ctx, internalhttp.Request{
		Method:  http.MethodPost,
		Path:    path,
		Body:    reqBody,
		Headers: map[string]string{"Accept": "text/event-stream"},
	})
	if err != nil {
		return nil, m.handleError(err)
	}

	return newGoogleStream(httpResp.Body), nil
}

// buildRequestBody builds the Gemini generateContent request body.
func (m *LanguageModel) buildRequestBody(ctx context.Context, opts *provider.GenerateOptions) map[string]interface{} {
	messages := opts.Prompt.Messages
	if m.SupportsImageInput() {
		messages = prompt.ResolveImages(ctx, messages, ai.DefaultDownload)
	}
	body := map[string]interface{}{
		"contents": prompt.ToGoogleMessages(messages),
	}

	if system := prompt.ExtractSystemMessage(opts.Prompt); system != "" {
		body["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{{"text": system}},
		}
	}

	genConfig := map[string]interface{}{}
	if opts.Temperature != nil {
		genConfig["temperature"] = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		genConfig["maxOutputTokens"] = *opts.MaxTokens
	}
	if opts.TopP != nil {
		genConfig["topP"] = *opts.TopP
	}
	if opts.TopK != nil {
		genConfig["topK"] = *opts.TopK
	}
	if len(opts.StopSequences) > 0 {
		genConfig["stopSequences"] = opts.StopSequences
	}

	if opts.ResponseFormat != nil {
		switch opts.ResponseFormat.Type {
		case "json_object":
			genConfig["responseMimeType"] = "application/json"
		case "json_schema":
			genConfig["responseMimeType"] = "application/json"
			genConfig["responseSchema"] = m.schemaAsMap(opts.ResponseFormat.Schema)
		}
	}

	if len(genConfig) > 0 {
		body["generationConfig"] = genConfig
	}

	if len(opts.Tools) > 0 {
		body["tools"] = []map[string]interface{}{
			{"functionDeclarations": tool.ToGoogleFormat(opts.Tools)},
		}
		body["toolConfig"] = map[string]interface{}{
			"functionCallingConfig": map[string]interface{}{
				"mode": tool.ConvertToolChoiceToGoogle(opts.ToolChoice),
			},
		}
	}

	return body
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

// synthesizeToolCallID fabricates a stable-looking call id for a vendor
// that doesn't assign one, following the gateway-wide call_<timestamp>_<index>
// convention (§4.2) so downstream ToolResult routing has something to key on.
func synthesizeToolCallID(index int) string {
	return fmt.Sprintf("call_%d_%d", time.Now().UnixNano(), index)
}

// convertResponse converts a Gemini response into the canonical Response.
// Gemini never assigns tool call IDs, so one is synthesized per call
// (§4.2) to satisfy the canonical ToolCall.ID invariant.
func (m *LanguageModel) convertResponse(response googleResponse) *types.Response {
	choices := make([]types.ResponseChoice, 0, len(response.Candidates))

	for i, candidate := range response.Candidates {
		msg := types.Message{Role: types.RoleAssistant}
		var textParts []types.ContentPart
		var toolCalls []types.ToolCall

		callIndex := 0
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				textParts = append(textParts, types.TextContent{Text: part.Text})
			}
			if part.FunctionCall != nil {
				toolCalls = append(toolCalls, types.ToolCall{
					ID:        synthesizeToolCallID(callIndex),
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				})
				callIndex++
			}
		}
		msg.Content = textParts
		msg.ToolCalls = toolCalls

		choices = append(choices, types.ResponseChoice{
			Index:        i,
			Message:      msg,
			FinishReason: providerutils.MapGoogleFinishReason(candidate.FinishReason),
		})
	}

	usage := types.Usage{}
	if response.UsageMetadata != nil {
		inputTokens := int64(response.UsageMetadata.PromptTokenCount)
		outputTokens := int64(response.UsageMetadata.CandidatesTokenCount)
		totalTokens := int64(response.UsageMetadata.TotalTokenCount)
		usage = types.Usage{
			InputTokens:  &inputTokens,
			OutputTokens: &outputTokens,
			TotalTokens:  &totalTokens,
		}
	}

	return &types.Response{
		Model:    m.modelID,
		Provider: "google",
		Choices:  choices,
		Usage:    usage,
		Raw:      response,
	}
}

func (m *LanguageModel) handleError(err error) error {
	return providererrors.NewProviderError("google", 0, "", err.Error(), err)
}

// googleResponse is the Gemini generateContent response wire shape.
type googleResponse struct {
	Candidates []struct {
		Content struct {
			Parts []googlePart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
		Index        int    `json:"index"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

type googlePart struct {
	Text         string `json:"text,omitempty"`
	FunctionCall *struct {
		Name string                 `json:"name"`
		Args map[string]interface{} `json:"args"`
	} `json:"functionCall,omitempty"`
}

// googleStream implements provider.TextStream over Gemini's SSE body.
// Gemini streams whole candidate parts rather than incremental argument
// fragments, so function calls arrive complete in a single chunk rather
// than needing a ToolCallAccumulator.
type googleStream struct {
	reader io.ReadCloser
	parser *streaming.SSEParser
	err    error
}

func newGoogleStream(reader io.ReadCloser) *googleStream {
	return &googleStream{
		reader: reader,
		parser: streaming.NewSSEParser(reader),
	}
}

func (s *googleStream) Read(p []byte) (n int, err error) { return s.reader.Read(p) }
func (s *googleStream) Close() error                     { return s.reader.Close() }

// Next returns the next chunk in the stream.
func (s *googleStream) Next() (*provider.StreamChunk, error) {
	if s.err != nil {
		return nil, s.err
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

	var chunkData googleResponse
	if err := json.Unmarshal([]byte(event.Data), &chunkData); err != nil {
		return nil, fmt.Errorf("failed to parse stream chunk: %w", err)
	}

	if len(chunkData.Candidates) == 0 {
		return s.Next()
	}
	candidate := chunkData.Candidates[0]

	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			return &provider.StreamChunk{Type: provider.ChunkTypeText, Text: part.Text}, nil
		}
		if part.FunctionCall != nil {
			return &provider.StreamChunk{
				Type: provider.ChunkTypeToolCall,
				ToolCall: &types.ToolCall{
					ID:        synthesizeToolCallID(0),
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				},
			}, nil
		}
	}

	if candidate.FinishReason != "" {
		var usage *types.Usage
		if chunkData.UsageMetadata != nil {
			inputTokens := int64(chunkData.UsageMetadata.PromptTokenCount)
			outputTokens := int64(chunkData.UsageMetadata.CandidatesTokenCount)
			totalTokens := int64(chunkData.UsageMetadata.TotalTokenCount)
			usage = &types.Usage{
				InputTokens:  &inputTokens,
				OutputTokens: &outputTokens,
				TotalTokens:  &totalTokens,
			}
		}
		return &provider.StreamChunk{
			Type:         provider.ChunkTypeFinish,
			FinishReason: providerutils.MapGoogleFinishReason(candidate.FinishReason),
			Usage:        usage,
		}, nil
	}

	return s.Next()
}

// Err returns any error that occurred during streaming.
func (s *googleStream) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
