package types

import "encoding/json"

// MessageRole represents the role of a message sender in a conversation.
type MessageRole string

const (
	// RoleSystem represents system instructions.
	RoleSystem MessageRole = "system"
	// RoleUser represents user input.
	RoleUser MessageRole = "user"
	// RoleAssistant represents model responses.
	RoleAssistant MessageRole = "assistant"
	// RoleTool represents tool execution results.
	RoleTool MessageRole = "tool"
)

// Message is the canonical unit of conversation exchanged between the
// gateway and the upstream adapters. Once appended to a conversation
// vector it is treated as immutable.
type Message struct {
	// Role of the message sender.
	Role MessageRole `json:"role"`

	// Content parts of the message (text, image, tool_use, tool_result).
	// Image parts only ever appear on role=user messages.
	Content []ContentPart `json:"content"`

	// Optional name for the message sender.
	Name string `json:"name,omitempty"`

	// ToolCalls is set only on assistant messages that request tool
	// invocations. Textual content may be empty when this is non-empty.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// ToolCallID identifies the call being answered. Non-empty on every
	// role=tool message.
	ToolCallID string `json:"toolCallId,omitempty"`

	// ToolName is the name of the tool being answered, set on role=tool
	// messages alongside ToolCallID.
	ToolName string `json:"toolName,omitempty"`

	// IsError marks a tool-result message whose payload carries an error.
	IsError bool `json:"isError,omitempty"`
}

// messageWire mirrors Message's JSON shape with Content resolved to the
// wire-tagged representation instead of the ContentPart interface.
type messageWire struct {
	Role       MessageRole       `json:"role"`
	Content    []wireContentPart `json:"content"`
	Name       string            `json:"name,omitempty"`
	ToolCalls  []ToolCall        `json:"toolCalls,omitempty"`
	ToolCallID string            `json:"toolCallId,omitempty"`
	ToolName   string            `json:"toolName,omitempty"`
	IsError    bool              `json:"isError,omitempty"`
}

// MarshalJSON encodes Content's closed ContentPart set with an explicit
// "type" discriminant so the same bytes decode back via UnmarshalJSON.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{
		Role:       m.Role,
		Name:       m.Name,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
		ToolName:   m.ToolName,
		IsError:    m.IsError,
	}
	for _, part := range m.Content {
		wp, err := marshalContentPart(part)
		if err != nil {
			return nil, err
		}
		w.Content = append(w.Content, wp)
	}
	return json.Marshal(w)
}

// UnmarshalJSON recovers Content's concrete ContentPart variants from each
// element's "type" discriminant.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.Name = w.Name
	m.ToolCalls = w.ToolCalls
	m.ToolCallID = w.ToolCallID
	m.ToolName = w.ToolName
	m.IsError = w.IsError
	m.Content = nil
	for _, wp := range w.Content {
		part, err := wp.toContentPart()
		if err != nil {
			return err
		}
		m.Content = append(m.Content, part)
	}
	return nil
}

// Text concatenates every TextContent part of the message. It is used to
// reconstruct the flat `content` string required by round-trip invariants.
func (m Message) Text() string {
	var out string
	for _, part := range m.Content {
		if t, ok := part.(TextContent); ok {
			out += t.Text
		}
	}
	return out
}

// ContentPart is a part of message content. Implementations form a closed
// set: text, image, tool_use, tool_result.
type ContentPart interface {
	ContentType() string
}

// wireContentPart is the on-the-wire shape of a ContentPart: a discriminant
// "type" field alongside whichever variant's fields are populated. Message
// JSON arrives over HTTP (§6 POST body) where ContentPart's closed set of
// concrete types must be recovered from a "type" tag rather than Go's
// static type information.
type wireContentPart struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Image    []byte `json:"image,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URL      string `json:"url,omitempty"`

	ToolCall *ToolCall `json:"toolCall,omitempty"`

	ToolCallID string      `json:"toolCallId,omitempty"`
	ToolName   string      `json:"toolName,omitempty"`
	Value      interface{} `json:"value,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func marshalContentPart(part ContentPart) (wireContentPart, error) {
	w := wireContentPart{Type: part.ContentType()}
	switch p := part.(type) {
	case TextContent:
		w.Text = p.Text
	case ImageContent:
		w.Image = p.Image
		w.MimeType = p.MimeType
		w.URL = p.URL
	case ToolUseContent:
		w.ToolCall = &p.ToolCall
	case ToolResultContent:
		w.ToolCallID = p.ToolCallID
		w.ToolName = p.ToolName
		w.Value = p.Value
		w.Error = p.Error
	default:
		return wireContentPart{}, &json.UnsupportedTypeError{}
	}
	return w, nil
}

func (w wireContentPart) toContentPart() (ContentPart, error) {
	switch w.Type {
	case "text", "":
		return TextContent{Text: w.Text}, nil
	case "image":
		return ImageContent{Image: w.Image, MimeType: w.MimeType, URL: w.URL}, nil
	case "tool_use":
		if w.ToolCall == nil {
			return nil, &json.UnmarshalTypeError{Value: "tool_use content part missing toolCall"}
		}
		return ToolUseContent{ToolCall: *w.ToolCall}, nil
	case "tool_result":
		return ToolResultContent{
			ToolCallID: w.ToolCallID,
			ToolName:   w.ToolName,
			Value:      w.Value,
			Error:      w.Error,
		}, nil
	default:
		return nil, &json.UnmarshalTypeError{Value: "unknown content part type: " + w.Type}
	}
}

// TextContent is a plain text content part.
type TextContent struct {
	Text string `json:"text"`
}

func (t TextContent) ContentType() string { return "text" }

// ImageContent is an image content part. Exactly one of URL or (Image,
// MimeType) is populated; adapters normalize between the two per vendor
// formatting rules.
type ImageContent struct {
	// Image holds raw decoded bytes when the part carries inline data.
	Image []byte `json:"image,omitempty"`

	// MimeType of the image, e.g. "image/png".
	MimeType string `json:"mimeType,omitempty"`

	// URL references a remotely hosted image.
	URL string `json:"url,omitempty"`
}

func (i ImageContent) ContentType() string { return "image" }

// ToolUseContent represents a model-issued tool invocation embedded in
// message content (the shape Anthropic and Google use inline rather than
// as a side channel). The orchestrator normalizes this into Message.ToolCalls
// on ingest; adapters reconstruct it on egress for vendors that require it.
type ToolUseContent struct {
	ToolCall ToolCall `json:"toolCall"`
}

func (t ToolUseContent) ContentType() string { return "tool_use" }

// ToolResultContent represents a tool execution result folded back into a
// message, either as a standalone role=tool message (OpenAI family) or as a
// content block on a user message (Anthropic).
type ToolResultContent struct {
	// ToolCallID is the id of the tool call this result answers.
	ToolCallID string `json:"toolCallId"`

	// ToolName is the name of the tool that was executed.
	ToolName string `json:"toolName"`

	// Value is the tool result payload (already JSON-safe).
	Value interface{} `json:"value,omitempty"`

	// Error is set when the tool result carries an error payload; Value
	// is typically the error message in this case.
	Error string `json:"error,omitempty"`
}

func (t ToolResultContent) ContentType() string { return "tool_result" }

// Prompt is the input handed to an adapter: a system instruction plus an
// ordered list of conversation messages. System is extracted and
// partitioned per vendor by the adapter (§4.2).
type Prompt struct {
	// Messages in the conversation, excluding any role=system entries
	// (those are folded into System by the caller).
	Messages []Message

	// System is the concatenation of all system messages, separated by a
	// blank line, in the order they appeared.
	System string
}
