package types

import "context"

// Tool is a named function the model may invoke. The gateway's Tool
// Registry (C4) holds a map of these keyed by Name; adapters translate
// them into each vendor's tool-definition wire format.
type Tool struct {
	// Name of the tool (must be unique within a registry).
	Name string `json:"name"`

	// Description of what the tool does, shown to the model.
	Description string `json:"description"`

	// Parameters is the JSON Schema (as a decoded map) describing the
	// tool's input shape.
	Parameters map[string]interface{} `json:"parameters"`

	// Execute runs the tool. Not serialized.
	Execute ToolExecutor `json:"-"`

	// Timeout overrides the Runner's default per-tool timeout when > 0.
	Timeout int64 `json:"timeout,omitempty"`
}

// ToolExecutor executes a tool call and returns its result payload.
type ToolExecutor func(ctx context.Context, args map[string]interface{}, opts ToolExecutionOptions) (interface{}, error)

// ToolExecutionOptions carries metadata about the call into Execute.
type ToolExecutionOptions struct {
	// ToolCallID is the id of the call being executed.
	ToolCallID string

	// ChatID identifies the session driving this call, for logging.
	ChatID string
}

// ToolCall is a structured request from the model to invoke a registered
// tool. Arguments are parsed JSON after streaming reassembly; while a
// stream is mid-flight, Arguments may instead carry a provisional
// `{_partial: argsBuf}` form (§4.2, Open Question (a)).
type ToolCall struct {
	// ID is provider-assigned or synthesized (§4.2, Google).
	ID string `json:"id"`

	// Name of the tool to call.
	Name string `json:"name"`

	// Arguments is the parsed argument object.
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolErrorKind closes the set of reasons a tool invocation can fail.
type ToolErrorKind string

const (
	ToolErrorValidation ToolErrorKind = "VALIDATION"
	ToolErrorTimeout    ToolErrorKind = "TIMEOUT"
	ToolErrorNotFound   ToolErrorKind = "NOT_FOUND"
	ToolErrorExecution  ToolErrorKind = "EXECUTION"
)

// ToolError describes why a tool invocation failed.
type ToolError struct {
	Kind    ToolErrorKind `json:"kind"`
	Message string        `json:"message"`
}

// ToolResult is the normalized outcome of a tool invocation. The Runner
// never lets an invocation failure escape as a Go error across its
// boundary; it is always folded into this shape instead.
type ToolResult struct {
	// ToolCallID is the id of the call this result answers.
	ToolCallID string `json:"toolCallId"`

	// ToolName is the name of the tool that was invoked.
	ToolName string `json:"toolName"`

	// Ok is false when the invocation failed for any reason.
	Ok bool `json:"ok"`

	// Value is the tool's return payload when Ok is true.
	Value interface{} `json:"value,omitempty"`

	// Err describes the failure when Ok is false.
	Err *ToolError `json:"error,omitempty"`

	// ProviderExecuted is true when the vendor ran this tool itself (e.g.
	// Anthropic's built-in web-search/code-execution tools) rather than the
	// Runner invoking Tool.Execute locally. The result payload, when set,
	// came back from the provider's next response rather than from Execute.
	ProviderExecuted bool `json:"providerExecuted,omitempty"`
}

// ToolChoiceType is how the model should choose among available tools.
type ToolChoiceType string

const (
	ToolChoiceAuto     ToolChoiceType = "auto"
	ToolChoiceNone     ToolChoiceType = "none"
	ToolChoiceRequired ToolChoiceType = "required"
	ToolChoiceTool     ToolChoiceType = "tool"
)

// ToolChoice specifies how the model should choose tools.
type ToolChoice struct {
	Type ToolChoiceType `json:"type"`

	// Name is the specific tool name, only used when Type is ToolChoiceTool.
	Name string `json:"name,omitempty"`
}

func AutoToolChoice() ToolChoice     { return ToolChoice{Type: ToolChoiceAuto} }
func NoneToolChoice() ToolChoice     { return ToolChoice{Type: ToolChoiceNone} }
func RequiredToolChoice() ToolChoice { return ToolChoice{Type: ToolChoiceRequired} }

func SpecificToolChoice(name string) ToolChoice {
	return ToolChoice{Type: ToolChoiceTool, Name: name}
}
