package ai

import (
	"context"
	"log"

	"github.com/intrafind/llm-gateway/pkg/provider/types"
)

// OnStartEvent fires once when an agent execution begins.
type OnStartEvent struct {
	ModelProvider       string
	ModelID             string
	System              string
	Messages            []types.Message
	Tools               []types.Tool
	Temperature         *float64
	MaxTokens           *int
	ExperimentalContext interface{}
}

// OnStepStartEvent fires at the beginning of each tool-loop round.
type OnStepStartEvent struct {
	StepNumber          int
	ModelProvider       string
	ModelID             string
	System              string
	Messages            []types.Message
	Tools               []types.Tool
	PreviousSteps       []types.StepResult
	ExperimentalContext interface{}
}

// OnStepFinishEvent fires once a round's model call and tool executions
// have both completed.
type OnStepFinishEvent struct {
	StepNumber          int
	ModelProvider       string
	ModelID             string
	Text                string
	ToolCalls           []types.ToolCall
	ToolResults         []types.ToolResult
	FinishReason        types.FinishReason
	Usage               types.Usage
	Warnings            []types.Warning
	ExperimentalContext interface{}
}

// OnToolCallStartEvent fires just before a tool's Execute function runs.
type OnToolCallStartEvent struct {
	ToolCallID          string
	ToolName            string
	Args                map[string]interface{}
	StepNumber          int
	ModelProvider       string
	ModelID             string
	ExperimentalContext interface{}
}

// OnToolCallFinishEvent fires after a tool's Execute function returns.
type OnToolCallFinishEvent struct {
	ToolCallID          string
	ToolName            string
	Args                map[string]interface{}
	Result              interface{}
	Error               error
	DurationMs          int64
	StepNumber          int
	ModelProvider       string
	ModelID             string
	ExperimentalContext interface{}
}

// OnFinishEvent fires once when an agent execution completes, successfully
// or by hitting a stop condition.
type OnFinishEvent struct {
	Text                string
	ToolCalls           []types.ToolCall
	ToolResults         []types.ToolResult
	FinishReason        types.FinishReason
	Steps               []types.StepResult
	TotalUsage          types.Usage
	Warnings            []types.Warning
	ExperimentalContext interface{}
}

// Notify calls listener with event if listener is non-nil. A panic inside
// listener is recovered and logged rather than propagated, so a broken
// structured callback can never abort the agent loop it's observing.
func Notify[E any](ctx context.Context, event E, listener func(ctx context.Context, e E)) {
	if listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("agent: recovered panic in event callback: %v", r)
		}
	}()
	listener(ctx, event)
}
