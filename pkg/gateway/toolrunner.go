package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/intrafind/llm-gateway/pkg/provider/types"
	"github.com/intrafind/llm-gateway/pkg/schema"
)

// DefaultToolTimeout is applied to a registered tool when it does not set
// its own Timeout.
const DefaultToolTimeout = 30 * time.Second

// ToolRegistry is a named toolName -> tool lookup, distinct from the linear
// scan pkg/agent/toolloop.go's ToolLoopAgent performs over a fixed slice.
// Grounded on the same Tool/ToolExecutor shape (pkg/provider/types/tool.go)
// but exposed as its own indexed type so the HTTP surface and orchestrator
// can register/resolve tools by name without depending on the agent
// package's broader AgentConfig.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

type registeredTool struct {
	tool      types.Tool
	validator schema.Validator
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]registeredTool)}
}

// Register adds or replaces a tool, deriving a JSON Schema validator from
// its Parameters via pkg/schema.NewJSONSchema.
func (r *ToolRegistry) Register(tool types.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = registeredTool{
		tool:      tool,
		validator: schema.NewJSONSchema(tool.Parameters),
	}
}

// Get returns the tool registered under name.
func (r *ToolRegistry) Get(name string) (types.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	return rt.tool, ok
}

// List returns every registered tool, for building a provider's tool
// definitions on each request.
func (r *ToolRegistry) List() []types.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Tool, 0, len(r.tools))
	for _, rt := range r.tools {
		out = append(out, rt.tool)
	}
	return out
}

// ToolRunner executes tool calls resolved by a ToolRegistry, enforcing
// argument validation, per-tool timeout, and the ToolErrorKind taxonomy.
// Grounded on executeTools in pkg/agent/toolloop.go, generalized to look up
// tools by name in a ToolRegistry instead of scanning a fixed AgentConfig
// tool slice.
type ToolRunner struct {
	registry *ToolRegistry
}

// NewToolRunner creates a runner bound to registry.
func NewToolRunner(registry *ToolRegistry) *ToolRunner {
	return &ToolRunner{registry: registry}
}

// Run executes a single tool call and always returns a ToolResult, never a
// bare Go error — invocation failures are folded into ToolResult.Err per
// the canonical model's contract.
func (r *ToolRunner) Run(ctx context.Context, call types.ToolCall, opts types.ToolExecutionOptions) types.ToolResult {
	rt, ok := r.lookup(call.Name)
	if !ok {
		return types.ToolResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Ok:         false,
			Err: &types.ToolError{
				Kind:    types.ToolErrorNotFound,
				Message: "tool not registered: " + call.Name,
			},
		}
	}

	if rt.validator != nil {
		if err := rt.validator.Validate(call.Arguments); err != nil {
			return types.ToolResult{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Ok:         false,
				Err: &types.ToolError{
					Kind:    types.ToolErrorValidation,
					Message: err.Error(),
				},
			}
		}
	}

	timeout := DefaultToolTimeout
	if rt.tool.Timeout > 0 {
		timeout = time.Duration(rt.tool.Timeout) * time.Millisecond
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		v, err := rt.tool.Execute(runCtx, call.Arguments, opts)
		resultCh <- outcome{value: v, err: err}
	}()

	select {
	case <-runCtx.Done():
		kind := types.ToolErrorTimeout
		msg := "tool execution timed out"
		if ctx.Err() != nil {
			kind = types.ToolErrorExecution
			msg = "tool execution cancelled"
		}
		return types.ToolResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Ok:         false,
			Err:        &types.ToolError{Kind: kind, Message: msg},
		}
	case out := <-resultCh:
		if out.err != nil {
			return types.ToolResult{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Ok:         false,
				Err:        &types.ToolError{Kind: types.ToolErrorExecution, Message: out.err.Error()},
			}
		}
		return types.ToolResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Ok:         true,
			Value:      out.value,
		}
	}
}

func (r *ToolRunner) lookup(name string) (registeredTool, bool) {
	r.registry.mu.RLock()
	defer r.registry.mu.RUnlock()
	rt, ok := r.registry.tools[name]
	return rt, ok
}
