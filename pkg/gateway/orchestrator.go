package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/intrafind/llm-gateway/pkg/agent"
	"github.com/intrafind/llm-gateway/pkg/provider"
	"github.com/intrafind/llm-gateway/pkg/provider/errors"
	"github.com/intrafind/llm-gateway/pkg/provider/types"
	"github.com/intrafind/llm-gateway/pkg/telemetry"
)

// MaxToolRounds bounds the PREP/DISPATCH/STREAM/RUN_TOOLS/APPEND loop
// (§4.5). Exceeding it emits tool_limit_exceeded and a stop-reason done,
// never a ninth tool.invoked.
const MaxToolRounds = 8

// DefaultRoundTimeout bounds a single round's wall-clock time (§4.5).
const DefaultRoundTimeout = 120 * time.Second

// Orchestrator runs the per-session PREP -> DISPATCH -> STREAM -> RUN_TOOLS
// -> APPEND -> DISPATCH/DONE state machine (§4.5). Unlike
// pkg/agent.ToolLoopAgent (which steps through DoGenerate only),
// Orchestrator drives DoStream directly so each round's text arrives as
// incremental `delta` events rather than one completed message — grounded
// on the same bounded tool-loop shape as ToolLoopAgent.ExecuteWithMessages,
// generalized for per-chunk forwarding and Action Tracker emission instead
// of callback notification.
type Orchestrator struct {
	throttler *Throttler
	tools     *ToolRegistry
	runner    *ToolRunner
	skills    *agent.SkillRegistry
	tracer    trace.Tracer
}

// NewOrchestrator wires an Orchestrator from its collaborators. skills and
// tracer may be nil; a nil tracer falls back to telemetry.GetTracer(nil)
// (a no-op tracer), so callers that don't care about spans can omit it.
func NewOrchestrator(throttler *Throttler, tools *ToolRegistry, skills *agent.SkillRegistry, tracer trace.Tracer) *Orchestrator {
	if tracer == nil {
		tracer = telemetry.GetTracer(nil)
	}
	return &Orchestrator{
		throttler: throttler,
		tools:     tools,
		runner:    NewToolRunner(tools),
		skills:    skills,
		tracer:    tracer,
	}
}

// RoundInput is everything PREP needs to resolve a round.
type RoundInput struct {
	ChatID  string
	App     AppSpec
	Model   ModelSpec
	LM      provider.LanguageModel
	Request ChatRequest
}

// Run executes the full state machine for one submitted turn, emitting
// every event through tracker, and returns the final conversation vector
// (messages appended across every round) once DONE is reached.
func (o *Orchestrator) Run(ctx context.Context, in RoundInput, tracker *ActionTracker) ([]types.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultRoundTimeout)
	defer cancel()

	messages := append([]types.Message(nil), in.Request.Messages...)

	allowedTools := o.resolveTools(in.App, in.Request.EnabledTools)
	toolsEnabled := make([]string, 0, len(allowedTools))
	for _, t := range allowedTools {
		toolsEnabled = append(toolsEnabled, t.Name)
	}

	if in.Request.RequestedSkill != "" && o.skills != nil {
		if skill, ok := o.skills.Get(in.Request.RequestedSkill); ok {
			tracker.SkillActivation(skill.Name, skill.Description)
		}
	}

	tracker.Prepared(in.Model.ID, len(toolsEnabled) > 0)

	system := o.buildSystemPrompt(in.App, in.Request)
	var totalUsage types.Usage

	for round := 0; round < MaxToolRounds; round++ {
		prompt := types.Prompt{Messages: messages, System: system}

		type roundResult struct {
			msg    types.Message
			calls  []types.ToolCall
			finish types.FinishReason
			usage  types.Usage
		}

		res, err := telemetry.RecordSpan(ctx, o.tracer, telemetry.SpanOptions{
			Name:        "gateway.orchestrator.round",
			Attributes:  telemetry.GetBaseAttributes(in.Model.Provider, in.Model.ID, nil, nil),
			EndWhenDone: true,
		}, func(ctx context.Context, _ trace.Span) (roundResult, error) {
			chunks, roundErr := o.dispatch(ctx, in, prompt, allowedTools)
			if roundErr != nil {
				return roundResult{}, roundErr
			}
			msg, calls, finish, usage, streamErr := o.stream(ctx, chunks, tracker)
			if streamErr != nil {
				return roundResult{}, streamErr
			}
			return roundResult{msg: msg, calls: calls, finish: finish, usage: usage}, nil
		})
		if err != nil {
			return messages, err
		}
		assistantMsg, pendingCalls, finish := res.msg, res.calls, res.finish
		totalUsage = totalUsage.Add(res.usage)
		messages = append(messages, assistantMsg)

		if finish != types.FinishReasonToolCalls || len(pendingCalls) == 0 {
			tracker.Usage(totalUsage.GetInputTokens(), totalUsage.GetOutputTokens(), totalUsage.GetTotalTokens())
			tracker.Done(string(finish))
			return messages, nil
		}

		toolMessages := o.runTools(ctx, in.ChatID, pendingCalls, tracker)
		messages = append(messages, toolMessages...)
	}

	tracker.ToolLimitExceeded(MaxToolRounds)
	tracker.Usage(totalUsage.GetInputTokens(), totalUsage.GetOutputTokens(), totalUsage.GetTotalTokens())
	tracker.Done(string(types.FinishReasonStop))
	return messages, nil
}

func (o *Orchestrator) resolveTools(app AppSpec, requested []string) []types.Tool {
	var allowed []string
	if len(requested) > 0 {
		allowed = requested
	} else {
		allowed = app.AllowedTools
	}

	out := make([]types.Tool, 0, len(allowed))
	for _, name := range allowed {
		if !app.AllowsTool(name) && len(app.AllowedTools) > 0 {
			continue
		}
		if t, ok := o.tools.Get(name); ok {
			out = append(out, t)
		}
	}
	return out
}

func (o *Orchestrator) buildSystemPrompt(app AppSpec, req ChatRequest) string {
	if req.BypassAppPrompts {
		return ""
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}
	prompt := app.SystemPromptFor(lang)
	if req.Style != "" {
		prompt = fmt.Sprintf("%s\n\nStyle: %s", prompt, req.Style)
	}
	if req.OutputFormat != "" {
		prompt = fmt.Sprintf("%s\nOutput format: %s", prompt, req.OutputFormat)
	}
	for k, v := range app.Variables {
		prompt = replaceVariable(prompt, k, v)
	}
	return prompt
}

func replaceVariable(s, key, value string) string {
	token := "{{" + key + "}}"
	return strings.ReplaceAll(s, token, value)
}

// dispatch acquires a throttle permit for the model's upstream and opens
// the adapter's stream. The permit covers only the DoStream call that opens
// the stream: it is released as soon as the stream is returned, so reading
// the stream in o.stream does not count against the upstream's limit.
func (o *Orchestrator) dispatch(ctx context.Context, in RoundInput, prompt types.Prompt, tools []types.Tool) (provider.TextStream, error) {
	opts := &provider.GenerateOptions{
		Prompt:     prompt,
		Tools:      tools,
		ToolChoice: types.AutoToolChoice(),
	}
	if in.Request.Temperature != nil {
		opts.Temperature = in.Request.Temperature
	}
	if in.Model.MaxTokens != nil && in.Request.UseMaxTokens {
		opts.MaxTokens = in.Model.MaxTokens
	}

	var stream provider.TextStream
	err := o.throttler.ThrottledRequest(ctx, in.Model.Provider, func(ctx context.Context) error {
		s, err := in.LM.DoStream(ctx, opts)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, wrapDispatchError(in.Model.Provider, err)
	}
	return stream, nil
}

// wrapDispatchError leaves an already taxonomy-shaped error (anything
// implementing errors.HTTPStatuser) untouched, and wraps anything else —
// a bare net/http error from DoStream's transport — as a NetworkError so
// the HTTP Surface always has a status to map.
func wrapDispatchError(providerName string, err error) error {
	var statuser errors.HTTPStatuser
	if stderrors.As(err, &statuser) {
		return err
	}
	timeout := stderrors.Is(err, context.DeadlineExceeded)
	return &errors.NetworkError{Provider: providerName, Message: err.Error(), Timeout: timeout, Cause: err}
}

// stream drains chunks until the round completes, forwarding text as delta
// events and accumulating finalized tool calls. It always closes chunks.
func (o *Orchestrator) stream(ctx context.Context, chunks provider.TextStream, tracker *ActionTracker) (types.Message, []types.ToolCall, types.FinishReason, types.Usage, error) {
	defer chunks.Close()

	var text string
	var toolCalls []types.ToolCall
	var usage types.Usage
	finish := types.FinishReasonStop

	for {
		select {
		case <-ctx.Done():
			tracker.Disconnected("timeout")
			return types.Message{}, nil, "", usage, ctx.Err()
		default:
		}

		chunk, err := chunks.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return types.Message{}, nil, "", usage, &errors.StreamingError{Message: "upstream stream read failed", Cause: err}
		}
		if chunk == nil {
			break
		}

		switch chunk.Type {
		case provider.ChunkTypeText:
			if chunk.Text != "" {
				text += chunk.Text
				tracker.DeltaText(chunk.Text)
			}
		case provider.ChunkTypeToolCall:
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
		case provider.ChunkTypeUsage:
			if chunk.Usage != nil {
				usage = usage.Add(*chunk.Usage)
			}
		case provider.ChunkTypeFinish:
			if chunk.FinishReason != "" {
				finish = chunk.FinishReason
			}
			if chunk.Usage != nil {
				usage = usage.Add(*chunk.Usage)
			}
		case provider.ChunkTypeError:
			return types.Message{}, nil, "", usage, &errors.StreamingError{Message: chunk.Text}
		}
	}

	if len(toolCalls) > 0 {
		finish = types.FinishReasonToolCalls
	}

	msg := types.Message{
		Role:      types.RoleAssistant,
		Content:   []types.ContentPart{types.TextContent{Text: text}},
		ToolCalls: toolCalls,
	}
	return msg, toolCalls, finish, usage, nil
}

// runTools executes every pending call in arrival order (§4.4: "same order
// as input calls") and folds each outcome into a role=tool Message.
func (o *Orchestrator) runTools(ctx context.Context, chatID string, calls []types.ToolCall, tracker *ActionTracker) []types.Message {
	out := make([]types.Message, 0, len(calls))
	for _, call := range calls {
		tracker.ToolInvoked(call.ID, call.Name, mustMarshalArgs(call.Arguments))

		start := time.Now()
		result := o.runner.Run(ctx, call, types.ToolExecutionOptions{ToolCallID: call.ID, ChatID: chatID})
		elapsed := time.Since(start)

		errorKind := ""
		if !result.Ok && result.Err != nil {
			errorKind = string(result.Err.Kind)
		}
		tracker.ToolResult(call.ID, result.Ok, elapsed, errorKind)

		content := types.ToolResultContent{
			ToolCallID: result.ToolCallID,
			ToolName:   result.ToolName,
			Value:      result.Value,
		}
		isError := false
		if !result.Ok {
			isError = true
			if result.Err != nil {
				content.Error = result.Err.Message
			}
		}

		out = append(out, types.Message{
			Role:       types.RoleTool,
			Content:    []types.ContentPart{content},
			ToolCallID: result.ToolCallID,
			ToolName:   result.ToolName,
			IsError:    isError,
		})
	}
	return out
}

// mustMarshalArgs renders a tool call's arguments for the tool.invoked
// event payload. Arguments is always JSON-safe (it was itself decoded from
// JSON, or built by the adapter's streaming parser), so marshal failure
// here would indicate a canonical-model invariant violation rather than a
// recoverable condition — fall back to an empty object rather than panic.
func mustMarshalArgs(args map[string]interface{}) json.RawMessage {
	b, err := json.Marshal(args)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
