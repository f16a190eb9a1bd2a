package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// EventType enumerates the SSE event vocabulary a chat session can emit.
// Grounded on spec.md §4.7's event table.
type EventType string

const (
	EventConnected          EventType = "connected"
	EventPrepared           EventType = "prepared"
	EventDelta              EventType = "delta"
	EventSkillActivation    EventType = "skill.activation"
	EventToolInvoked        EventType = "tool.invoked"
	EventToolResult         EventType = "tool.result"
	EventToolLimitExceeded  EventType = "tool_limit_exceeded"
	EventUsage              EventType = "usage"
	EventDone               EventType = "done"
	EventError              EventType = "error"
	EventDisconnected       EventType = "disconnected"
)

// Event is one frame of the SSE fabric. It is written to the wire as
// `type: <Type>\ndata: <json(Data)>\n\n` — spec.md's wire format is
// intentionally non-standard (a `type:` line rather than the conventional
// `event:` the teacher's own gin-server example uses), so the framing lives
// here rather than reusing gin's SSE helpers.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// Frame renders an Event in the gateway's wire format.
func (e Event) Frame() ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal event %s: %w", e.Type, err)
	}
	return fmt.Appendf(nil, "type: %s\ndata: %s\n\n", e.Type, payload), nil
}

// EventChannel is the per-session SSE sink: a single-writer-many-readers
// queue of Events, closed exactly once. Grounded on the teacher's streaming
// handler pattern of draining a channel onto a gin ResponseWriter with
// c.Writer.Flush() after each frame; generalized into a reusable type so
// the HTTP surface, the orchestrator and the action tracker can all depend
// on the same abstraction instead of the handler owning the channel.
type EventChannel struct {
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	createdAt time.Time
}

// NewEventChannel creates an EventChannel with the given buffer size.
func NewEventChannel(buffer int) *EventChannel {
	if buffer <= 0 {
		buffer = 32
	}
	return &EventChannel{
		events:    make(chan Event, buffer),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
}

// Send enqueues ev. It is a no-op (does not block or panic) once the
// channel has been closed, so a late-arriving emit from a cancelled round
// never blocks the emitting goroutine.
func (c *EventChannel) Send(ev Event) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Events returns the receive side for the HTTP handler to read from. The
// underlying channel is never closed; readers select on Done to stop.
func (c *EventChannel) Events() <-chan Event {
	return c.events
}

// Done reports when the channel has been closed.
func (c *EventChannel) Done() <-chan struct{} {
	return c.done
}

// Close closes the channel exactly once.
func (c *EventChannel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// ActionTracker emits the SSE event vocabulary for one session. It is the
// only component permitted to write to a Session's EventChannel, so event
// ordering guarantees (deltas precede that round's tool.invoked; usage
// precedes done) are enforced by construction: every method call is a
// direct, synchronous Send.
type ActionTracker struct {
	chatID  string
	channel *EventChannel
}

// NewActionTracker binds a tracker to chatID's channel.
func NewActionTracker(chatID string, channel *EventChannel) *ActionTracker {
	return &ActionTracker{chatID: chatID, channel: channel}
}

func (t *ActionTracker) emit(typ EventType, data interface{}) {
	t.channel.Send(Event{Type: typ, Data: data})
}

// Connected emits the initial handshake event once an SSE connection opens.
func (t *ActionTracker) Connected() {
	t.emit(EventConnected, map[string]interface{}{
		"chatId": t.chatID,
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Prepared emits once the orchestrator has resolved the model and tool set
// for the round about to start.
func (t *ActionTracker) Prepared(model string, toolsEnabled bool) {
	t.emit(EventPrepared, map[string]interface{}{
		"model":        model,
		"toolsEnabled": toolsEnabled,
	})
}

// DeltaText emits a streamed text fragment.
func (t *ActionTracker) DeltaText(text string) {
	t.emit(EventDelta, map[string]interface{}{"text": text})
}

// DeltaToolCallFragment emits a streamed fragment of an in-progress tool
// call argument buffer (vendors like OpenAI stream tool-call JSON
// incrementally rather than as one chunk).
func (t *ActionTracker) DeltaToolCallFragment(toolCallID, fragment string) {
	t.emit(EventDelta, map[string]interface{}{
		"toolCallFragment": map[string]interface{}{
			"toolCallId": toolCallID,
			"fragment":   fragment,
		},
	})
}

// SkillActivation emits when the orchestrator routes a turn to a named
// skill rather than the default system prompt, grounded on pkg/agent's
// SkillRegistry.
func (t *ActionTracker) SkillActivation(skillName, description string) {
	t.emit(EventSkillActivation, map[string]interface{}{
		"skillName":   skillName,
		"description": description,
	})
}

// ToolInvoked emits just before a tool call executes.
func (t *ActionTracker) ToolInvoked(toolCallID, name string, args json.RawMessage) {
	t.emit(EventToolInvoked, map[string]interface{}{
		"toolCallId": toolCallID,
		"name":       name,
		"args":       args,
	})
}

// ToolResult emits once a tool call finishes, successfully or not.
func (t *ActionTracker) ToolResult(toolCallID string, ok bool, elapsed time.Duration, errorKind string) {
	data := map[string]interface{}{
		"toolCallId": toolCallID,
		"ok":         ok,
		"ms":         elapsed.Milliseconds(),
	}
	if errorKind != "" {
		data["errorKind"] = errorKind
	}
	t.emit(EventToolResult, data)
}

// ToolLimitExceeded emits when a round hits MAX_TOOL_ROUNDS without
// reaching a stop condition.
func (t *ActionTracker) ToolLimitExceeded(maxRounds int) {
	t.emit(EventToolLimitExceeded, map[string]interface{}{"maxRounds": maxRounds})
}

// Usage emits token accounting for a completed round. It must be sent
// before Done for that round.
func (t *ActionTracker) Usage(promptTokens, completionTokens, totalTokens int64) {
	t.emit(EventUsage, map[string]interface{}{
		"promptTokens":     promptTokens,
		"completionTokens": completionTokens,
		"totalTokens":      totalTokens,
	})
}

// Done emits the terminal event for a round.
func (t *ActionTracker) Done(finishReason string) {
	t.emit(EventDone, map[string]interface{}{"finishReason": finishReason})
}

// Error emits a taxonomy error (see pkg/provider/errors) onto the stream.
// This is distinct from an HTTP error response: once an SSE stream is open,
// failures surface as an `error` frame rather than a non-2xx status.
func (t *ActionTracker) Error(code, message, recommendation string) {
	data := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if recommendation != "" {
		data["recommendation"] = recommendation
	}
	t.emit(EventError, data)
}

// Disconnected emits when the session's channel is about to close.
func (t *ActionTracker) Disconnected(reason string) {
	t.emit(EventDisconnected, map[string]interface{}{"reason": reason})
}
