package gateway

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func drainOne(t *testing.T, c *EventChannel) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("expected an event, channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestActionTracker_ConnectedEmitsChatID(t *testing.T) {
	channel := NewEventChannel(4)
	tracker := NewActionTracker("chat-1", channel)

	tracker.Connected()

	ev := drainOne(t, channel)
	if ev.Type != EventConnected {
		t.Fatalf("expected %s, got %s", EventConnected, ev.Type)
	}
	data := ev.Data.(map[string]interface{})
	if data["chatId"] != "chat-1" {
		t.Fatalf("expected chatId chat-1, got %v", data["chatId"])
	}
}

func TestActionTracker_PreparedAndDelta(t *testing.T) {
	channel := NewEventChannel(4)
	tracker := NewActionTracker("chat-1", channel)

	tracker.Prepared("openai:gpt-4o", true)
	tracker.DeltaText("hello")

	prepared := drainOne(t, channel)
	if prepared.Type != EventPrepared {
		t.Fatalf("expected %s, got %s", EventPrepared, prepared.Type)
	}
	pdata := prepared.Data.(map[string]interface{})
	if pdata["model"] != "openai:gpt-4o" || pdata["toolsEnabled"] != true {
		t.Fatalf("unexpected prepared data: %+v", pdata)
	}

	delta := drainOne(t, channel)
	if delta.Type != EventDelta {
		t.Fatalf("expected %s, got %s", EventDelta, delta.Type)
	}
	ddata := delta.Data.(map[string]interface{})
	if ddata["text"] != "hello" {
		t.Fatalf("expected text hello, got %v", ddata["text"])
	}
}

func TestActionTracker_DeltaToolCallFragment(t *testing.T) {
	channel := NewEventChannel(4)
	tracker := NewActionTracker("chat-1", channel)

	tracker.DeltaToolCallFragment("call_1", `{"city":`)

	ev := drainOne(t, channel)
	data := ev.Data.(map[string]interface{})
	frag := data["toolCallFragment"].(map[string]interface{})
	if frag["toolCallId"] != "call_1" || frag["fragment"] != `{"city":` {
		t.Fatalf("unexpected fragment data: %+v", frag)
	}
}

func TestActionTracker_ToolInvokedAndResult(t *testing.T) {
	channel := NewEventChannel(4)
	tracker := NewActionTracker("chat-1", channel)

	tracker.ToolInvoked("call_1", "get_weather", json.RawMessage(`{"city":"berlin"}`))
	tracker.ToolResult("call_1", true, 15*time.Millisecond, "")
	tracker.ToolResult("call_2", false, 0, "TIMEOUT")

	invoked := drainOne(t, channel)
	if invoked.Type != EventToolInvoked {
		t.Fatalf("expected %s, got %s", EventToolInvoked, invoked.Type)
	}

	okResult := drainOne(t, channel)
	okData := okResult.Data.(map[string]interface{})
	if okData["ok"] != true {
		t.Fatalf("expected ok true, got %+v", okData)
	}
	if _, hasKind := okData["errorKind"]; hasKind {
		t.Fatalf("expected no errorKind on a successful result, got %+v", okData)
	}

	failResult := drainOne(t, channel)
	failData := failResult.Data.(map[string]interface{})
	if failData["ok"] != false || failData["errorKind"] != "TIMEOUT" {
		t.Fatalf("unexpected failure result: %+v", failData)
	}
}

func TestActionTracker_ToolLimitExceeded(t *testing.T) {
	channel := NewEventChannel(4)
	tracker := NewActionTracker("chat-1", channel)

	tracker.ToolLimitExceeded(8)

	ev := drainOne(t, channel)
	if ev.Type != EventToolLimitExceeded {
		t.Fatalf("expected %s, got %s", EventToolLimitExceeded, ev.Type)
	}
	data := ev.Data.(map[string]interface{})
	if data["maxRounds"] != 8 {
		t.Fatalf("expected maxRounds 8, got %v", data["maxRounds"])
	}
}

func TestActionTracker_UsageThenDone(t *testing.T) {
	channel := NewEventChannel(4)
	tracker := NewActionTracker("chat-1", channel)

	tracker.Usage(10, 20, 30)
	tracker.Done("stop")

	usage := drainOne(t, channel)
	if usage.Type != EventUsage {
		t.Fatalf("expected usage emitted before done, got %s", usage.Type)
	}
	udata := usage.Data.(map[string]interface{})
	if udata["totalTokens"] != int64(30) {
		t.Fatalf("expected totalTokens 30, got %v", udata["totalTokens"])
	}

	done := drainOne(t, channel)
	if done.Type != EventDone {
		t.Fatalf("expected %s, got %s", EventDone, done.Type)
	}
	if done.Data.(map[string]interface{})["finishReason"] != "stop" {
		t.Fatalf("unexpected done data: %+v", done.Data)
	}
}

func TestActionTracker_ErrorWithAndWithoutRecommendation(t *testing.T) {
	channel := NewEventChannel(4)
	tracker := NewActionTracker("chat-1", channel)

	tracker.Error("RATE_LIMIT", "too many requests", "retry later")
	tracker.Error("INTERNAL_ERROR", "boom", "")

	withRec := drainOne(t, channel).Data.(map[string]interface{})
	if withRec["recommendation"] != "retry later" {
		t.Fatalf("expected recommendation set, got %+v", withRec)
	}

	withoutRec := drainOne(t, channel).Data.(map[string]interface{})
	if _, ok := withoutRec["recommendation"]; ok {
		t.Fatalf("expected no recommendation key when empty, got %+v", withoutRec)
	}
}

func TestActionTracker_Disconnected(t *testing.T) {
	channel := NewEventChannel(4)
	tracker := NewActionTracker("chat-1", channel)

	tracker.Disconnected("client disconnected")

	ev := drainOne(t, channel)
	if ev.Type != EventDisconnected {
		t.Fatalf("expected %s, got %s", EventDisconnected, ev.Type)
	}
	if ev.Data.(map[string]interface{})["reason"] != "client disconnected" {
		t.Fatalf("unexpected disconnected data: %+v", ev.Data)
	}
}

func TestEvent_FrameWireFormat(t *testing.T) {
	ev := Event{Type: EventDelta, Data: map[string]interface{}{"text": "hi"}}

	frame, err := ev.Frame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := string(frame)
	if !strings.HasPrefix(s, "type: delta\ndata: ") {
		t.Fatalf("unexpected frame prefix: %q", s)
	}
	if !strings.HasSuffix(s, "\n\n") {
		t.Fatalf("expected frame to end with a blank line, got: %q", s)
	}
	if !strings.Contains(s, `"text":"hi"`) {
		t.Fatalf("expected marshaled data in frame, got: %q", s)
	}
}

func TestEventChannel_SendAfterCloseDoesNotBlock(t *testing.T) {
	channel := NewEventChannel(1)
	channel.Close()

	done := make(chan struct{})
	go func() {
		channel.Send(Event{Type: EventDone})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Send on a closed channel to return immediately")
	}
}

func TestEventChannel_CloseIsIdempotent(t *testing.T) {
	channel := NewEventChannel(1)
	channel.Close()
	channel.Close() // must not panic
}
