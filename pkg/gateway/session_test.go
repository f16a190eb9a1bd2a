package gateway

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/intrafind/llm-gateway/pkg/provider/errors"
)

func TestSessionManager_OpenAndGet(t *testing.T) {
	m := NewSessionManager()
	channel := NewEventChannel(4)

	s, err := m.Open("chat-1", "app-1", channel)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if s.ChatID != "chat-1" || s.AppID != "app-1" {
		t.Fatalf("unexpected session fields: %+v", s)
	}

	got := m.Get("chat-1")
	if got != s {
		t.Fatal("expected Get to return the same session instance")
	}

	if m.Get("missing") != nil {
		t.Fatal("expected nil for an unopened chat id")
	}
}

func TestSessionManager_OpenTwiceIsBusy(t *testing.T) {
	m := NewSessionManager()
	if _, err := m.Open("chat-1", "app-1", NewEventChannel(1)); err != nil {
		t.Fatalf("unexpected error on first open: %v", err)
	}

	_, err := m.Open("chat-1", "app-2", NewEventChannel(1))
	if err == nil {
		t.Fatal("expected BusyError reopening an already-open chat id")
	}
	var busyErr *errors.BusyError
	if !stderrors.As(err, &busyErr) {
		t.Fatalf("expected *errors.BusyError, got: %T", err)
	}
}

func TestSessionManager_AttachAbortRejectsSecondRound(t *testing.T) {
	m := NewSessionManager()
	m.Open("chat-1", "app-1", NewEventChannel(1))

	if err := m.AttachAbort("chat-1", func(reason string) {}); err != nil {
		t.Fatalf("expected first attach to succeed, got: %v", err)
	}

	err := m.AttachAbort("chat-1", func(reason string) {})
	if err == nil {
		t.Fatal("expected BusyError attaching a second round while the first is in flight")
	}

	session := m.Get("chat-1")
	if !session.Busy() {
		t.Fatal("expected session to report Busy while an abort handle is attached")
	}
}

func TestSessionManager_AttachAbortUnknownChat(t *testing.T) {
	m := NewSessionManager()
	err := m.AttachAbort("missing", func(reason string) {})
	if err == nil {
		t.Fatal("expected NotFoundError for an unopened chat id")
	}
	var notFound *errors.NotFoundError
	if !stderrors.As(err, &notFound) {
		t.Fatalf("expected *errors.NotFoundError, got: %T", err)
	}
}

func TestSessionManager_ClearAbortUnblocksFutureAttach(t *testing.T) {
	m := NewSessionManager()
	m.Open("chat-1", "app-1", NewEventChannel(1))
	m.AttachAbort("chat-1", func(reason string) {})

	m.ClearAbort("chat-1")

	if m.Get("chat-1").Busy() {
		t.Fatal("expected session to no longer be busy after ClearAbort")
	}
	if err := m.AttachAbort("chat-1", func(reason string) {}); err != nil {
		t.Fatalf("expected re-attach after clear to succeed, got: %v", err)
	}
}

func TestSessionManager_AbortInvokesHandleAndIsIdempotent(t *testing.T) {
	m := NewSessionManager()
	m.Open("chat-1", "app-1", NewEventChannel(1))

	var reason string
	m.AttachAbort("chat-1", func(r string) { reason = r })

	m.Abort("chat-1", "client disconnected")
	if reason != "client disconnected" {
		t.Fatalf("expected abort handle invoked with reason, got: %q", reason)
	}

	// Aborting again, and aborting a session that was never opened, must
	// both be no-ops rather than panics.
	m.Abort("chat-1", "again")
	m.Abort("never-opened", "anything")
}

func TestSessionManager_TouchUpdatesLastActivity(t *testing.T) {
	m := NewSessionManager()
	m.Open("chat-1", "app-1", NewEventChannel(1))

	later := time.Now().Add(time.Hour)
	m.Touch("chat-1", later)

	status, err := m.StatusOf("chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.LastActivity.Equal(later) {
		t.Fatalf("expected LastActivity %v, got %v", later, status.LastActivity)
	}

	// Touching an unknown chat id is a no-op, not an error.
	m.Touch("missing", later)
}

func TestSessionManager_CloseRemovesAndClosesChannel(t *testing.T) {
	m := NewSessionManager()
	channel := NewEventChannel(1)
	m.Open("chat-1", "app-1", channel)

	m.Close("chat-1")

	if m.Get("chat-1") != nil {
		t.Fatal("expected session removed after Close")
	}
	select {
	case <-channel.Done():
	default:
		t.Fatal("expected channel to be closed")
	}

	// Closing twice must not panic.
	m.Close("chat-1")
}

func TestSessionManager_StatusOfUnknownChat(t *testing.T) {
	m := NewSessionManager()
	_, err := m.StatusOf("missing")
	if err == nil {
		t.Fatal("expected NotFoundError for an unopened chat id")
	}
}

func TestSessionManager_StatusOfReportsBusy(t *testing.T) {
	m := NewSessionManager()
	m.Open("chat-1", "app-1", NewEventChannel(1))
	m.AttachAbort("chat-1", func(reason string) {})

	status, err := m.StatusOf("chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Busy {
		t.Fatal("expected Busy true while a round is attached")
	}
}

func TestSessionManager_SweepIdleSkipsBusySessions(t *testing.T) {
	m := NewSessionManager()
	idleChannel := NewEventChannel(1)
	busyChannel := NewEventChannel(1)
	m.Open("idle-chat", "app-1", idleChannel)
	m.Open("busy-chat", "app-1", busyChannel)
	m.AttachAbort("busy-chat", func(reason string) {})

	past := time.Now()
	m.Touch("idle-chat", past)
	m.Touch("busy-chat", past)

	closed := m.sweepIdle(past.Add(time.Hour), time.Minute)

	if len(closed) != 1 || closed[0] != "idle-chat" {
		t.Fatalf("expected only idle-chat swept, got: %v", closed)
	}
	if m.Get("idle-chat") != nil {
		t.Fatal("expected idle-chat removed")
	}
	if m.Get("busy-chat") == nil {
		t.Fatal("expected busy-chat to remain open despite exceeding maxIdle")
	}
}

func TestSessionManager_SweepIdleKeepsRecentSessions(t *testing.T) {
	m := NewSessionManager()
	m.Open("chat-1", "app-1", NewEventChannel(1))
	m.Touch("chat-1", time.Now())

	closed := m.sweepIdle(time.Now(), time.Hour)
	if len(closed) != 0 {
		t.Fatalf("expected nothing swept, got: %v", closed)
	}
	if m.Get("chat-1") == nil {
		t.Fatal("expected recently-active session to remain open")
	}
}

func TestSessionManager_RunIdleSweepStopsOnCancel(t *testing.T) {
	m := NewSessionManager()
	m.Open("chat-1", "app-1", NewEventChannel(1))
	m.Touch("chat-1", time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunIdleSweep(ctx, 5*time.Millisecond, time.Millisecond)
		close(done)
	}()

	deadline := time.After(time.Second)
	for m.Get("chat-1") != nil {
		select {
		case <-deadline:
			t.Fatal("expected idle session to be swept by RunIdleSweep")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected RunIdleSweep to return once ctx is cancelled")
	}
}
