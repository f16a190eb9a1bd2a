package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/intrafind/llm-gateway/pkg/provider/errors"
)

// AbortHandle cancels the single upstream round currently running for a
// session. It wraps a context.CancelFunc so the Session Manager never needs
// to know about context internals directly.
type AbortHandle func(reason string)

// Session is the process-wide record for one open chat: which app it
// belongs to, the SSE channel it streams through, and the abort handle for
// whichever upstream round (if any) is currently in flight. Grounded on the
// teacher's handler-level connection registry (a map of live streaming
// connections guarded by one lock), generalized to the chatId/appId
// identity pair spec.md's Session type requires.
type Session struct {
	ChatID       string
	AppID        string
	Channel      *EventChannel
	LastActivity time.Time

	mu          sync.Mutex
	abort       AbortHandle
	abortReason string
}

// Busy reports whether an upstream round is currently attached to this
// session.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abort != nil
}

// SessionManager holds the process-wide chatId -> Session mapping behind a
// single lock. It enforces spec.md's busy invariant: at most one active
// upstream round per chatId, rejected rather than queued.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Open registers a new session for chatId bound to appId and channel. It
// returns an *errors.BusyError (409 conflict) if chatId is
// already open — re-opening an existing chat is not supported; the caller
// must Close it first.
func (m *SessionManager) Open(chatID, appID string, channel *EventChannel) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[chatID]; exists {
		return nil, &errors.BusyError{ChatID: chatID}
	}

	s := &Session{
		ChatID:       chatID,
		AppID:        appID,
		Channel:      channel,
		LastActivity: channel.createdAt,
	}
	m.sessions[chatID] = s
	return s, nil
}

// Get returns the session for chatID, or nil if none is open.
func (m *SessionManager) Get(chatID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[chatID]
}

// AttachAbort records the cancellation handle for the upstream round about
// to start on chatID. It returns a BusyError without attaching if a round
// is already in flight — the caller must reject the incoming request with
// 409 rather than queue it, per spec.md's explicit invariant.
func (m *SessionManager) AttachAbort(chatID string, handle AbortHandle) error {
	m.mu.Lock()
	s, ok := m.sessions[chatID]
	m.mu.Unlock()
	if !ok {
		return &errors.NotFoundError{Kind: "chat", ID: chatID}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abort != nil {
		return &errors.BusyError{ChatID: chatID}
	}
	s.abort = handle
	return nil
}

// ClearAbort detaches the abort handle once a round completes, whether it
// finished normally, errored, or was cancelled.
func (m *SessionManager) ClearAbort(chatID string) {
	m.mu.Lock()
	s, ok := m.sessions[chatID]
	m.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	s.abort = nil
	s.abortReason = ""
	s.mu.Unlock()
}

// Abort cancels the in-flight round for chatID, if any. It is idempotent:
// aborting a session with no active round is a no-op, not an error.
func (m *SessionManager) Abort(chatID, reason string) {
	m.mu.Lock()
	s, ok := m.sessions[chatID]
	m.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	handle := s.abort
	s.abortReason = reason
	s.mu.Unlock()

	if handle != nil {
		handle(reason)
	}
}

// Touch refreshes a session's last-activity timestamp. now is supplied by
// the caller rather than read from time.Now() here, so callers that need a
// single consistent timestamp across a batch of operations can share one.
func (m *SessionManager) Touch(chatID string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[chatID]; ok {
		s.LastActivity = now
	}
}

// Close removes chatID from the registry and closes its event channel. It
// is safe to call more than once.
func (m *SessionManager) Close(chatID string) {
	m.mu.Lock()
	s, ok := m.sessions[chatID]
	if ok {
		delete(m.sessions, chatID)
	}
	m.mu.Unlock()

	if ok && s.Channel != nil {
		s.Channel.Close()
	}
}

// Status describes a session's externally-visible state for the
// GET .../status endpoint.
type Status struct {
	ChatID       string    `json:"chatId"`
	AppID        string    `json:"appId"`
	Busy         bool      `json:"busy"`
	LastActivity time.Time `json:"lastActivity"`
}

// StatusOf returns the status of chatID, or an error if it is not open.
func (m *SessionManager) StatusOf(chatID string) (Status, error) {
	m.mu.Lock()
	s, ok := m.sessions[chatID]
	m.mu.Unlock()
	if !ok {
		return Status{}, &errors.NotFoundError{Kind: "chat", ID: chatID}
	}

	return Status{
		ChatID:       s.ChatID,
		AppID:        s.AppID,
		Busy:         s.Busy(),
		LastActivity: s.LastActivity,
	}, nil
}

// sweepIdle removes sessions whose LastActivity is older than maxIdle,
// closing their channels. A session with an in-flight round (Busy) is never
// swept even past maxIdle, since LastActivity only advances on SSE frame
// writes and a long tool round can legitimately outlast it.
func (m *SessionManager) sweepIdle(now time.Time, maxIdle time.Duration) []string {
	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if !s.Busy() && now.Sub(s.LastActivity) > maxIdle {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	closed := make([]string, 0, len(stale))
	for _, s := range stale {
		if s.Channel != nil {
			s.Channel.Close()
		}
		closed = append(closed, s.ChatID)
	}
	return closed
}

// RunIdleSweep periodically closes sessions idle for longer than maxIdle,
// until ctx is cancelled. A client that opens an SSE connection and
// disappears without calling stop would otherwise leak its Session forever.
func (m *SessionManager) RunIdleSweep(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sweepIdle(now, maxIdle)
		}
	}
}
