package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"

	"github.com/intrafind/llm-gateway/pkg/agent"
	"github.com/intrafind/llm-gateway/pkg/provider/errors"
	"github.com/intrafind/llm-gateway/pkg/registry"
)

func newTestApp(t *testing.T) (*App, *SessionManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fs := afero.NewMemMapFs()
	writeConfigFiles(t, fs, testModelsJSON, testAppsJSON)
	config := NewConfigStore(fs, "/models.json", "/apps.json")
	if err := config.Load(); err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	sessions := NewSessionManager()
	throttler := NewThrottler(nil, DefaultUpstreamConcurrency)
	orch := NewOrchestrator(throttler, NewToolRegistry(), agent.NewSkillRegistry(), nil)
	app := NewApp(config, registry.NewRegistry(), sessions, orch, nil)
	return app, sessions
}

func TestApp_HandleStatusUnknownChat(t *testing.T) {
	app, _ := newTestApp(t)
	router := gin.New()
	app.Register(router)

	req := httptest.NewRequest(http.MethodGet, "/api/apps/support-bot/chat/missing/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if body["active"] != false {
		t.Fatalf("expected active=false for an unopened chat, got %+v", body)
	}
}

func TestApp_HandleStatusOpenSession(t *testing.T) {
	app, sessions := newTestApp(t)
	sessions.Open("chat-1", "support-bot", NewEventChannel(4))

	router := gin.New()
	app.Register(router)

	req := httptest.NewRequest(http.MethodGet, "/api/apps/support-bot/chat/chat-1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if body["active"] != true {
		t.Fatalf("expected active=true for an open chat, got %+v", body)
	}
	if body["processing"] != false {
		t.Fatalf("expected processing=false for a chat with no in-flight round, got %+v", body)
	}
}

func TestApp_HandleStopUnknownChat(t *testing.T) {
	app, _ := newTestApp(t)
	router := gin.New()
	app.Register(router)

	req := httptest.NewRequest(http.MethodPost, "/api/apps/support-bot/chat/missing/stop", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for stopping an unopened chat, got %d", rec.Code)
	}
}

func TestApp_HandleStopClosesSession(t *testing.T) {
	app, sessions := newTestApp(t)
	channel := NewEventChannel(4)
	sessions.Open("chat-1", "support-bot", channel)

	router := gin.New()
	app.Register(router)

	req := httptest.NewRequest(http.MethodPost, "/api/apps/support-bot/chat/chat-1/stop", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if sessions.Get("chat-1") != nil {
		t.Fatal("expected session to be removed after stop")
	}
	select {
	case <-channel.Done():
	default:
		t.Fatal("expected the session's event channel to be closed after stop")
	}
}

func TestApp_HandleSubmitTurnUnknownApp(t *testing.T) {
	app, _ := newTestApp(t)
	router := gin.New()
	app.Register(router)

	body := `{"messages":[{"role":"user","content":[{"type":"text","text":"hi"}]}],"modelId":"gpt-4o"}`
	req := httptest.NewRequest(http.MethodPost, "/api/apps/missing-app/chat/chat-1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown app, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestApp_HandleSubmitTurnInvalidBody(t *testing.T) {
	app, _ := newTestApp(t)
	router := gin.New()
	app.Register(router)

	req := httptest.NewRequest(http.MethodPost, "/api/apps/support-bot/chat/chat-1", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a body missing required fields, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestApp_HandleSubmitTurnUnknownModel(t *testing.T) {
	app, _ := newTestApp(t)
	router := gin.New()
	app.Register(router)

	// The model id is not in the config store, so the request fails before
	// any app-level model restriction is checked.
	body := `{"messages":[{"role":"user","content":[{"type":"text","text":"hi"}]}],"modelId":"missing-model"}`
	req := httptest.NewRequest(http.MethodPost, "/api/apps/support-bot/chat/chat-1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unresolvable model id, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestErrorCode_MapsEveryTaxonomyMember(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{&errors.ConfigurationError{}, "CONFIGURATION_ERROR"},
		{&errors.ValidationError{}, "VALIDATION_ERROR"},
		{&errors.AuthorizationError{}, "AUTHORIZATION_ERROR"},
		{&errors.NotFoundError{}, "NOT_FOUND"},
		{&errors.RateLimitError{}, "RATE_LIMIT"},
		{&errors.ProviderError{}, "PROVIDER_ERROR"},
		{&errors.NetworkError{}, "NETWORK_ERROR"},
		{&errors.StreamingError{}, "STREAMING_ERROR"},
		{&errors.BusyError{}, "BUSY"},
	}
	for _, tc := range cases {
		if got := errorCode(tc.err); got != tc.code {
			t.Errorf("errorCode(%T) = %q, want %q", tc.err, got, tc.code)
		}
	}
}
