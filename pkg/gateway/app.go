package gateway

import (
	"context"
	"net/http"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intrafind/llm-gateway/pkg/provider"
	"github.com/intrafind/llm-gateway/pkg/provider/errors"
	"github.com/intrafind/llm-gateway/pkg/provider/types"
	"github.com/intrafind/llm-gateway/pkg/registry"
	"github.com/intrafind/llm-gateway/pkg/schema"
)

// chatRequestSchema validates an incoming POST body's shape before it
// reaches the orchestrator, grounded on pkg/schema.StructValidator
// (go-playground/validator struct tags on ChatRequest).
var chatRequestSchema = schema.NewStructSchema(reflect.TypeOf(ChatRequest{}))

// App wires the HTTP Surface (C8): REST endpoints binding external calls
// to the Session Manager and Chat Orchestrator (§4.8, §6). Surface logic
// contains no provider knowledge — it resolves a ModelSpec/AppSpec and
// LanguageModel, then hands off to Orchestrator entirely.
type App struct {
	config    *ConfigStore
	registry  *registry.Registry
	sessions  *SessionManager
	orch      *Orchestrator
	log       *zap.Logger
	sseBuffer int
}

// NewApp wires an App from its collaborators.
func NewApp(config *ConfigStore, reg *registry.Registry, sessions *SessionManager, orch *Orchestrator, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{config: config, registry: reg, sessions: sessions, orch: orch, log: log, sseBuffer: 64}
}

// Register binds every §6 endpoint onto r.
func (a *App) Register(r gin.IRouter) {
	r.GET("/api/models/:modelId/chat/test", a.handleModelTest)
	r.GET("/api/apps/:appId/chat/:chatId", a.handleOpenSSE)
	r.POST("/api/apps/:appId/chat/:chatId", a.handleSubmitTurn)
	r.POST("/api/apps/:appId/chat/:chatId/stop", a.handleStop)
	r.GET("/api/apps/:appId/chat/:chatId/status", a.handleStatus)
}

func (a *App) writeError(c *gin.Context, err error) {
	status := errors.StatusFor(err)
	code := errorCode(err)
	a.log.Warn("gateway request failed",
		zap.Int("status", status),
		zap.String("code", code),
		zap.Error(err),
	)
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func errorCode(err error) string {
	switch err.(type) {
	case *errors.ConfigurationError:
		return "CONFIGURATION_ERROR"
	case *errors.ValidationError:
		return "VALIDATION_ERROR"
	case *errors.AuthorizationError:
		return "AUTHORIZATION_ERROR"
	case *errors.NotFoundError:
		return "NOT_FOUND"
	case *errors.RateLimitError:
		return "RATE_LIMIT"
	case *errors.ProviderError:
		return "PROVIDER_ERROR"
	case *errors.NetworkError:
		return "NETWORK_ERROR"
	case *errors.StreamingError:
		return "STREAMING_ERROR"
	case *errors.BusyError:
		return "BUSY"
	default:
		return "INTERNAL_ERROR"
	}
}

// handleModelTest implements GET /api/models/:modelId/chat/test.
func (a *App) handleModelTest(c *gin.Context) {
	modelID := c.Param("modelId")
	spec, err := a.config.Model(modelID)
	if err != nil {
		a.writeError(c, err)
		return
	}

	lm, err := a.registry.ResolveLanguageModel(spec.Provider + ":" + spec.ID)
	if err != nil {
		a.writeError(c, &errors.NotFoundError{Kind: "model", ID: modelID, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	resp, err := lm.DoGenerate(ctx, helloWorldPrompt())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			a.writeError(c, &errors.NetworkError{Provider: spec.Provider, Message: "model test timed out", Timeout: true, Cause: err})
			return
		}
		a.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ModelTestResponse{ModelID: modelID, Raw: resp})
}

// helloWorldPrompt builds the trivial smoke-test request for
// GET /api/models/:modelId/chat/test (§6).
func helloWorldPrompt() *provider.GenerateOptions {
	return &provider.GenerateOptions{
		Prompt: types.Prompt{
			Messages: []types.Message{
				{Role: types.RoleUser, Content: []types.ContentPart{types.TextContent{Text: "Say hello!"}}},
			},
		},
	}
}

// handleOpenSSE implements GET /api/apps/:appId/chat/:chatId.
func (a *App) handleOpenSSE(c *gin.Context) {
	appID, chatID := c.Param("appId"), c.Param("chatId")

	if _, err := a.config.App(appID); err != nil {
		a.writeError(c, err)
		return
	}

	channel := NewEventChannel(a.sseBuffer)
	if _, err := a.sessions.Open(chatID, appID, channel); err != nil {
		a.writeError(c, err)
		return
	}

	tracker := NewActionTracker(chatID, channel)
	tracker.Connected()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	defer func() {
		a.sessions.Close(chatID)
	}()

	for {
		select {
		case ev, ok := <-channel.Events():
			if !ok {
				return
			}
			frame, err := ev.Frame()
			if err != nil {
				continue
			}
			if _, werr := c.Writer.Write(frame); werr != nil {
				return
			}
			c.Writer.Flush()
			a.sessions.Touch(chatID, time.Now())
		case <-ticker.C:
			if _, err := c.Writer.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			c.Writer.Flush()
		case <-clientGone:
			a.sessions.Abort(chatID, "client disconnected")
			tracker.Disconnected("client disconnected")
			return
		case <-channel.Done():
			return
		}
	}
}

// handleSubmitTurn implements POST /api/apps/:appId/chat/:chatId.
func (a *App) handleSubmitTurn(c *gin.Context) {
	appID, chatID := c.Param("appId"), c.Param("chatId")

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.writeError(c, &errors.ValidationError{Message: err.Error(), Cause: err})
		return
	}
	if err := chatRequestSchema.Validator().Validate(req); err != nil {
		a.writeError(c, &errors.ValidationError{Message: err.Error(), Cause: err})
		return
	}

	app, err := a.config.App(appID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	model, err := a.config.Model(req.ModelID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if len(app.CompatibleModels) > 0 && !containsString(app.CompatibleModels, model.ID) {
		a.writeError(c, &errors.AuthorizationError{Message: "model not permitted for app " + appID})
		return
	}

	lm, err := a.registry.ResolveLanguageModel(model.Provider + ":" + model.ID)
	if err != nil {
		a.writeError(c, &errors.NotFoundError{Kind: "model", ID: model.ID, Message: err.Error()})
		return
	}

	session := a.sessions.Get(chatID)
	if session == nil {
		// No SSE channel open: run the round synchronously over a
		// throwaway channel and return the full Response body (§6:
		// "Otherwise -> 200 with the full Response body").
		a.runWithoutSession(c, chatID, app, model, lm, req)
		return
	}

	roundCtx, cancel := context.WithCancel(c.Request.Context())
	if err := a.sessions.AttachAbort(chatID, func(reason string) { cancel() }); err != nil {
		cancel()
		a.writeError(c, err)
		return
	}

	go func() {
		defer cancel()
		defer a.sessions.ClearAbort(chatID)
		tracker := NewActionTracker(chatID, session.Channel)
		_, runErr := a.orch.Run(roundCtx, RoundInput{ChatID: chatID, App: app, Model: model, LM: lm, Request: req}, tracker)
		if runErr != nil {
			tracker.Error(errorCode(runErr), runErr.Error(), "")
		}
		a.sessions.Touch(chatID, time.Now())
	}()

	c.JSON(http.StatusOK, ChatAcceptedResponse{Status: "streaming", ChatID: chatID})
}

// runWithoutSession drives the Orchestrator over a channel the caller never
// exposes as SSE, then folds its final assistant message into a single
// non-streaming Response (§6: "Otherwise -> 200 with the full Response
// body") — the same round logic as the SSE path, minus an open connection
// to forward deltas onto. The event channel still must be drained so the
// Action Tracker's synchronous Send calls never block the orchestrator.
func (a *App) runWithoutSession(c *gin.Context, chatID string, app AppSpec, model ModelSpec, lm provider.LanguageModel, req ChatRequest) {
	channel := NewEventChannel(a.sseBuffer)
	tracker := NewActionTracker(chatID, channel)

	var finishReason types.FinishReason
	var usage types.Usage
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			var ev Event
			select {
			case ev = <-channel.Events():
			case <-channel.Done():
				// Closed after Run returned: take what is still buffered.
				select {
				case ev = <-channel.Events():
				default:
					return
				}
			}
			data, ok := ev.Data.(map[string]interface{})
			if !ok {
				continue
			}
			switch ev.Type {
			case EventDone:
				if fr, ok := data["finishReason"].(string); ok {
					finishReason = types.FinishReason(fr)
				}
			case EventUsage:
				if v, ok := data["totalTokens"].(int64); ok {
					usage.TotalTokens = &v
				}
			}
		}
	}()

	messages, runErr := a.orch.Run(c.Request.Context(), RoundInput{
		ChatID: chatID, App: app, Model: model, LM: lm, Request: req,
	}, tracker)
	channel.Close()
	<-drained

	if runErr != nil {
		a.writeError(c, runErr)
		return
	}

	var finalMsg types.Message
	if len(messages) > 0 {
		finalMsg = messages[len(messages)-1]
	}
	c.JSON(http.StatusOK, types.Response{
		ID:       chatID,
		Model:    model.ID,
		Provider: model.Provider,
		Choices: []types.ResponseChoice{{
			Index:        0,
			Message:      finalMsg,
			FinishReason: finishReason,
		}},
		Usage: usage,
	})
}

// handleStop implements POST /api/apps/:appId/chat/:chatId/stop.
func (a *App) handleStop(c *gin.Context) {
	chatID := c.Param("chatId")
	if a.sessions.Get(chatID) == nil {
		a.writeError(c, &errors.NotFoundError{Kind: "chat", ID: chatID})
		return
	}
	a.sessions.Abort(chatID, "stop requested")
	a.sessions.Close(chatID)
	c.JSON(http.StatusOK, gin.H{"status": "stopped", "chatId": chatID})
}

// handleStatus implements GET /api/apps/:appId/chat/:chatId/status.
func (a *App) handleStatus(c *gin.Context) {
	chatID := c.Param("chatId")
	status, err := a.sessions.StatusOf(chatID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active":       true,
		"lastActivity": status.LastActivity,
		"processing":   status.Busy,
	})
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
