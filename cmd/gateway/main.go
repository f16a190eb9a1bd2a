// Command gateway runs the multi-tenant LLM gateway HTTP surface: it wires
// the provider registry, config store, throttler, tool registry, session
// manager, and chat orchestrator into a gin server exposing the endpoints
// described in §6.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intrafind/llm-gateway/pkg/agent"
	"github.com/intrafind/llm-gateway/pkg/gateway"
	"github.com/intrafind/llm-gateway/pkg/middleware"
	"github.com/intrafind/llm-gateway/pkg/providers/anthropic"
	"github.com/intrafind/llm-gateway/pkg/providers/google"
	"github.com/intrafind/llm-gateway/pkg/providers/mistral"
	"github.com/intrafind/llm-gateway/pkg/providers/openai"
	"github.com/intrafind/llm-gateway/pkg/registry"
	"github.com/intrafind/llm-gateway/pkg/telemetry"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("gateway: building logger: %v", err)
	}
	defer logger.Sync()

	reg := registry.NewRegistry()
	registerProviders(reg, logger)

	modelsPath := envOr("GATEWAY_MODELS_CONFIG", "models.json")
	appsPath := envOr("GATEWAY_APPS_CONFIG", "apps.json")
	config := gateway.NewConfigStore(nil, modelsPath, appsPath)
	if err := config.Load(); err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}
	if err := config.Watch(func(err error) {
		if err != nil {
			logger.Warn("config reload failed", zap.Error(err))
			return
		}
		logger.Info("config reloaded")
	}); err != nil {
		logger.Warn("config watch disabled", zap.Error(err))
	}
	defer config.Close()

	throttler := gateway.NewThrottler(nil, gateway.DefaultUpstreamConcurrency)
	tools := gateway.NewToolRegistry()
	skills := agent.NewSkillRegistry()
	sessions := gateway.NewSessionManager()
	tracer := telemetry.GetTracer(nil)
	orch := gateway.NewOrchestrator(throttler, tools, skills, tracer)

	app := gateway.NewApp(config, reg, sessions, orch, logger)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sessions.RunIdleSweep(sweepCtx, 30*time.Second, 10*time.Minute)

	router := gin.New()
	router.Use(ginzap(logger), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
	}))
	app.Register(router)

	addr := ":" + envOr("PORT", "8080")

	logger.Info("gateway listening", zap.String("addr", addr))
	go func() {
		if err := router.Run(addr); err != nil {
			logger.Fatal("server exited", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
}

// responseCleanup strips markdown code fences a model wraps its structured
// JSON output in, so a json_schema request resolves cleanly even against a
// vendor that doesn't natively honor response_format.
var responseCleanup = []*middleware.LanguageModelMiddleware{middleware.ExtractJSONMiddleware(nil)}

// registerProviders wires every vendor adapter whose API key is present in
// the environment. A provider with no key configured is skipped rather than
// registered half-broken; requests routed to it resolve as NotFoundError.
// Every registered provider is wrapped with responseCleanup so its language
// models get the same fenced-JSON normalization regardless of vendor.
func registerProviders(reg *registry.Registry, logger *zap.Logger) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		reg.RegisterProvider("openai", middleware.WrapProvider(openai.New(openai.Config{
			APIKey:       key,
			BaseURL:      os.Getenv("OPENAI_BASE_URL"),
			Organization: os.Getenv("OPENAI_ORGANIZATION"),
			Project:      os.Getenv("OPENAI_PROJECT"),
		}), responseCleanup))
	} else {
		logger.Warn("OPENAI_API_KEY not set, openai provider disabled")
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		reg.RegisterProvider("anthropic", middleware.WrapProvider(anthropic.New(anthropic.Config{
			APIKey:     key,
			BaseURL:    os.Getenv("ANTHROPIC_BASE_URL"),
			APIVersion: os.Getenv("ANTHROPIC_API_VERSION"),
		}), responseCleanup))
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, anthropic provider disabled")
	}

	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		reg.RegisterProvider("google", middleware.WrapProvider(google.New(google.Config{
			APIKey:  key,
			BaseURL: os.Getenv("GOOGLE_BASE_URL"),
		}), responseCleanup))
	} else {
		logger.Warn("GOOGLE_API_KEY not set, google provider disabled")
	}

	if key := os.Getenv("MISTRAL_API_KEY"); key != "" {
		reg.RegisterProvider("mistral", middleware.WrapProvider(mistral.New(mistral.Config{
			APIKey:  key,
			BaseURL: os.Getenv("MISTRAL_BASE_URL"),
		}), responseCleanup))
	} else {
		logger.Warn("MISTRAL_API_KEY not set, mistral provider disabled")
	}
}

// ginzap adapts zap to gin's logging middleware hook, following the
// teacher's structured-logging idiom rather than gin's default writer.
func ginzap(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if len(c.Errors) > 0 {
			for _, e := range c.Errors {
				logger.Error("request error", zap.Error(e.Err))
			}
			return
		}

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
