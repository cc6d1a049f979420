// Dynamo AI research gateway server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/dynamo-gateway/internal/api"
	"github.com/ashureev/dynamo-gateway/internal/chatws"
	"github.com/ashureev/dynamo-gateway/internal/config"
	"github.com/ashureev/dynamo-gateway/internal/contextblock"
	"github.com/ashureev/dynamo-gateway/internal/healthsrv"
	"github.com/ashureev/dynamo-gateway/internal/history"
	"github.com/ashureev/dynamo-gateway/internal/identity"
	"github.com/ashureev/dynamo-gateway/internal/imagegen"
	"github.com/ashureev/dynamo-gateway/internal/llm"
	"github.com/ashureev/dynamo-gateway/internal/logging"
	"github.com/ashureev/dynamo-gateway/internal/middleware"
	"github.com/ashureev/dynamo-gateway/internal/orchestrator"
	"github.com/ashureev/dynamo-gateway/internal/provider"
	"github.com/ashureev/dynamo-gateway/internal/quota"
	"github.com/ashureev/dynamo-gateway/internal/search"
	"github.com/ashureev/dynamo-gateway/internal/store"
)

func main() {
	slog.SetDefault(logging.New(os.Stdout, slog.LevelInfo))

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)
	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "store", cfg.Store.Backend, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Store connected", "backend", cfg.Store.Backend)

	registry := buildRegistry(ctx, cfg)
	if registry.Len() == 0 {
		slog.Warn("No model provider configured; chat turns will return a fallback reply")
	}
	slog.Info("Model providers ready", "providers", registry.Names(), "default", cfg.Provider.Default)

	var searcher search.Searcher = search.Disabled{}
	if tavily, err := search.NewTavily(search.TavilyConfig{APIKey: cfg.Search.TavilyAPIKey}); err == nil {
		searcher = tavily
		slog.Info("Web search enabled")
	} else {
		slog.Warn("Web search disabled", "error", err)
	}

	enforcer := quota.NewEnforcer(repo, cfg.Limits.FreeDailyLimit)
	window := history.NewBuilder(cfg.Limits.HistoryWindow)
	slog.Info("Chat limits", "free_daily_limit", enforcer.Limit(), "history_window", window.Window())
	orch := orchestrator.New(orchestrator.Deps{
		Provider: provider.NewAdapter(registry, cfg.Provider.Timeout, logger),
		Assembler: contextblock.NewAssembler(searcher, contextblock.Options{
			Budget:        cfg.Limits.ContextBudgetChars,
			MaxResults:    cfg.Search.MaxResults,
			SearchTimeout: cfg.Search.Timeout,
		}, logger),
		Quota:   enforcer,
		Images:  imagegen.NewPollinations(imagegen.Config{BaseURL: cfg.Image.BaseURL, Timeout: cfg.Image.Timeout}),
		History: window,
		Logger:  logger,
	}, orchestrator.Options{
		ImageTimeout:     cfg.Image.Timeout,
		MaxDocumentChars: cfg.Limits.ContextBudgetChars * 10,
	})

	limiter := api.NewRateLimiter(cfg.Limits.RateLimitRequests, cfg.Limits.RateLimitWindow)
	defer limiter.Close()
	sessions := chatws.NewSessionManager()

	// Initialize handlers.
	chatHandler := api.NewChatHandler(orch, limiter, cfg.Limits.MaxRequestBodyBytes, logger)
	usageHandler := api.NewUsageHandler(enforcer, repo)
	uploadHandler := api.NewUploadHandler(cfg.Limits.ContextBudgetChars, cfg.Limits.MaxRequestBodyBytes*5)
	healthHandler := api.NewHealthHandler(repo, registry.Names, 5*time.Second)
	wsHandler := chatws.NewHandler(orch, sessions, limiter, cfg.CORSOrigins, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.Handler())

	// Identified routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, identity.Options{
			IsDev:           cfg.IsDevelopment(),
			TrustUserHeader: cfg.TrustUserHeader,
		}))
		chatHandler.RegisterRoutes(r)
		usageHandler.RegisterRoutes(r)
		uploadHandler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Operator and payment-webhook routes.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminToken(cfg.PlanAdminToken))
		usageHandler.RegisterAdminRoutes(r)
	})
	if cfg.PlanAdminToken == "" {
		slog.Warn("PLAN_ADMIN_TOKEN not set, plan changes are disabled")
	}

	// Create server. Deep dive turns can take a while, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	healthSrv := healthsrv.New(func(ctx context.Context) error {
		if err := repo.Ping(ctx); err != nil {
			return err
		}
		if registry.Len() == 0 {
			return llm.ErrNotConfigured
		}
		return nil
	}, 15*time.Second, logger)
	go healthSrv.Run(ctx)

	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen for gRPC", "error", err, "port", cfg.GRPCPort)
		os.Exit(1)
	}
	go func() {
		if err := healthSrv.Serve(grpcLis); err != nil {
			slog.Error("gRPC health server failed", "error", err)
		}
	}()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions.CloseAll()
	healthSrv.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func openStore(cfg *config.Config) (store.Repository, error) {
	switch cfg.Store.Backend {
	case config.StoreRedis:
		return store.NewRedis(store.RedisConfig{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
	case config.StoreSQLite:
		return store.NewSQLite(cfg.Store.DBPath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildRegistry registers every backend whose credentials are present.
// Missing credentials only disable that backend.
func buildRegistry(ctx context.Context, cfg *config.Config) *provider.Registry {
	registry := provider.NewRegistry(cfg.Provider.Default)

	gemini, err := provider.NewGemini(ctx, provider.GeminiConfig{
		APIKey: cfg.Provider.GeminiAPIKey,
		Model:  cfg.Provider.GeminiModel,
	})
	if err != nil {
		slog.Warn("Gemini backend disabled", "error", err)
	} else {
		registry.Register(gemini)
	}

	groq, err := provider.NewGroq(provider.GroqConfig{
		APIKey: cfg.Provider.GroqAPIKey,
		Model:  cfg.Provider.GroqModel,
	})
	if err != nil {
		slog.Warn("Groq backend disabled", "error", err)
	} else {
		registry.Register(groq)
	}

	return registry
}
