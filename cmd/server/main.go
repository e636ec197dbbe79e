// caspchat - conversational screening server backed by an s(CASP) solver.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/caspchat/internal/agent"
	"github.com/ashureev/caspchat/internal/api"
	"github.com/ashureev/caspchat/internal/config"
	"github.com/ashureev/caspchat/internal/identity"
	"github.com/ashureev/caspchat/internal/llm"
	"github.com/ashureev/caspchat/internal/metrics"
	"github.com/ashureev/caspchat/internal/middleware"
	"github.com/ashureev/caspchat/internal/session"
	"github.com/ashureev/caspchat/internal/solver"
	"github.com/ashureev/caspchat/internal/store"
	"github.com/ashureev/caspchat/internal/topic"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Round ledger.
	ledger, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			slog.Error("Failed to close ledger", "error", closeErr)
		}
	}()

	if err := ledger.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	m := metrics.MustNewMetrics(prometheus.DefaultRegisterer)
	registry := topic.Default()

	// Solver dispatch.
	solverClient := solver.NewClient(cfg.Solver.URL, &http.Client{})
	dispatcher := solver.NewDispatcher(solverClient, solver.Options{
		Mode:        solver.Mode(cfg.Solver.Mode),
		Concurrency: cfg.Solver.Concurrency,
		Timeout:     cfg.Solver.Timeout,
	}, logger, m)
	slog.Info("Solver dispatcher ready",
		"url", solverClient.URL(),
		"mode", cfg.Solver.Mode,
		"concurrency", cfg.Solver.Concurrency,
	)

	// Language model.
	systemPrompt, err := llm.LoadSystemPrompt(cfg.Model.SystemPromptPath)
	if err != nil {
		slog.Error("Failed to load system prompt", "error", err)
		os.Exit(1)
	}
	model, err := llm.NewGemini(ctx, cfg.Model.APIKey, cfg.Model.Name, systemPrompt)
	if err != nil {
		slog.Error("Failed to initialize language model", "error", err)
		os.Exit(1)
	}
	slog.Info("Language model ready", "model", model.Name())

	conversationLogger, err := agent.NewConversationLogger(cfg.ConversationLog, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	sessions := session.NewManager(session.DefaultGreeting)
	svc, err := agent.NewService(agent.Deps{
		Model:           model,
		Registry:        registry,
		Dispatcher:      dispatcher,
		Sessions:        sessions,
		Ledger:          ledger,
		Metrics:         m,
		ConversationLog: conversationLogger,
		Delimiter:       cfg.StatusDelimiter,
		Logger:          logger,
	})
	if err != nil {
		slog.Error("Failed to initialize chat service", "error", err)
		os.Exit(1)
	}

	// Initialize handlers. HTTP and WebSocket chat share one limiter.
	rateLimiter := agent.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	chatHandler := agent.NewHandler(svc, agent.HandlerOptions{
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		RateLimiter:        rateLimiter,
	})
	defer chatHandler.Close()
	wsHandler := agent.NewWebSocketHandler(svc, cfg.AllowedOrigins, cfg.IsDevelopment(), rateLimiter)
	healthHandler := api.NewHealthHandler(map[string]api.Pinger{"database": ledger})
	topicsHandler := api.NewTopicsHandler(registry)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	topicsHandler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	// Conversation routes carry a session id.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))
		chatHandler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Rounds wait on the model and the solver, so writes get a generous bound.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Start TTL worker.
	session.StartTTLWorker(ctx, sessions, cfg.SessionTTL, ledger, cfg.LedgerRetention, svc.SessionExpired)
	slog.Info("TTL worker started", "session_ttl", cfg.SessionTTL, "ledger_retention", cfg.LedgerRetention)

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

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
