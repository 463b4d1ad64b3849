// Mock Interview - simulated technical interview chat server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/mock-interview/internal/agent"
	"github.com/ashureev/mock-interview/internal/api"
	"github.com/ashureev/mock-interview/internal/chat"
	"github.com/ashureev/mock-interview/internal/config"
	"github.com/ashureev/mock-interview/internal/identity"
	"github.com/ashureev/mock-interview/internal/logging"
	"github.com/ashureev/mock-interview/internal/middleware"
	"github.com/ashureev/mock-interview/internal/scene"
	"github.com/ashureev/mock-interview/internal/store"
	"github.com/ashureev/mock-interview/internal/stream"
	"github.com/ashureev/mock-interview/internal/workspace"
	"github.com/ashureev/mock-interview/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		slog.Error("Failed to initialize logging", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	exitCode := 0
	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		exitCode = 1
	}
	if err := logCloser.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
	}
	os.Exit(exitCode)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	catalog, err := scene.Load(cfg.ScenesPath)
	if err != nil {
		return fmt.Errorf("load scenes: %w", err)
	}
	initialScene := cfg.DefaultScene
	if initialScene == "" {
		initialScene = catalog.DefaultSceneID()
	}
	if !catalog.Has(initialScene) {
		return fmt.Errorf("default scene %q is not in the catalog", initialScene)
	}
	slog.Info("Scene catalog loaded", "scenes", len(catalog.List()), "default_scene", initialScene)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	convLog, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	defer func() {
		if closeErr := convLog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	replier := agent.NewService(
		agent.NewCannedReplier(catalog, agent.DelayConfig{Min: cfg.ReplyDelay.Min, Max: cfg.ReplyDelay.Max}),
		cfg.ReplyDelay.Timeout,
		logger,
	)
	hub := stream.NewHub(cfg.EventBufferSize, logger)

	registry := workspace.NewRegistry(func(_ context.Context, userID string) (*chat.Orchestrator, error) {
		userLogger := logger.With("user_id", userID)
		sessions := chat.NewStore(catalog, store.NewOwnerStorage(repo, userID), chat.WithStoreLogger(userLogger))
		return chat.NewOrchestrator(sessions, replier, catalog,
			chat.WithLogger(userLogger),
			chat.WithNotifier(hub.Notifier(userID)),
			chat.WithConversationLog(userID, convLog),
			chat.WithInitialScene(initialScene),
		), nil
	}, cfg.WorkspaceIdleTTL, logger)
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			slog.Error("Failed to close workspaces", "error", closeErr)
		}
	}()

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Stop()

	chatHandler := api.NewChatHandler(registry, catalog, limiter, cfg.MaxRequestBodyBytes, logger)
	healthHandler := api.NewHealthHandler(repo, registry)
	wsHandler := stream.NewWebSocketHandler(hub, registry.State, cfg.FrontendURL, cfg.IsDevelopment())

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins(), identity.SessionHeaderName))

	healthHandler.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		chatHandler.RegisterRoutes(r)
		r.Get("/ws/events", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Event streams are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.UserRetention > 0 {
		workspace.StartRetentionWorker(ctx, repo, cfg.UserRetention, func(userID string) {
			hub.CloseUser(userID)
			registry.Evict(userID)
		})
	} else {
		slog.Info("Retention worker disabled")
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}
