// Tarsy orchestrator server: HTTP API, claim workers, chain execution,
// event streaming, and retention enforcement in a single process.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tarsy-dev/tarsy/pkg/api"
	"github.com/tarsy-dev/tarsy/pkg/cleanup"
	"github.com/tarsy-dev/tarsy/pkg/config"
	"github.com/tarsy-dev/tarsy/pkg/database"
	"github.com/tarsy-dev/tarsy/pkg/events"
	"github.com/tarsy-dev/tarsy/pkg/history"
	"github.com/tarsy-dev/tarsy/pkg/hooks"
	"github.com/tarsy-dev/tarsy/pkg/llm"
	"github.com/tarsy-dev/tarsy/pkg/masking"
	"github.com/tarsy-dev/tarsy/pkg/mcp"
	"github.com/tarsy-dev/tarsy/pkg/queue"
	"github.com/tarsy-dev/tarsy/pkg/runbook"
	"github.com/tarsy-dev/tarsy/pkg/services"
	"github.com/tarsy-dev/tarsy/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env from the config directory; absence is fine in containers
	// where the environment is injected directly.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	podID := resolvePodID()

	slog.Info("Starting tarsy",
		"version", version.GitCommit,
		"http_port", httpPort,
		"pod_id", podID,
		"config_dir", *configDir)

	ctx := context.Background()

	// Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	stats := cfg.Stats()
	slog.Info("Configuration loaded",
		"agents", stats.Agents,
		"chains", stats.Chains,
		"mcp_servers", stats.MCPServers,
		"llm_providers", stats.LLMProviders)

	// Database (migrations run inside NewClient)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to database", "backend", dbClient.Backend())

	store := history.NewStore(dbClient)

	// Requeue sessions this pod left in_progress before its last restart.
	if err := queue.CleanupStartupOrphans(ctx, store, podID); err != nil {
		slog.Error("Startup orphan cleanup failed", "error", err)
		// Non-fatal: the periodic orphan scan will catch them.
	}

	// Event streaming: publisher for writers, store for catchup, and
	// backend-specific cross-pod delivery.
	eventStore := events.NewStore(dbClient.Client)
	publisher := events.NewPublisher(dbClient.DB(), dbClient.Backend())
	connManager := events.NewConnectionManager(eventStore, 10*time.Second)

	switch dbClient.Backend() {
	case database.BackendPostgres:
		listener := events.NewNotifyListener(dbConfig.DSN(), connManager)
		if err := listener.Start(ctx); err != nil {
			slog.Error("Failed to start notify listener", "error", err)
			os.Exit(1)
		}
		defer listener.Stop(ctx)
		connManager.SetListener(listener)
	case database.BackendSQLite:
		poller := events.NewPoller(eventStore, connManager, 500*time.Millisecond)
		if err := poller.Start(ctx); err != nil {
			slog.Error("Failed to start event poller", "error", err)
			os.Exit(1)
		}
		defer poller.Stop()
	}
	slog.Info("Event streaming initialized")

	// Hook pipeline: masking first (pre), then persistence and event
	// fan-out on every LLM/MCP interaction.
	maskingService := masking.NewService(cfg.MCPServerRegistry, masking.AlertMaskingConfig{})
	dispatcher := hooks.NewDispatcher()
	dispatcher.RegisterPre(hooks.NewMaskingHook(maskingService))
	dispatcher.Register(hooks.NewHistoryHook(store))
	dispatcher.Register(hooks.NewEventHook(publisher))

	llmClient := llm.NewClient(dispatcher)

	// MCP infrastructure
	warningsService := services.NewSystemWarningsService()
	mcpFactory := mcp.NewClientFactory(cfg.MCPServerRegistry, maskingService, dispatcher)

	var healthMonitor *mcp.HealthMonitor
	if cfg.MCPServerRegistry.Len() > 0 {
		healthMonitor = mcp.NewHealthMonitor(mcpFactory, cfg.MCPServerRegistry, warningsService)
		healthMonitor.Start(ctx)
		defer healthMonitor.Stop()
		slog.Info("MCP health monitor started", "servers", cfg.MCPServerRegistry.Len())
	}

	var runbookService *runbook.Service
	if cfg.Runbooks != nil {
		runbookService = runbook.NewService(cfg.Runbooks)
	}

	// Session execution
	executor := queue.NewChainExecutor(cfg, store, llmClient, publisher, mcpFactory, runbookService, warningsService)
	workerPool := queue.NewWorkerPool(podID, store, cfg.Queue, executor, publisher)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	alertService := services.NewAlertService(cfg, store, publisher, workerPool)

	// Retention enforcement
	cleanupService := cleanup.NewService(cfg.Retention, store, eventStore)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()

	// HTTP server
	apiServer := api.NewServer(cfg, api.Options{
		DBClient:       dbClient,
		Store:          store,
		AlertService:   alertService,
		WarningService: warningsService,
		ConnManager:    connManager,
		WorkerPool:     workerPool,
		HealthMonitor:  healthMonitor,
	})
	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("Tarsy started",
		"pod_id", podID,
		"workers", cfg.Queue.WorkerCount)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("HTTP server error triggered shutdown", "error", err)
	}

	// Stop accepting work first, then wait for active sessions within the
	// graceful budget. Sessions that outlive it are orphan-recovered by
	// the next pod (or this one, on restart).
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer cancel()

	poolDone := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(poolDone)
	}()
	select {
	case <-poolDone:
		slog.Info("Worker pool stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, incomplete sessions will be orphan-recovered")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
