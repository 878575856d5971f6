package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/cmd/chatsync-server/internal/api"
	"github.com/coregx/chatsync/cmd/chatsync-server/internal/config"
	"github.com/coregx/chatsync/hub"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

func runServe(cfg *config.Config, zl zerolog.Logger, logger chatsync.Logger) error {
	logger.Infof("🚀 Starting chatsync server v%s...", version)
	logger.Infof("📝 Configuration loaded:")
	logger.Infof("   Server: %s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("   Store: %s", cfg.Database.Driver)
	logger.Infof("   Payload dir: %s (on start: %v, schedule: %q)", cfg.Ingest.PayloadDir, cfg.Ingest.OnStart, cfg.Ingest.Schedule)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	h, err := hub.New(hub.WithLogger(logger))
	if err != nil {
		return err
	}
	broadcaster := chatsync.NewLoggingBroadcaster(logger, h)

	service, err := chatsync.NewMessageService(
		chatsync.WithServiceRepository(store.Repo),
		chatsync.WithServiceBroadcaster(broadcaster),
		chatsync.WithServiceLogger(logger),
	)
	if err != nil {
		return err
	}

	ingestor, err := chatsync.NewIngestor(
		chatsync.WithIngestorRepository(store.Repo),
		chatsync.WithIngestorLogger(logger),
	)
	if err != nil {
		return err
	}

	watcher, err := chatsync.NewWatcher(
		chatsync.WithFeed(store.Feed, store.Repo),
		chatsync.WithBroadcaster(broadcaster),
		chatsync.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- watcher.Run(ctx)
	}()

	select {
	case <-watcher.Ready():
		logger.Info("✅ Change feed watcher started")
	case err := <-watchErr:
		return fmt.Errorf("change feed watcher failed to start: %w", err)
	}

	if cfg.Ingest.OnStart {
		go func() {
			if _, err := ingestor.IngestDir(ctx, cfg.Ingest.PayloadDir); err != nil {
				logger.Errorf("❌ Initial ingestion failed: %v", err)
			}
		}()
	}

	if cfg.Ingest.Schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.Ingest.Schedule, func() {
			logger.Infof("🔄 Scheduled re-ingestion of %s", cfg.Ingest.PayloadDir)
			if _, err := ingestor.IngestDir(ctx, cfg.Ingest.PayloadDir); err != nil {
				logger.Errorf("❌ Scheduled ingestion failed: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("invalid REINGEST_SCHEDULE %q: %w", cfg.Ingest.Schedule, err)
		}
		c.Start()
		defer c.Stop()
		logger.Infof("✅ Re-ingestion scheduled (%s)", cfg.Ingest.Schedule)
	}

	handler := api.NewHandler(service, ingestor, api.WebhookConfig{
		VerifyToken: cfg.Webhook.VerifyToken,
		AppSecret:   cfg.Webhook.AppSecret,
	}, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(zl, handler, h.ServeWS, cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("🌐 HTTP server listening on %s", addr)
		logger.Info("📡 API Endpoints:")
		logger.Info("   GET    /api/conversations")
		logger.Info("   GET    /api/messages/{conversationId}")
		logger.Info("   POST   /api/messages")
		logger.Info("   DELETE /api/messages/{id}")
		logger.Info("   GET    /api/health")
		logger.Info("   GET    /ws")
		logger.Info("   GET    /webhook, POST /webhook")
		logger.Info("   GET    /metrics")
		logger.Info("✅ chatsync server is ready!")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
		logger.Info("🛑 Shutting down server...")
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server failed: %w", err)
	case err := <-watchErr:
		// the watcher only returns early when the feed cannot be reopened
		runErr = fmt.Errorf("change feed watcher stopped: %w", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	h.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Server forced to shutdown: %v", err)
	}

	cancel() // Stop watcher and ingestion
	if runErr != nil {
		logger.Errorf("❌ %v", runErr)
		return runErr
	}

	logger.Info("✅ Server stopped gracefully")
	return nil
}
