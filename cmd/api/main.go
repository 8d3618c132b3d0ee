package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"trellis-backend/infrastructure/config"
	"trellis-backend/infrastructure/di"
	"trellis-backend/infrastructure/persistence/postgres"
)

func main() {
	// .env is a local development convenience; absence is not an error
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	logger := container.Logger

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(ctx, container.Pool, cfg.AI.EmbeddingDimensions); err != nil {
			logger.Fatal("Database migration failed", zap.Error(err))
		}
		logger.Info("Database schema is up to date")
	}

	// Background embedding backfill keeps vector search converging on
	// nodes created or edited while the embedding capability was down
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Tuning.EmbedBackfillCron, func() {
		if _, err := container.EmbeddingService.BackfillBatch(ctx); err != nil {
			logger.Warn("Embedding backfill run failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("Invalid backfill schedule",
			zap.String("schedule", cfg.Tuning.EmbedBackfillCron),
			zap.Error(err),
		)
	}
	scheduler.Start()

	handler := container.Router.Setup()

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.Server.Address),
			zap.String("environment", cfg.Environment),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	// Let any in-flight backfill batch finish before the pool closes
	<-scheduler.Stop().Done()
	container.Store.Close()

	if err := logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	log.Println("Server stopped")
}
