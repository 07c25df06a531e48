package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prohmpiriya/booking-rush-reservation/internal/di"
	"github.com/prohmpiriya/booking-rush-reservation/internal/metrics"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/config"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/database"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	pkgredis "github.com/prohmpiriya/booking-rush-reservation/pkg/redis"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "transaction-worker"

// transaction-worker expires stale Reserve transactions and exports
// terminal transactions into the task queue.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Transaction Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry tracing
	if cfg.OTel.Enabled {
		_, err := telemetry.Init(ctx, &telemetry.Config{
			Enabled:        true,
			ServiceName:    serviceName,
			ServiceVersion: cfg.App.Version,
			CollectorAddr:  cfg.OTel.CollectorAddr,
			SampleRatio:    cfg.OTel.SampleRatio,
			Environment:    cfg.App.Environment,
		})
		if err != nil {
			appLog.Warn("Failed to initialize tracer (continuing without tracing)", zap.Error(err))
		} else {
			defer telemetry.Shutdown(context.Background())
			appLog.Info("OpenTelemetry tracing initialized")
		}
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn("Failed to initialize metrics", zap.Error(err))
	}

	// Initialize database connection
	db, err := database.NewPostgres(ctx, database.FromConfig(&cfg.Database, cfg.OTel.Enabled))
	if err != nil {
		appLog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Initialize Redis connection, used to release seat locks on cancel and expiry
	redisClient, err := pkgredis.NewClient(ctx, pkgredis.FromConfig(&cfg.Redis))
	if err != nil {
		appLog.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	container, err := di.NewContainer(&di.ContainerConfig{
		DB:     db,
		Redis:  redisClient,
		Config: cfg,
	})
	if err != nil {
		appLog.Fatal("Failed to build container", zap.Error(err))
	}
	if err := container.SeatLockRepo.LoadScripts(ctx); err != nil {
		appLog.Warn("Failed to pre-load Lua scripts", zap.Error(err))
	}

	if err := container.ExpiryWorker.Start(ctx); err != nil {
		appLog.Fatal("Failed to start expiry worker", zap.Error(err))
	}
	if err := container.ExportWorker.Start(ctx); err != nil {
		appLog.Fatal("Failed to start export worker", zap.Error(err))
	}
	appLog.Info("Transaction Worker started successfully")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	cancel()
	container.ExpiryWorker.Stop()
	container.ExportWorker.Stop()

	expiry := container.ExpiryWorker.GetStats()
	export := container.ExportWorker.GetStats()
	appLog.Info("Worker exited gracefully",
		zap.Int64("total_expired", expiry.TotalExpired),
		zap.Int64("total_exported", export.TotalExported),
		zap.Int64("total_reset", export.TotalReset),
	)
}
