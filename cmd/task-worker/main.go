package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prohmpiriya/booking-rush-reservation/internal/di"
	"github.com/prohmpiriya/booking-rush-reservation/internal/metrics"
	"github.com/prohmpiriya/booking-rush-reservation/internal/service"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/config"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/database"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/kafka"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	pkgredis "github.com/prohmpiriya/booking-rush-reservation/pkg/redis"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/retry"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "task-worker"

// task-worker executes queued tasks, returns stale in-flight tasks to the
// queue and aborts tasks that ran out of tries.
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
	appLog.Info("Starting Task Worker...")

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

	// Initialize Redis connection, used by cancel tasks to release seats
	redisClient, err := pkgredis.NewClient(ctx, pkgredis.FromConfig(&cfg.Redis))
	if err != nil {
		appLog.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	// Aborted tasks go to Kafka when brokers are configured, otherwise to the log
	var abortReporter service.AbortReporter
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      cfg.Kafka.ClientID + "-" + serviceName,
			MaxRetries:    cfg.Kafka.MaxRetries,
			RetryInterval: cfg.Kafka.RetryInterval,
		})
		if err != nil {
			appLog.Warn("Kafka connection failed, reporting aborted tasks to the log", zap.Error(err))
		} else {
			defer producer.Close()
			abortReporter = service.NewKafkaAbortReporter(producer, &service.KafkaAbortReporterConfig{
				Topic:       cfg.Kafka.TaskAbortedTopic,
				ServiceName: serviceName,
				Retry: &retry.Config{
					MaxRetries:      cfg.Kafka.MaxRetries,
					InitialInterval: cfg.Kafka.RetryInterval,
				},
			})
			appLog.Info("Kafka producer connected", zap.String("topic", cfg.Kafka.TaskAbortedTopic))
		}
	}

	container, err := di.NewContainer(&di.ContainerConfig{
		DB:            db,
		Redis:         redisClient,
		Config:        cfg,
		AbortReporter: abortReporter,
	})
	if err != nil {
		appLog.Fatal("Failed to build container", zap.Error(err))
	}
	if err := container.SeatLockRepo.LoadScripts(ctx); err != nil {
		appLog.Warn("Failed to pre-load Lua scripts", zap.Error(err))
	}

	if err := container.TaskWorker.Start(ctx); err != nil {
		appLog.Fatal("Failed to start task worker", zap.Error(err))
	}
	appLog.Info("Task Worker started successfully")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	cancel()
	container.TaskWorker.Stop()

	stats := container.TaskWorker.GetStats()
	appLog.Info("Worker exited gracefully",
		zap.Int64("total_executed", stats.TotalExecuted),
		zap.Int64("total_retried", stats.TotalRetried),
		zap.Int64("total_aborted", stats.TotalAborted),
	)
}
