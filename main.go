package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-reservation/internal/di"
	"github.com/prohmpiriya/booking-rush-reservation/internal/handler"
	"github.com/prohmpiriya/booking-rush-reservation/internal/metrics"
	"github.com/prohmpiriya/booking-rush-reservation/internal/repository"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/config"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/database"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/middleware"
	pkgredis "github.com/prohmpiriya/booking-rush-reservation/pkg/redis"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "reservation-api"

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
	appLog.Info("Starting Reservation API...")

	ctx := context.Background()

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
		appLog.Fatal("Database connection failed", zap.Error(err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, db.Pool()); err != nil {
			appLog.Fatal("Failed to apply schema", zap.Error(err))
		}
		appLog.Info("Database schema applied")
	}

	// Initialize Redis connection
	redisClient, err := pkgredis.NewClient(ctx, pkgredis.FromConfig(&cfg.Redis))
	if err != nil {
		appLog.Fatal("Redis connection failed", zap.Error(err))
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

	// Pre-load Lua scripts into Redis
	if err := container.SeatLockRepo.LoadScripts(ctx); err != nil {
		appLog.Warn("Failed to pre-load Lua scripts", zap.Error(err))
	} else {
		appLog.Info("Lua scripts pre-loaded into Redis")
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(serviceName))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// API routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AgentMiddleware())
	v1.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": cfg.App.Version,
			"service": serviceName,
		})
	})
	handler.RegisterRoutes(v1, container.TransactionHandler, container.ReservationHandler,
		middleware.IdempotencyMiddleware(&middleware.IdempotencyConfig{Redis: redisClient.Client()}),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		appLog.Info("Reservation API listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}
