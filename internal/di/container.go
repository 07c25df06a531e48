package di

import (
	"fmt"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/handler"
	"github.com/prohmpiriya/booking-rush-reservation/internal/repository"
	"github.com/prohmpiriya/booking-rush-reservation/internal/service"
	"github.com/prohmpiriya/booking-rush-reservation/internal/worker"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/config"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/database"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/redis"
)

// Container holds all dependencies of the reservation core
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	TransactionRepo       repository.TransactionRepository
	ReservationRepo       repository.ReservationRepository
	EventRepo             repository.EventRepository
	TaskRepo              repository.TaskRepository
	ActionRepo            repository.ActionRepository
	SeatLockRepo          *repository.RedisSeatLockRepository
	ReservationNumberRepo repository.ReservationNumberRepository

	// Services
	ReserveService     service.ReserveService
	TransactionService service.TransactionService
	TaskService        service.TaskService

	// Handlers
	HealthHandler      *handler.HealthHandler
	TransactionHandler *handler.TransactionHandler
	ReservationHandler *handler.ReservationHandler

	// Workers
	ExpiryWorker *worker.ExpiryWorker
	ExportWorker *worker.ExportWorker
	TaskWorker   *worker.TaskWorker
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB     *database.PostgresDB
	Redis  *redis.Client
	Config *config.Config
	// AbortReporter receives aborted tasks; nil logs them
	AbortReporter service.AbortReporter
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	loc, err := time.LoadLocation(cfg.Config.Reservation.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation time zone: %w", err)
	}

	c := &Container{
		DB:    cfg.DB,
		Redis: cfg.Redis,
	}

	// Initialize repositories
	pool := cfg.DB.Pool()
	c.TransactionRepo = repository.NewPostgresTransactionRepository(pool)
	c.ReservationRepo = repository.NewPostgresReservationRepository(pool)
	c.EventRepo = repository.NewPostgresEventRepository(pool)
	c.TaskRepo = repository.NewPostgresTaskRepository(pool)
	c.ActionRepo = repository.NewPostgresActionRepository(pool)
	c.SeatLockRepo = repository.NewRedisSeatLockRepository(cfg.Redis)
	c.ReservationNumberRepo = repository.NewRedisReservationNumberRepository(cfg.Redis, loc)

	// Initialize services
	c.ReserveService = service.NewReserveService(c.ReservationRepo, c.ActionRepo, c.SeatLockRepo)
	c.TransactionService = service.NewTransactionService(
		c.TransactionRepo,
		c.ReservationRepo,
		c.EventRepo,
		c.TaskRepo,
		c.SeatLockRepo,
		c.ReservationNumberRepo,
		c.ReserveService,
		&service.TransactionServiceConfig{
			DefaultExpiresIn:       cfg.Config.Transaction.DefaultExpiresIn,
			RemainingNumberOfTries: cfg.Config.Task.RemainingNumberOfTries,
		},
	)
	c.TaskService, err = service.NewTaskService(c.TaskRepo, service.NewTaskFunctions(c.ReserveService), cfg.AbortReporter)
	if err != nil {
		return nil, err
	}

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(map[string]handler.HealthChecker{
		"database": cfg.DB,
		"redis":    cfg.Redis,
	})
	c.TransactionHandler = handler.NewTransactionHandler(c.TransactionService)
	c.ReservationHandler = handler.NewReservationHandler(c.ReserveService)

	// Initialize workers
	c.ExpiryWorker = worker.NewExpiryWorker(c.TransactionService, &worker.ExpiryWorkerConfig{
		ScanInterval: cfg.Config.Transaction.ExpiryInterval,
	})
	c.ExportWorker = worker.NewExportWorker(c.TransactionService, &worker.ExportWorkerConfig{
		PollInterval:      cfg.Config.Transaction.ExportInterval,
		ReexportInterval:  cfg.Config.Transaction.ReexportInterval,
		ReexportStaleness: cfg.Config.Transaction.ReexportStaleness,
	})
	c.TaskWorker = worker.NewTaskWorker(c.TaskService, &worker.TaskWorkerConfig{
		PollInterval:   cfg.Config.Task.PollInterval,
		WorkersPerName: cfg.Config.Task.WorkersPerName,
		RetryInterval:  cfg.Config.Task.RetryInterval,
		RetryStaleness: cfg.Config.Task.RetryStaleness,
		AbortInterval:  cfg.Config.Task.AbortInterval,
		AbortStaleness: cfg.Config.Task.AbortStaleness,
	})

	return c, nil
}
