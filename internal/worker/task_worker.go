package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"go.uber.org/zap"
)

// TaskRunner claims and runs tasks and sweeps stale ones
type TaskRunner interface {
	ExecuteByName(ctx context.Context, name domain.TaskName) (*domain.Task, error)
	Retry(ctx context.Context, interval time.Duration) (int64, error)
	Abort(ctx context.Context, interval time.Duration) (*domain.Task, error)
}

// TaskWorkerConfig contains configuration for the task worker
type TaskWorkerConfig struct {
	Names []domain.TaskName
	// PollInterval is the pause after a poller finds no due task
	PollInterval time.Duration
	// WorkersPerName is the number of concurrent pollers per task name
	WorkersPerName int
	// RetryInterval and RetryStaleness drive the sweep that requeues stale Running tasks
	RetryInterval  time.Duration
	RetryStaleness time.Duration
	// AbortInterval and AbortStaleness drive the sweep that aborts exhausted tasks
	AbortInterval  time.Duration
	AbortStaleness time.Duration
}

// DefaultTaskWorkerConfig returns default configuration
func DefaultTaskWorkerConfig() *TaskWorkerConfig {
	return &TaskWorkerConfig{
		Names:          domain.TaskNames(),
		PollInterval:   500 * time.Millisecond,
		WorkersPerName: 2,
		RetryInterval:  time.Minute,
		RetryStaleness: 10 * time.Minute,
		AbortInterval:  time.Minute,
		AbortStaleness: 10 * time.Minute,
	}
}

// TaskWorker runs pollers per task name plus the retry and abort sweeps
type TaskWorker struct {
	*runner
	tasks  TaskRunner
	config *TaskWorkerConfig

	statsMu       sync.Mutex
	totalExecuted int64
	totalRetried  int64
	totalAborted  int64
}

// NewTaskWorker creates a new task worker
func NewTaskWorker(tasks TaskRunner, config *TaskWorkerConfig) *TaskWorker {
	defaults := DefaultTaskWorkerConfig()
	if config == nil {
		config = defaults
	}
	if len(config.Names) == 0 {
		config.Names = defaults.Names
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.WorkersPerName <= 0 {
		config.WorkersPerName = defaults.WorkersPerName
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaults.RetryInterval
	}
	if config.RetryStaleness <= 0 {
		config.RetryStaleness = defaults.RetryStaleness
	}
	if config.AbortInterval <= 0 {
		config.AbortInterval = defaults.AbortInterval
	}
	if config.AbortStaleness <= 0 {
		config.AbortStaleness = defaults.AbortStaleness
	}
	return &TaskWorker{
		runner: newRunner("task worker"),
		tasks:  tasks,
		config: config,
	}
}

// Start starts the task worker
func (w *TaskWorker) Start(ctx context.Context) error {
	loops := make([]func(context.Context), 0, len(w.config.Names)*w.config.WorkersPerName+2)
	for _, name := range w.config.Names {
		for range w.config.WorkersPerName {
			loops = append(loops, w.every(w.config.PollInterval, func(ctx context.Context) {
				w.drain(ctx, name)
			}))
		}
	}
	loops = append(loops,
		w.every(w.config.RetryInterval, w.retry),
		w.every(w.config.AbortInterval, w.abort),
	)
	return w.start(ctx, loops...)
}

// Stop stops the task worker
func (w *TaskWorker) Stop() {
	w.stop()
}

// drain executes due tasks until none is left
func (w *TaskWorker) drain(ctx context.Context, name domain.TaskName) {
	for !w.stopping(ctx) {
		task, err := w.tasks.ExecuteByName(ctx, name)
		if err != nil {
			w.log.Error("failed to execute task",
				zap.String("task_name", name.String()),
				zap.Error(err),
			)
			return
		}
		if task == nil {
			return
		}
		w.statsMu.Lock()
		w.totalExecuted++
		w.statsMu.Unlock()
	}
}

func (w *TaskWorker) retry(ctx context.Context) {
	n, err := w.tasks.Retry(ctx, w.config.RetryStaleness)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to retry tasks: %v", err))
		return
	}
	if n > 0 {
		w.statsMu.Lock()
		w.totalRetried += n
		w.statsMu.Unlock()
		w.log.Info(fmt.Sprintf("Requeued %d stale tasks", n))
	}
}

// abort aborts one task per call, so it loops until none is left
func (w *TaskWorker) abort(ctx context.Context) {
	for !w.stopping(ctx) {
		task, err := w.tasks.Abort(ctx, w.config.AbortStaleness)
		if err != nil {
			w.log.Error(fmt.Sprintf("Failed to abort tasks: %v", err))
			return
		}
		if task == nil {
			return
		}
		w.statsMu.Lock()
		w.totalAborted++
		w.statsMu.Unlock()
	}
}

// GetStats returns worker statistics
func (w *TaskWorker) GetStats() *TaskWorkerStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	return &TaskWorkerStats{
		IsRunning:     w.isRunning(),
		TotalExecuted: w.totalExecuted,
		TotalRetried:  w.totalRetried,
		TotalAborted:  w.totalAborted,
	}
}

// TaskWorkerStats contains worker statistics
type TaskWorkerStats struct {
	IsRunning     bool  `json:"is_running"`
	TotalExecuted int64 `json:"total_executed"`
	TotalRetried  int64 `json:"total_retried"`
	TotalAborted  int64 `json:"total_aborted"`
}
