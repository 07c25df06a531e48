package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"go.uber.org/zap"
)

// TaskExporter materializes tasks of terminal transactions
type TaskExporter interface {
	ExportTasks(ctx context.Context, typeOf domain.TransactionType, status domain.TransactionStatus) (*domain.Transaction, error)
	ReexportTasks(ctx context.Context, interval time.Duration) (int64, error)
}

// ExportTarget is one transaction type and terminal status polled for export
type ExportTarget struct {
	TypeOf domain.TransactionType
	Status domain.TransactionStatus
}

// DefaultExportTargets covers every terminal status of every transaction type
func DefaultExportTargets() []ExportTarget {
	var targets []ExportTarget
	for _, typeOf := range []domain.TransactionType{domain.TransactionTypeReserve, domain.TransactionTypeCancelReservation} {
		for _, status := range []domain.TransactionStatus{
			domain.TransactionStatusConfirmed,
			domain.TransactionStatusCanceled,
			domain.TransactionStatusExpired,
		} {
			targets = append(targets, ExportTarget{TypeOf: typeOf, Status: status})
		}
	}
	return targets
}

// ExportWorkerConfig contains configuration for the export worker
type ExportWorkerConfig struct {
	Targets []ExportTarget
	// PollInterval is the pause after a target has been drained
	PollInterval time.Duration
	// ReexportInterval is the interval between sweeps for stuck exports
	ReexportInterval time.Duration
	// ReexportStaleness is how long a transaction may stay Exporting before it is reset
	ReexportStaleness time.Duration
}

// DefaultExportWorkerConfig returns default configuration
func DefaultExportWorkerConfig() *ExportWorkerConfig {
	return &ExportWorkerConfig{
		Targets:           DefaultExportTargets(),
		PollInterval:      500 * time.Millisecond,
		ReexportInterval:  time.Minute,
		ReexportStaleness: 10 * time.Minute,
	}
}

// ExportWorker turns terminal transactions into tasks
type ExportWorker struct {
	*runner
	exporter TaskExporter
	config   *ExportWorkerConfig

	statsMu       sync.Mutex
	totalExported int64
	totalReset    int64
	totalFailed   int64
}

// NewExportWorker creates a new export worker
func NewExportWorker(exporter TaskExporter, config *ExportWorkerConfig) *ExportWorker {
	defaults := DefaultExportWorkerConfig()
	if config == nil {
		config = defaults
	}
	if len(config.Targets) == 0 {
		config.Targets = defaults.Targets
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.ReexportInterval <= 0 {
		config.ReexportInterval = defaults.ReexportInterval
	}
	if config.ReexportStaleness <= 0 {
		config.ReexportStaleness = defaults.ReexportStaleness
	}
	return &ExportWorker{
		runner:   newRunner("export worker"),
		exporter: exporter,
		config:   config,
	}
}

// Start launches one poller per target plus the reexport sweep
func (w *ExportWorker) Start(ctx context.Context) error {
	loops := make([]func(context.Context), 0, len(w.config.Targets)+1)
	for _, target := range w.config.Targets {
		loops = append(loops, w.every(w.config.PollInterval, func(ctx context.Context) {
			w.drain(ctx, target)
		}))
	}
	loops = append(loops, w.every(w.config.ReexportInterval, w.reexport))
	return w.start(ctx, loops...)
}

// Stop stops the export worker
func (w *ExportWorker) Stop() {
	w.stop()
}

// drain exports until nothing is waiting or an error occurs
func (w *ExportWorker) drain(ctx context.Context, target ExportTarget) {
	for !w.stopping(ctx) {
		tx, err := w.exporter.ExportTasks(ctx, target.TypeOf, target.Status)
		if err != nil {
			w.statsMu.Lock()
			w.totalFailed++
			w.statsMu.Unlock()
			w.log.Error("failed to export tasks",
				zap.String("type_of", target.TypeOf.String()),
				zap.String("status", target.Status.String()),
				zap.Error(err),
			)
			return
		}
		if tx == nil {
			return
		}
		w.statsMu.Lock()
		w.totalExported++
		w.statsMu.Unlock()
	}
}

func (w *ExportWorker) reexport(ctx context.Context) {
	n, err := w.exporter.ReexportTasks(ctx, w.config.ReexportStaleness)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to reset stale exports: %v", err))
		return
	}
	if n > 0 {
		w.statsMu.Lock()
		w.totalReset += n
		w.statsMu.Unlock()
		w.log.Warn(fmt.Sprintf("Reset %d transactions stuck in Exporting", n))
	}
}

// GetStats returns worker statistics
func (w *ExportWorker) GetStats() *ExportWorkerStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	return &ExportWorkerStats{
		IsRunning:     w.isRunning(),
		TotalExported: w.totalExported,
		TotalReset:    w.totalReset,
		TotalFailed:   w.totalFailed,
	}
}

// ExportWorkerStats contains worker statistics
type ExportWorkerStats struct {
	IsRunning     bool  `json:"is_running"`
	TotalExported int64 `json:"total_exported"`
	TotalReset    int64 `json:"total_reset"`
	TotalFailed   int64 `json:"total_failed"`
}
