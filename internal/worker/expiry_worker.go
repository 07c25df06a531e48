package worker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Expirer expires overdue InProgress transactions
type Expirer interface {
	Expire(ctx context.Context, deadline time.Time) (int64, error)
}

// ExpiryWorkerConfig contains configuration for the expiry worker
type ExpiryWorkerConfig struct {
	// ScanInterval is the interval between expiry scans
	ScanInterval time.Duration
}

// DefaultExpiryWorkerConfig returns default configuration
func DefaultExpiryWorkerConfig() *ExpiryWorkerConfig {
	return &ExpiryWorkerConfig{
		ScanInterval: 10 * time.Second,
	}
}

// ExpiryWorker periodically moves overdue transactions to Expired
type ExpiryWorker struct {
	*runner
	expirer Expirer
	config  *ExpiryWorkerConfig
	now     func() time.Time

	statsMu          sync.Mutex
	totalExpired     int64
	lastScanTime     time.Time
	lastExpiredCount int64
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(expirer Expirer, config *ExpiryWorkerConfig) *ExpiryWorker {
	if config == nil || config.ScanInterval <= 0 {
		config = DefaultExpiryWorkerConfig()
	}
	return &ExpiryWorker{
		runner:  newRunner("expiry worker"),
		expirer: expirer,
		config:  config,
		now:     time.Now,
	}
}

// Start starts the expiry worker
func (w *ExpiryWorker) Start(ctx context.Context) error {
	return w.start(ctx, w.every(w.config.ScanInterval, w.expire))
}

// Stop stops the expiry worker
func (w *ExpiryWorker) Stop() {
	w.stop()
}

func (w *ExpiryWorker) expire(ctx context.Context) {
	now := w.now()
	n, err := w.expirer.Expire(ctx, now)

	w.statsMu.Lock()
	w.lastScanTime = now
	if err == nil {
		w.totalExpired += n
		w.lastExpiredCount = n
	}
	w.statsMu.Unlock()

	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to expire transactions: %v", err))
		return
	}
	if n > 0 {
		w.log.Info(fmt.Sprintf("Expired %d transactions", n))
	}
}

// GetStats returns worker statistics
func (w *ExpiryWorker) GetStats() *ExpiryWorkerStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	return &ExpiryWorkerStats{
		IsRunning:        w.isRunning(),
		TotalExpired:     w.totalExpired,
		LastScanTime:     w.lastScanTime,
		LastExpiredCount: w.lastExpiredCount,
	}
}

// ExpiryWorkerStats contains worker statistics
type ExpiryWorkerStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalExpired     int64     `json:"total_expired"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastExpiredCount int64     `json:"last_expired_count"`
}
