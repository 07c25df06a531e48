package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	calls int32
	n     int64
	err   error
}

func (f *fakeExpirer) Expire(ctx context.Context, deadline time.Time) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.n, f.err
}

func TestExpiryWorker_ExpiresOnStart(t *testing.T) {
	expirer := &fakeExpirer{n: 3}
	w := NewExpiryWorker(expirer, &ExpiryWorkerConfig{ScanInterval: time.Hour})

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return w.GetStats().TotalExpired == 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, w.GetStats().IsRunning)

	assert.Error(t, w.Start(context.Background()), "second start is rejected")

	w.Stop()
	assert.False(t, w.GetStats().IsRunning)
	assert.Equal(t, int32(1), atomic.LoadInt32(&expirer.calls))
}

func TestExpiryWorker_ErrorKeepsTotals(t *testing.T) {
	w := NewExpiryWorker(&fakeExpirer{n: 5, err: errors.New("connection refused")}, nil)

	w.expire(context.Background())

	stats := w.GetStats()
	assert.Zero(t, stats.TotalExpired)
	assert.False(t, stats.LastScanTime.IsZero())
}

type fakeExporter struct {
	mu       sync.Mutex
	pending  map[ExportTarget]int
	failOn   ExportTarget
	reexport int32
}

func (f *fakeExporter) ExportTasks(ctx context.Context, typeOf domain.TransactionType, status domain.TransactionStatus) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := ExportTarget{TypeOf: typeOf, Status: status}
	if target == f.failOn {
		return nil, errors.New("tasks insert failed")
	}
	if f.pending[target] == 0 {
		return nil, nil
	}
	f.pending[target]--
	return &domain.Transaction{TypeOf: typeOf, Status: status}, nil
}

func (f *fakeExporter) ReexportTasks(ctx context.Context, interval time.Duration) (int64, error) {
	atomic.AddInt32(&f.reexport, 1)
	return 2, nil
}

func TestExportWorker_DrainsEveryTarget(t *testing.T) {
	reserveConfirmed := ExportTarget{TypeOf: domain.TransactionTypeReserve, Status: domain.TransactionStatusConfirmed}
	cancelExpired := ExportTarget{TypeOf: domain.TransactionTypeCancelReservation, Status: domain.TransactionStatusExpired}
	exporter := &fakeExporter{
		pending: map[ExportTarget]int{reserveConfirmed: 3, cancelExpired: 2},
		failOn:  ExportTarget{TypeOf: domain.TransactionTypeReserve, Status: domain.TransactionStatusCanceled},
	}
	w := NewExportWorker(exporter, &ExportWorkerConfig{PollInterval: time.Hour, ReexportInterval: time.Hour})

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool {
		stats := w.GetStats()
		return stats.TotalExported == 5 && stats.TotalReset == 2 && stats.TotalFailed == 1
	}, time.Second, 5*time.Millisecond)
	w.Stop()

	assert.Equal(t, 0, exporter.pending[reserveConfirmed])
	assert.Equal(t, int32(1), atomic.LoadInt32(&exporter.reexport))
}

func TestDefaultExportTargets(t *testing.T) {
	targets := DefaultExportTargets()

	assert.Len(t, targets, 6)
	assert.Contains(t, targets, ExportTarget{TypeOf: domain.TransactionTypeCancelReservation, Status: domain.TransactionStatusCanceled})
}

type fakeTaskRunner struct {
	mu      sync.Mutex
	due     map[domain.TaskName]int
	exhaust int
	retried int64
}

func (f *fakeTaskRunner) ExecuteByName(ctx context.Context, name domain.TaskName) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.due[name] == 0 {
		return nil, nil
	}
	f.due[name]--
	return &domain.Task{Name: name, Status: domain.TaskStatusExecuted}, nil
}

func (f *fakeTaskRunner) Retry(ctx context.Context, interval time.Duration) (int64, error) {
	return f.retried, nil
}

func (f *fakeTaskRunner) Abort(ctx context.Context, interval time.Duration) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exhaust == 0 {
		return nil, nil
	}
	f.exhaust--
	return &domain.Task{Status: domain.TaskStatusAborted}, nil
}

func TestTaskWorker_RunsPollersAndSweeps(t *testing.T) {
	tasks := &fakeTaskRunner{
		due: map[domain.TaskName]int{
			domain.TaskNameConfirmReservation:       4,
			domain.TaskNameCancelPendingReservation: 3,
		},
		exhaust: 2,
		retried: 1,
	}
	w := NewTaskWorker(tasks, &TaskWorkerConfig{
		PollInterval:   time.Hour,
		WorkersPerName: 3,
		RetryInterval:  time.Hour,
		AbortInterval:  time.Hour,
	})

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool {
		stats := w.GetStats()
		return stats.TotalExecuted == 7 && stats.TotalAborted == 2 && stats.TotalRetried == 1
	}, time.Second, 5*time.Millisecond)
	w.Stop()

	assert.False(t, w.GetStats().IsRunning)
}

func TestTaskWorker_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewTaskWorker(&fakeTaskRunner{due: map[domain.TaskName]int{}}, &TaskWorkerConfig{PollInterval: 5 * time.Millisecond})

	require.NoError(t, w.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}
