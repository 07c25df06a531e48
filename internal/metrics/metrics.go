package metrics

import (
	"context"
	"sync"

	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Transaction counters
	TransactionsStarted   *telemetry.Counter
	TransactionsConfirmed *telemetry.Counter
	TransactionsCanceled  *telemetry.Counter
	TransactionsExpired   *telemetry.Counter

	// Inventory
	SeatConflicts *telemetry.Counter

	// Task queue
	TasksExported *telemetry.Counter
	TasksExecuted *telemetry.Counter
	TasksFailed   *telemetry.Counter
	TasksRetried  *telemetry.Counter
	TasksAborted  *telemetry.Counter

	TaskDuration *telemetry.Histogram

	// In-flight Reserve transactions started by this process
	InProgressTransactions *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all reservation metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		dst  **telemetry.Counter
		opts telemetry.MetricOpts
	}{
		{&TransactionsStarted, telemetry.MetricOpts{Name: "reservation_transactions_started_total", Description: "Total number of transactions started", Unit: "1"}},
		{&TransactionsConfirmed, telemetry.MetricOpts{Name: "reservation_transactions_confirmed_total", Description: "Total number of transactions confirmed", Unit: "1"}},
		{&TransactionsCanceled, telemetry.MetricOpts{Name: "reservation_transactions_canceled_total", Description: "Total number of transactions canceled", Unit: "1"}},
		{&TransactionsExpired, telemetry.MetricOpts{Name: "reservation_transactions_expired_total", Description: "Total number of transactions expired", Unit: "1"}},
		{&SeatConflicts, telemetry.MetricOpts{Name: "reservation_seat_conflicts_total", Description: "Total number of seat lock conflicts", Unit: "1"}},
		{&TasksExported, telemetry.MetricOpts{Name: "reservation_tasks_exported_total", Description: "Total number of tasks exported", Unit: "1"}},
		{&TasksExecuted, telemetry.MetricOpts{Name: "reservation_tasks_executed_total", Description: "Total number of tasks executed successfully", Unit: "1"}},
		{&TasksFailed, telemetry.MetricOpts{Name: "reservation_task_failures_total", Description: "Total number of failed task executions", Unit: "1"}},
		{&TasksRetried, telemetry.MetricOpts{Name: "reservation_tasks_retried_total", Description: "Total number of tasks returned to Ready", Unit: "1"}},
		{&TasksAborted, telemetry.MetricOpts{Name: "reservation_tasks_aborted_total", Description: "Total number of aborted tasks", Unit: "1"}},
	}

	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
		*c.dst = counter
	}

	var err error
	TaskDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "reservation_task_duration_seconds",
		Description: "Task execution duration in seconds",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
	if err != nil {
		return err
	}

	InProgressTransactions, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "reservation_transactions_in_progress",
		Description: "Reserve transactions started and not yet confirmed or canceled",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordTransactionStarted records a started transaction
func RecordTransactionStarted(ctx context.Context, typeOf, eventID string, seats int) {
	if TransactionsStarted != nil {
		TransactionsStarted.Inc(ctx,
			attribute.String("type_of", typeOf),
			attribute.String("event_id", eventID),
			attribute.Int("seats", seats),
		)
	}
	if InProgressTransactions != nil {
		InProgressTransactions.Add(ctx, 1, attribute.String("type_of", typeOf))
	}
}

// RecordTransactionConfirmed records a confirmation
func RecordTransactionConfirmed(ctx context.Context, typeOf string) {
	if TransactionsConfirmed != nil {
		TransactionsConfirmed.Inc(ctx, attribute.String("type_of", typeOf))
	}
	if InProgressTransactions != nil {
		InProgressTransactions.Add(ctx, -1, attribute.String("type_of", typeOf))
	}
}

// RecordTransactionCanceled records a cancellation
func RecordTransactionCanceled(ctx context.Context, typeOf string) {
	if TransactionsCanceled != nil {
		TransactionsCanceled.Inc(ctx, attribute.String("type_of", typeOf))
	}
	if InProgressTransactions != nil {
		InProgressTransactions.Add(ctx, -1, attribute.String("type_of", typeOf))
	}
}

// RecordTransactionsExpired records a batch of expirations
func RecordTransactionsExpired(ctx context.Context, n int64) {
	if TransactionsExpired != nil && n > 0 {
		TransactionsExpired.Add(ctx, n)
	}
}

// RecordSeatConflict records a contested seat
func RecordSeatConflict(ctx context.Context, eventID string) {
	if SeatConflicts != nil {
		SeatConflicts.Inc(ctx, attribute.String("event_id", eventID))
	}
}

// RecordTasksExported records tasks materialized for a transaction
func RecordTasksExported(ctx context.Context, typeOf string, n int) {
	if TasksExported != nil && n > 0 {
		TasksExported.Add(ctx, int64(n), attribute.String("type_of", typeOf))
	}
}

// RecordTaskExecution records a task execution outcome and its duration
func RecordTaskExecution(ctx context.Context, name string, seconds float64, failed bool) {
	attrs := []attribute.KeyValue{attribute.String("task_name", name)}
	if failed {
		if TasksFailed != nil {
			TasksFailed.Inc(ctx, attrs...)
		}
	} else if TasksExecuted != nil {
		TasksExecuted.Inc(ctx, attrs...)
	}
	if TaskDuration != nil {
		TaskDuration.Record(ctx, seconds, attrs...)
	}
}

// RecordTasksRetried records tasks returned to Ready
func RecordTasksRetried(ctx context.Context, n int64) {
	if TasksRetried != nil && n > 0 {
		TasksRetried.Add(ctx, n)
	}
}

// RecordTaskAborted records an aborted task
func RecordTaskAborted(ctx context.Context, name string) {
	if TasksAborted != nil {
		TasksAborted.Inc(ctx, attribute.String("task_name", name))
	}
}
