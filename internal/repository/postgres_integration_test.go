package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getPostgresPool connects to the test database and applies the schema
func getPostgresPool(t *testing.T) *pgxpool.Pool {
	skipIfNoIntegration(t)

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		envOr("TEST_POSTGRES_USER", "postgres"),
		envOr("TEST_POSTGRES_PASSWORD", "postgres"),
		envOr("TEST_POSTGRES_HOST", "localhost"),
		envOr("TEST_POSTGRES_PORT", "5432"),
		envOr("TEST_POSTGRES_DB", "reservation_test"),
	)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err, "Failed to create PostgreSQL pool")
	require.NoError(t, pool.Ping(ctx), "Failed to ping PostgreSQL")
	require.NoError(t, Migrate(ctx, pool))

	t.Cleanup(pool.Close)
	return pool
}

func TestIntegration_ConfirmIsSingleWinner(t *testing.T) {
	pool := getPostgresPool(t)
	repo := NewPostgresTransactionRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	tx := &domain.Transaction{
		ID:                     uuid.New().String(),
		TypeOf:                 domain.TransactionTypeReserve,
		Status:                 domain.TransactionStatusInProgress,
		Agent:                  domain.Agent{TypeOf: "Person", ID: "test-user"},
		Object:                 &domain.ReserveObject{ReservationNumber: "test-000001"},
		Expires:                now.Add(time.Minute),
		StartDate:              now,
		TasksExportationStatus: domain.TasksExportationStatusUnexported,
		UpdatedAt:              now,
	}
	require.NoError(t, repo.Create(ctx, tx))
	t.Cleanup(func() { _, _ = pool.Exec(ctx, "DELETE FROM transactions WHERE id = $1", tx.ID) })

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Confirm(ctx, ConfirmTransactionParams{
				TypeOf:  domain.TransactionTypeReserve,
				ID:      tx.ID,
				Result:  &domain.ReserveResult{ReservationNumber: "test-000001"},
				EndDate: now,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	got, err := repo.FindByID(ctx, domain.TransactionTypeReserve, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusConfirmed, got.Status)

	_, err = repo.Cancel(ctx, CancelTransactionParams{TypeOf: domain.TransactionTypeReserve, ID: tx.ID, EndDate: now})
	assert.ErrorIs(t, err, domain.ErrTransactionAlreadyConfirmed)
}

func TestIntegration_TaskClaimSkipsLockedRows(t *testing.T) {
	pool := getPostgresPool(t)
	repo := NewPostgresTaskRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	name := domain.TaskNameCancelPendingReservation
	var tasks []*domain.Task
	for i := 0; i < 5; i++ {
		task, err := domain.NewTask(uuid.New().String(), name, domain.CancelReservationTaskData{}, now.Add(-time.Hour), 3)
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	require.NoError(t, repo.CreateMany(ctx, tasks))
	t.Cleanup(func() { _, _ = pool.Exec(ctx, "DELETE FROM tasks WHERE name = $1", name.String()) })

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := repo.Claim(ctx, name, now)
			if err != nil || task == nil {
				return
			}
			mu.Lock()
			claimed[task.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id, n := range claimed {
		assert.Equal(t, 1, n, "task %s claimed more than once", id)
	}
}

func TestIntegration_ExhaustedFailingTaskIsAborted(t *testing.T) {
	pool := getPostgresPool(t)
	repo := NewPostgresTaskRepository(pool)
	ctx := context.Background()

	// far in the past so this row sorts ahead of anything else due
	runsAt := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	triedAt := runsAt.Add(time.Minute)

	task, err := domain.NewTask(uuid.New().String(), domain.TaskNameConfirmReservation,
		domain.ConfirmReservationTaskData{}, runsAt, 1)
	require.NoError(t, err)
	require.NoError(t, repo.CreateMany(ctx, []*domain.Task{task}))
	t.Cleanup(func() { _, _ = pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", task.ID) })

	claimed, err := repo.Claim(ctx, domain.TaskNameConfirmReservation, triedAt)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, task.ID, claimed.ID)
	assert.Equal(t, 0, claimed.RemainingNumberOfTries)

	require.NoError(t, repo.PushExecutionResult(ctx, task.ID,
		domain.TaskExecutionResult{ExecutedAt: triedAt, Error: "boom"}, false))

	cutoff := time.Now().UTC().Add(time.Hour)
	n, err := repo.Retry(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	stored, err := repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRunning, stored.Status)

	aborted, err := repo.AbortOne(ctx, cutoff)
	require.NoError(t, err)
	require.NotNil(t, aborted)
	assert.Equal(t, task.ID, aborted.ID)
	assert.Equal(t, domain.TaskStatusAborted, aborted.Status)
	require.Len(t, aborted.ExecutionResults, 1)
	assert.Equal(t, "boom", aborted.ExecutionResults[0].Error)

	// a late success cannot revive an aborted task
	err = repo.PushExecutionResult(ctx, task.ID, domain.TaskExecutionResult{ExecutedAt: time.Now().UTC()}, true)
	assert.True(t, domain.IsNotFoundError(err))
}
