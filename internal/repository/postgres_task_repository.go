package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// TaskRepository is the durable task queue
type TaskRepository interface {
	CreateMany(ctx context.Context, tasks []*domain.Task) error
	// Claim moves one due Ready task of the given name to Running; nil when none
	Claim(ctx context.Context, name domain.TaskName, now time.Time) (*domain.Task, error)
	// PushExecutionResult appends a result; when executed is true the task becomes Executed
	PushExecutionResult(ctx context.Context, id string, result domain.TaskExecutionResult, executed bool) error
	// Retry returns Running tasks with tries left and lastTriedAt before the cutoff to Ready
	Retry(ctx context.Context, lastTriedBefore time.Time) (int64, error)
	// AbortOne moves one Running task without tries left to Aborted; nil when none
	AbortOne(ctx context.Context, lastTriedBefore time.Time) (*domain.Task, error)
	FindByID(ctx context.Context, id string) (*domain.Task, error)
}

const taskColumns = `id, name, status, runs_at, remaining_number_of_tries, number_of_tried,
	last_tried_at, execution_results, data`

// PostgresTaskRepository implements TaskRepository
type PostgresTaskRepository struct {
	db DBTX
}

// NewPostgresTaskRepository creates a new PostgresTaskRepository
func NewPostgresTaskRepository(db DBTX) *PostgresTaskRepository {
	return &PostgresTaskRepository{db: db}
}

// CreateMany inserts tasks in one statement; ids already present are skipped
func (r *PostgresTaskRepository) CreateMany(ctx context.Context, tasks []*domain.Task) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.task.create_many")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.Int("count", len(tasks)))

	if len(tasks) == 0 {
		return nil
	}

	var (
		values []string
		args   []interface{}
	)
	for _, task := range tasks {
		results, err := toJSON(task.ExecutionResults)
		if err != nil {
			return fmt.Errorf("failed to encode execution results: %w", err)
		}
		n := len(args)
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8))
		args = append(args,
			task.ID,
			task.Name.String(),
			task.Status.String(),
			task.RunsAt,
			task.RemainingNumberOfTries,
			task.NumberOfTried,
			results,
			[]byte(task.Data),
		)
	}

	query := `INSERT INTO tasks (id, name, status, runs_at, remaining_number_of_tries, number_of_tried,
		execution_results, data) VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create tasks: %w", err)
	}
	return nil
}

// Claim atomically takes one due task; concurrent claimers skip each other's rows
func (r *PostgresTaskRepository) Claim(ctx context.Context, name domain.TaskName, now time.Time) (task *domain.Task, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.task.claim")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.String("task_name", name.String()))

	query := `
		UPDATE tasks
		SET status = 'Running',
			last_tried_at = $2,
			number_of_tried = number_of_tried + 1,
			remaining_number_of_tries = remaining_number_of_tries - 1
		WHERE id = (
			SELECT id FROM tasks
			WHERE name = $1 AND status = 'Ready' AND runs_at <= $2
			ORDER BY runs_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns

	task, err = scanTask(r.db.QueryRow(ctx, query, name.String(), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}

	span.SetAttributes(attribute.String("task_id", task.ID))
	return task, nil
}

// PushExecutionResult appends to the execution log of a Running task.
// Aborted or finished tasks report NotFound.
func (r *PostgresTaskRepository) PushExecutionResult(ctx context.Context, id string, result domain.TaskExecutionResult, executed bool) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.task.push_execution_result")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(
		attribute.String("task_id", id),
		attribute.Bool("executed", executed),
	)

	entry, err := toJSON([]domain.TaskExecutionResult{result})
	if err != nil {
		return fmt.Errorf("failed to encode execution result: %w", err)
	}

	query := `
		UPDATE tasks
		SET execution_results = execution_results || $2::jsonb,
			status = CASE WHEN $3::boolean THEN 'Executed' ELSE status END
		WHERE id = $1 AND status = 'Running'
	`

	tag, err := r.db.Exec(ctx, query, id, entry, executed)
	if err != nil {
		return fmt.Errorf("failed to push execution result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("task")
	}
	return nil
}

// Retry requeues stale Running tasks that still have tries left
func (r *PostgresTaskRepository) Retry(ctx context.Context, lastTriedBefore time.Time) (n int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.task.retry")
	defer func() { telemetry.EndSpan(span, err) }()

	query := `
		UPDATE tasks
		SET status = 'Ready'
		WHERE status = 'Running' AND last_tried_at < $1 AND remaining_number_of_tries > 0
	`

	tag, err := r.db.Exec(ctx, query, lastTriedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to retry tasks: %w", err)
	}

	span.SetAttributes(attribute.Int64("retried", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// AbortOne aborts one stale Running task whose tries are exhausted
func (r *PostgresTaskRepository) AbortOne(ctx context.Context, lastTriedBefore time.Time) (task *domain.Task, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.task.abort")
	defer func() { telemetry.EndSpan(span, err) }()

	query := `
		UPDATE tasks
		SET status = 'Aborted'
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = 'Running' AND last_tried_at < $1 AND remaining_number_of_tries <= 0
			ORDER BY last_tried_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns

	task, err = scanTask(r.db.QueryRow(ctx, query, lastTriedBefore))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to abort task: %w", err)
	}
	return task, nil
}

// FindByID retrieves a task
func (r *PostgresTaskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError("task")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		task         domain.Task
		name, status string
		results      []byte
		data         []byte
	)

	err := row.Scan(
		&task.ID,
		&name,
		&status,
		&task.RunsAt,
		&task.RemainingNumberOfTries,
		&task.NumberOfTried,
		&task.LastTriedAt,
		&results,
		&data,
	)
	if err != nil {
		return nil, err
	}

	task.Name = domain.TaskName(name)
	task.Status = domain.TaskStatus(status)
	task.Data = data
	if err := jsonUnmarshal(results, &task.ExecutionResults); err != nil {
		return nil, fmt.Errorf("failed to decode execution results: %w", err)
	}
	return &task, nil
}

var _ TaskRepository = (*PostgresTaskRepository)(nil)
