package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// TransactionRepository persists transactions and guards their status transitions
type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	FindByID(ctx context.Context, typeOf domain.TransactionType, id string) (*domain.Transaction, error)
	// Confirm flips InProgress to Confirmed; an already Confirmed transaction is returned as is
	Confirm(ctx context.Context, params ConfirmTransactionParams) (*domain.Transaction, error)
	// Cancel flips InProgress to Canceled; an already Canceled transaction is returned as is
	Cancel(ctx context.Context, params CancelTransactionParams) (*domain.Transaction, error)
	// ExpireBefore expires every InProgress transaction whose deadline passed
	ExpireBefore(ctx context.Context, deadline time.Time) (int64, error)
	// ClaimForExport moves one Unexported transaction to Exporting at now; nil when none
	ClaimForExport(ctx context.Context, typeOf domain.TransactionType, status domain.TransactionStatus, now time.Time) (*domain.Transaction, error)
	SetTasksExported(ctx context.Context, id string, exportedAt time.Time) error
	// ReexportStale returns Exporting transactions untouched since staleBefore to Unexported
	ReexportStale(ctx context.Context, staleBefore, now time.Time) (int64, error)
}

// ConfirmTransactionParams holds the fields written at confirmation
type ConfirmTransactionParams struct {
	TypeOf           domain.TransactionType
	ID               string
	Result           domain.TransactionResult
	PotentialActions domain.PotentialActions
	EndDate          time.Time
}

// CancelTransactionParams holds the fields written at cancellation
type CancelTransactionParams struct {
	TypeOf  domain.TransactionType
	ID      string
	EndDate time.Time
}

const transactionColumns = `id, type_of, status, agent, object, result, potential_actions,
	expires, start_date, end_date, tasks_exportation_status, tasks_exported_at, updated_at`

// PostgresTransactionRepository implements TransactionRepository on PostgreSQL JSONB columns
type PostgresTransactionRepository struct {
	db DBTX
}

// NewPostgresTransactionRepository creates a new PostgresTransactionRepository
func NewPostgresTransactionRepository(db DBTX) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

// Create inserts a new transaction
func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *domain.Transaction) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.create")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(
		attribute.String("transaction_id", tx.ID),
		attribute.String("type_of", tx.TypeOf.String()),
	)

	agent, err := toJSON(tx.Agent)
	if err != nil {
		return fmt.Errorf("failed to encode agent: %w", err)
	}
	object, err := toJSON(tx.Object)
	if err != nil {
		return fmt.Errorf("failed to encode object: %w", err)
	}

	query := `
		INSERT INTO transactions (
			id, type_of, status, agent, object, expires, start_date,
			tasks_exportation_status, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.Exec(ctx, query,
		tx.ID,
		tx.TypeOf.String(),
		tx.Status.String(),
		agent,
		object,
		tx.Expires,
		tx.StartDate,
		string(tx.TasksExportationStatus),
		tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// FindByID retrieves a transaction of the given type
func (r *PostgresTransactionRepository) FindByID(ctx context.Context, typeOf domain.TransactionType, id string) (tx *domain.Transaction, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.find_by_id")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.String("transaction_id", id))

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND type_of = $2`

	tx, err = scanTransaction(r.db.QueryRow(ctx, query, id, typeOf.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError("transaction")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// Confirm atomically confirms an InProgress transaction
func (r *PostgresTransactionRepository) Confirm(ctx context.Context, params ConfirmTransactionParams) (tx *domain.Transaction, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.confirm")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.String("transaction_id", params.ID))

	result, err := toJSON(params.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	actions, err := toJSON(params.PotentialActions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode potential actions: %w", err)
	}

	query := `
		UPDATE transactions
		SET status = 'Confirmed', end_date = $3, result = $4, potential_actions = $5, updated_at = $3
		WHERE id = $1 AND type_of = $2 AND status = 'InProgress'
		RETURNING ` + transactionColumns

	tx, err = scanTransaction(r.db.QueryRow(ctx, query, params.ID, params.TypeOf.String(), params.EndDate, result, actions))
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to confirm transaction: %w", err)
	}

	current, err := r.FindByID(ctx, params.TypeOf, params.ID)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case domain.TransactionStatusConfirmed:
		return current, nil
	case domain.TransactionStatusExpired:
		return nil, domain.ErrTransactionAlreadyExpired
	case domain.TransactionStatusCanceled:
		return nil, domain.ErrTransactionAlreadyCanceled
	default:
		return nil, domain.NewNotFoundError("transaction")
	}
}

// Cancel atomically cancels an InProgress transaction
func (r *PostgresTransactionRepository) Cancel(ctx context.Context, params CancelTransactionParams) (tx *domain.Transaction, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.cancel")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.String("transaction_id", params.ID))

	query := `
		UPDATE transactions
		SET status = 'Canceled', end_date = $3, updated_at = $3
		WHERE id = $1 AND type_of = $2 AND status = 'InProgress'
		RETURNING ` + transactionColumns

	tx, err = scanTransaction(r.db.QueryRow(ctx, query, params.ID, params.TypeOf.String(), params.EndDate))
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to cancel transaction: %w", err)
	}

	current, err := r.FindByID(ctx, params.TypeOf, params.ID)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case domain.TransactionStatusCanceled:
		return current, nil
	case domain.TransactionStatusExpired:
		return nil, domain.ErrTransactionAlreadyExpired
	case domain.TransactionStatusConfirmed:
		return nil, domain.ErrTransactionAlreadyConfirmed
	default:
		return nil, domain.NewNotFoundError("transaction")
	}
}

// ExpireBefore bulk-expires InProgress transactions
func (r *PostgresTransactionRepository) ExpireBefore(ctx context.Context, deadline time.Time) (n int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.expire")
	defer func() { telemetry.EndSpan(span, err) }()

	query := `
		UPDATE transactions
		SET status = 'Expired', end_date = $1, updated_at = $1
		WHERE status = 'InProgress' AND expires < $1
	`

	tag, err := r.db.Exec(ctx, query, deadline)
	if err != nil {
		return 0, fmt.Errorf("failed to expire transactions: %w", err)
	}

	span.SetAttributes(attribute.Int64("expired", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// ClaimForExport claims one terminal transaction for task export
func (r *PostgresTransactionRepository) ClaimForExport(ctx context.Context, typeOf domain.TransactionType, status domain.TransactionStatus, now time.Time) (tx *domain.Transaction, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.claim_for_export")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(
		attribute.String("type_of", typeOf.String()),
		attribute.String("status", status.String()),
	)

	query := `
		UPDATE transactions
		SET tasks_exportation_status = 'Exporting', updated_at = $3
		WHERE id = (
			SELECT id FROM transactions
			WHERE type_of = $1 AND status = $2 AND tasks_exportation_status = 'Unexported'
			ORDER BY updated_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + transactionColumns

	tx, err = scanTransaction(r.db.QueryRow(ctx, query, typeOf.String(), status.String(), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim transaction for export: %w", err)
	}
	return tx, nil
}

// SetTasksExported marks an Exporting transaction as Exported
func (r *PostgresTransactionRepository) SetTasksExported(ctx context.Context, id string, exportedAt time.Time) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.set_tasks_exported")
	defer func() { telemetry.EndSpan(span, err) }()

	query := `
		UPDATE transactions
		SET tasks_exportation_status = 'Exported', tasks_exported_at = $2, updated_at = $2
		WHERE id = $1 AND tasks_exportation_status = 'Exporting'
	`

	tag, err := r.db.Exec(ctx, query, id, exportedAt)
	if err != nil {
		return fmt.Errorf("failed to mark tasks exported: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("exporting transaction")
	}
	return nil
}

// ReexportStale resets stuck exports
func (r *PostgresTransactionRepository) ReexportStale(ctx context.Context, staleBefore, now time.Time) (n int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.reexport")
	defer func() { telemetry.EndSpan(span, err) }()

	query := `
		UPDATE transactions
		SET tasks_exportation_status = 'Unexported', updated_at = $2
		WHERE tasks_exportation_status = 'Exporting' AND updated_at < $1
	`

	tag, err := r.db.Exec(ctx, query, staleBefore, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reexport transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx                domain.Transaction
		typeOf, status    string
		exportationStatus string
		agent, object     []byte
		result, actions   []byte
	)

	err := row.Scan(
		&tx.ID,
		&typeOf,
		&status,
		&agent,
		&object,
		&result,
		&actions,
		&tx.Expires,
		&tx.StartDate,
		&tx.EndDate,
		&exportationStatus,
		&tx.TasksExportedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.TypeOf = domain.TransactionType(typeOf)
	tx.Status = domain.TransactionStatus(status)
	tx.TasksExportationStatus = domain.TasksExportationStatus(exportationStatus)

	if err := jsonUnmarshal(agent, &tx.Agent); err != nil {
		return nil, fmt.Errorf("failed to decode agent: %w", err)
	}
	if tx.Object, err = domain.DecodeObject(tx.TypeOf, object); err != nil {
		return nil, err
	}
	if tx.Result, err = domain.DecodeResult(tx.TypeOf, result); err != nil {
		return nil, err
	}
	if tx.PotentialActions, err = domain.DecodePotentialActions(tx.TypeOf, actions); err != nil {
		return nil, err
	}

	return &tx, nil
}

var _ TransactionRepository = (*PostgresTransactionRepository)(nil)
