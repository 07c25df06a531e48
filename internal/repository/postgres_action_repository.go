package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ActionRepository records the audit trail of executed side effects
type ActionRepository interface {
	Start(ctx context.Context, action *domain.Action) error
	Complete(ctx context.Context, id string, endDate time.Time) error
	GiveUp(ctx context.Context, id string, cause error, endDate time.Time) error
	SearchByPurpose(ctx context.Context, purposeID string) ([]*domain.Action, error)
}

// PostgresActionRepository implements ActionRepository
type PostgresActionRepository struct {
	db DBTX
}

// NewPostgresActionRepository creates a new PostgresActionRepository
func NewPostgresActionRepository(db DBTX) *PostgresActionRepository {
	return &PostgresActionRepository{db: db}
}

// Start inserts an action in ActiveActionStatus
func (r *PostgresActionRepository) Start(ctx context.Context, action *domain.Action) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.action.start")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(
		attribute.String("action_id", action.ID),
		attribute.String("type_of", string(action.TypeOf)),
	)

	agent, err := toJSON(action.Agent)
	if err != nil {
		return fmt.Errorf("failed to encode agent: %w", err)
	}
	object, err := toJSON(action.Object)
	if err != nil {
		return fmt.Errorf("failed to encode object: %w", err)
	}
	purpose, err := toJSON(action.Purpose)
	if err != nil {
		return fmt.Errorf("failed to encode purpose: %w", err)
	}

	action.ActionStatus = domain.ActionStatusActive

	query := `
		INSERT INTO actions (id, type_of, action_status, agent, object, purpose, start_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.Exec(ctx, query,
		action.ID,
		string(action.TypeOf),
		string(action.ActionStatus),
		agent,
		object,
		purpose,
		action.StartDate,
	)
	if err != nil {
		return fmt.Errorf("failed to start action: %w", err)
	}
	return nil
}

// Complete marks an action completed
func (r *PostgresActionRepository) Complete(ctx context.Context, id string, endDate time.Time) error {
	return r.finish(ctx, "repo.postgres.action.complete", id, domain.ActionStatusCompleted, nil, endDate)
}

// GiveUp marks an action failed and keeps the cause
func (r *PostgresActionRepository) GiveUp(ctx context.Context, id string, cause error, endDate time.Time) error {
	var message *string
	if cause != nil {
		s := cause.Error()
		message = &s
	}
	return r.finish(ctx, "repo.postgres.action.give_up", id, domain.ActionStatusFailed, message, endDate)
}

func (r *PostgresActionRepository) finish(ctx context.Context, op, id string, status domain.ActionStatus, cause *string, endDate time.Time) (err error) {
	ctx, span := telemetry.StartSpan(ctx, op)
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.String("action_id", id))

	query := `UPDATE actions SET action_status = $2, error = $3, end_date = $4 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, string(status), cause, endDate)
	if err != nil {
		return fmt.Errorf("failed to update action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("action")
	}
	return nil
}

// SearchByPurpose lists the actions executed for a transaction
func (r *PostgresActionRepository) SearchByPurpose(ctx context.Context, purposeID string) (actions []*domain.Action, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.action.search_by_purpose")
	defer func() { telemetry.EndSpan(span, err) }()

	query := `
		SELECT id, type_of, action_status, agent, object, purpose, error, start_date, end_date
		FROM actions
		WHERE purpose ->> 'id' = $1
		ORDER BY start_date
	`

	rows, err := r.db.Query(ctx, query, purposeID)
	if err != nil {
		return nil, fmt.Errorf("failed to search actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			action                 domain.Action
			typeOf, status         string
			agent, object, purpose []byte
			cause                  *string
		)
		if err := rows.Scan(
			&action.ID,
			&typeOf,
			&status,
			&agent,
			&object,
			&purpose,
			&cause,
			&action.StartDate,
			&action.EndDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		action.TypeOf = domain.ActionType(typeOf)
		action.ActionStatus = domain.ActionStatus(status)
		if cause != nil {
			action.Error = *cause
		}
		if err := jsonUnmarshal(agent, &action.Agent); err != nil {
			return nil, fmt.Errorf("failed to decode agent: %w", err)
		}
		if err := jsonUnmarshal(object, &action.Object); err != nil {
			return nil, fmt.Errorf("failed to decode object: %w", err)
		}
		if err := jsonUnmarshal(purpose, &action.Purpose); err != nil {
			return nil, fmt.Errorf("failed to decode purpose: %w", err)
		}
		actions = append(actions, &action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}
	return actions, nil
}

var _ ActionRepository = (*PostgresActionRepository)(nil)
