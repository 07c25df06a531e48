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

// ReservationRepository persists reservations
type ReservationRepository interface {
	// CreateMany inserts reservations; ids already present are left untouched
	CreateMany(ctx context.Context, reservations []domain.Reservation) error
	FindByID(ctx context.Context, id string) (*domain.Reservation, error)
	// Confirm marks a reservation Confirmed unless it was cancelled
	Confirm(ctx context.Context, id string, at time.Time) (*domain.Reservation, error)
	// Cancel marks a reservation Cancelled; cancelling twice is a no-op
	Cancel(ctx context.Context, id string, at time.Time) (*domain.Reservation, error)
	CheckIn(ctx context.Context, id string, at time.Time) (*domain.Reservation, error)
	Attend(ctx context.Context, id string, at time.Time) (*domain.Reservation, error)
}

const reservationColumns = `id, reservation_number, reservation_status, checked_in, attended, document, modified_time`

// PostgresReservationRepository implements ReservationRepository
type PostgresReservationRepository struct {
	db DBTX
}

// NewPostgresReservationRepository creates a new PostgresReservationRepository
func NewPostgresReservationRepository(db DBTX) *PostgresReservationRepository {
	return &PostgresReservationRepository{db: db}
}

// CreateMany inserts all reservations in one statement
func (r *PostgresReservationRepository) CreateMany(ctx context.Context, reservations []domain.Reservation) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.create_many")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.Int("count", len(reservations)))

	if len(reservations) == 0 {
		return nil
	}

	var (
		values []string
		args   []interface{}
	)
	for i := range reservations {
		res := &reservations[i]
		doc, err := toJSON(res)
		if err != nil {
			return fmt.Errorf("failed to encode reservation %s: %w", res.ID, err)
		}
		n := len(args)
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7))
		args = append(args,
			res.ID,
			res.ReservationNumber,
			res.ReservationStatus.String(),
			res.CheckedIn,
			res.Attended,
			doc,
			res.ModifiedTime,
		)
	}

	query := `INSERT INTO reservations (` + reservationColumns + `) VALUES ` +
		strings.Join(values, ", ") + ` ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create reservations: %w", err)
	}
	return nil
}

// FindByID retrieves a reservation
func (r *PostgresReservationRepository) FindByID(ctx context.Context, id string) (res *domain.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.find_by_id")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.String("reservation_id", id))

	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	return r.one(ctx, "get", query, id)
}

// Confirm confirms a Pending or already Confirmed reservation
func (r *PostgresReservationRepository) Confirm(ctx context.Context, id string, at time.Time) (res *domain.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.confirm")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.String("reservation_id", id))

	query := `
		UPDATE reservations
		SET reservation_status = 'Confirmed', modified_time = $2
		WHERE id = $1 AND reservation_status <> 'Cancelled'
		RETURNING ` + reservationColumns

	res, err = r.one(ctx, "confirm", query, id, at)
	if !domain.IsNotFoundError(err) {
		return res, err
	}

	// Either missing or cancelled
	if _, findErr := r.FindByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, domain.NewArgumentError("reservation", fmt.Sprintf("Reservation %s already cancelled", id))
}

// Cancel cancels a reservation regardless of its current status
func (r *PostgresReservationRepository) Cancel(ctx context.Context, id string, at time.Time) (res *domain.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.cancel")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.String("reservation_id", id))

	query := `
		UPDATE reservations
		SET reservation_status = 'Cancelled',
			modified_time = CASE WHEN reservation_status = 'Cancelled' THEN modified_time ELSE $2 END
		WHERE id = $1
		RETURNING ` + reservationColumns

	return r.one(ctx, "cancel", query, id, at)
}

// CheckIn sets checkedIn; it never goes back to false
func (r *PostgresReservationRepository) CheckIn(ctx context.Context, id string, at time.Time) (res *domain.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.check_in")
	defer func() { telemetry.EndSpan(span, err) }()

	query := `
		UPDATE reservations SET checked_in = TRUE, modified_time = $2
		WHERE id = $1
		RETURNING ` + reservationColumns

	return r.one(ctx, "check in", query, id, at)
}

// Attend sets attended; it never goes back to false
func (r *PostgresReservationRepository) Attend(ctx context.Context, id string, at time.Time) (res *domain.Reservation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.attend")
	defer func() { telemetry.EndSpan(span, err) }()

	query := `
		UPDATE reservations SET attended = TRUE, modified_time = $2
		WHERE id = $1
		RETURNING ` + reservationColumns

	return r.one(ctx, "attend", query, id, at)
}

func (r *PostgresReservationRepository) one(ctx context.Context, op, query string, args ...interface{}) (*domain.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError("reservation")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s reservation: %w", op, err)
	}
	return res, nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var (
		res       domain.Reservation
		id        string
		number    string
		status    string
		checkedIn bool
		attended  bool
		doc       []byte
		modified  time.Time
	)

	if err := row.Scan(&id, &number, &status, &checkedIn, &attended, &doc, &modified); err != nil {
		return nil, err
	}
	if err := jsonUnmarshal(doc, &res); err != nil {
		return nil, fmt.Errorf("failed to decode reservation: %w", err)
	}

	// Columns are authoritative over the document snapshot
	res.ID = id
	res.ReservationNumber = number
	res.ReservationStatus = domain.ReservationStatus(status)
	res.CheckedIn = checkedIn
	res.Attended = attended
	res.ModifiedTime = modified
	return &res, nil
}

var _ ReservationRepository = (*PostgresReservationRepository)(nil)
