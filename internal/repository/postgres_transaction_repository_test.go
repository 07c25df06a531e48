package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transactionColumnNames = []string{
	"id", "type_of", "status", "agent", "object", "result", "potential_actions",
	"expires", "start_date", "end_date", "tasks_exportation_status", "tasks_exported_at", "updated_at",
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func reserveTransactionRows(t *testing.T, id string, status domain.TransactionStatus, now time.Time) *pgxmock.Rows {
	t.Helper()
	object := &domain.ReserveObject{
		Event:             domain.Event{ID: "event-1", Seller: domain.Seller{BranchCode: "001"}},
		ReservationNumber: "001-240501-000001",
		Reservations: []domain.Reservation{{
			ID:                "001-240501-000001-0",
			ReservationNumber: "001-240501-000001",
			ReservedTicket:    domain.Ticket{TicketedSeat: domain.Seat{SeatSection: "A", SeatNumber: "7"}},
			ReservationStatus: domain.ReservationStatusPending,
		}},
	}

	var (
		result  []byte
		actions []byte
		endDate *time.Time
	)
	if status == domain.TransactionStatusConfirmed {
		result = mustJSON(t, &domain.ReserveResult{ReservationNumber: object.ReservationNumber, Price: 1800, PriceCurrency: "JPY"})
		actions = mustJSON(t, &domain.ReservePotentialActions{Reserve: []domain.ReserveActionAttributes{{
			TypeOf: domain.ActionTypeReserve,
			Object: object.Reservations[0].Ref(),
		}}})
	}
	if status.IsTerminal() {
		endDate = &now
	}

	return pgxmock.NewRows(transactionColumnNames).AddRow(
		id,
		domain.TransactionTypeReserve.String(),
		status.String(),
		mustJSON(t, domain.Agent{TypeOf: "Person", ID: "user-1"}),
		mustJSON(t, object),
		result,
		actions,
		now.Add(15*time.Minute),
		now,
		endDate,
		string(domain.TasksExportationStatusUnexported),
		(*time.Time)(nil),
		now,
	)
}

func TestPostgresTransactionRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPostgresTransactionRepository(mock)
	now := time.Now()

	tx := &domain.Transaction{
		ID:                     "tx-1",
		TypeOf:                 domain.TransactionTypeReserve,
		Status:                 domain.TransactionStatusInProgress,
		Agent:                  domain.Agent{TypeOf: "Person", ID: "user-1"},
		Object:                 &domain.ReserveObject{ReservationNumber: "001-240501-000001"},
		Expires:                now.Add(15 * time.Minute),
		StartDate:              now,
		TasksExportationStatus: domain.TasksExportationStatusUnexported,
		UpdatedAt:              now,
	}

	mock.ExpectExec("INSERT INTO transactions").
		WithArgs("tx-1", "Reserve", "InProgress", pgxmock.AnyArg(), pgxmock.AnyArg(),
			tx.Expires, tx.StartDate, "Unexported", tx.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), tx))
}

func TestPostgresTransactionRepository_FindByID(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPostgresTransactionRepository(mock)
	now := time.Now()

	mock.ExpectQuery("FROM transactions WHERE id = \\$1 AND type_of = \\$2").
		WithArgs("tx-1", "Reserve").
		WillReturnRows(reserveTransactionRows(t, "tx-1", domain.TransactionStatusInProgress, now))

	tx, err := repo.FindByID(context.Background(), domain.TransactionTypeReserve, "tx-1")
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionStatusInProgress, tx.Status)
	assert.Nil(t, tx.Result)
	assert.Nil(t, tx.PotentialActions)
	assert.Nil(t, tx.EndDate)

	object, ok := tx.Object.(*domain.ReserveObject)
	require.True(t, ok)
	assert.Equal(t, "001-240501-000001", object.ReservationNumber)
	require.Len(t, object.Reservations, 1)
	assert.Equal(t, "A-7", object.Reservations[0].ReservedTicket.TicketedSeat.String())
}

func TestPostgresTransactionRepository_FindByID_NotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPostgresTransactionRepository(mock)

	mock.ExpectQuery("FROM transactions WHERE id").
		WithArgs("missing", "Reserve").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindByID(context.Background(), domain.TransactionTypeReserve, "missing")
	assert.True(t, domain.IsNotFoundError(err))
}

func TestPostgresTransactionRepository_Confirm(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPostgresTransactionRepository(mock)
	now := time.Now()

	mock.ExpectQuery("SET status = 'Confirmed'").
		WithArgs("tx-1", "Reserve", now, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(reserveTransactionRows(t, "tx-1", domain.TransactionStatusConfirmed, now))

	tx, err := repo.Confirm(context.Background(), ConfirmTransactionParams{
		TypeOf:  domain.TransactionTypeReserve,
		ID:      "tx-1",
		Result:  &domain.ReserveResult{ReservationNumber: "001-240501-000001", Price: 1800, PriceCurrency: "JPY"},
		EndDate: now,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionStatusConfirmed, tx.Status)
	result, ok := tx.Result.(*domain.ReserveResult)
	require.True(t, ok)
	assert.Equal(t, 1800, result.Price)

	actions, ok := tx.PotentialActions.(*domain.ReservePotentialActions)
	require.True(t, ok)
	require.Len(t, actions.Reserve, 1)
	assert.Equal(t, "001-240501-000001-0", actions.Reserve[0].Object.ID)
}

func TestPostgresTransactionRepository_ConfirmFallback(t *testing.T) {
	tests := []struct {
		name       string
		current    domain.TransactionStatus
		missing    bool
		wantErr    error
		wantStatus domain.TransactionStatus
	}{
		{name: "already confirmed returns document", current: domain.TransactionStatusConfirmed, wantStatus: domain.TransactionStatusConfirmed},
		{name: "expired", current: domain.TransactionStatusExpired, wantErr: domain.ErrTransactionAlreadyExpired},
		{name: "canceled", current: domain.TransactionStatusCanceled, wantErr: domain.ErrTransactionAlreadyCanceled},
		{name: "missing", missing: true, wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			repo := NewPostgresTransactionRepository(mock)
			now := time.Now()

			mock.ExpectQuery("SET status = 'Confirmed'").
				WithArgs("tx-1", "Reserve", now, pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnError(pgx.ErrNoRows)
			find := mock.ExpectQuery("FROM transactions WHERE id").WithArgs("tx-1", "Reserve")
			if tt.missing {
				find.WillReturnError(pgx.ErrNoRows)
			} else {
				find.WillReturnRows(reserveTransactionRows(t, "tx-1", tt.current, now))
			}

			tx, err := repo.Confirm(context.Background(), ConfirmTransactionParams{
				TypeOf:  domain.TransactionTypeReserve,
				ID:      "tx-1",
				EndDate: now,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, tx)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, tx.Status)
		})
	}
}

func TestPostgresTransactionRepository_CancelFallback(t *testing.T) {
	tests := []struct {
		name    string
		current domain.TransactionStatus
		wantErr error
	}{
		{name: "already canceled returns document", current: domain.TransactionStatusCanceled},
		{name: "confirmed", current: domain.TransactionStatusConfirmed, wantErr: domain.ErrTransactionAlreadyConfirmed},
		{name: "expired", current: domain.TransactionStatusExpired, wantErr: domain.ErrTransactionAlreadyExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			repo := NewPostgresTransactionRepository(mock)
			now := time.Now()

			mock.ExpectQuery("SET status = 'Canceled'").
				WithArgs("tx-1", "Reserve", now).
				WillReturnError(pgx.ErrNoRows)
			mock.ExpectQuery("FROM transactions WHERE id").
				WithArgs("tx-1", "Reserve").
				WillReturnRows(reserveTransactionRows(t, "tx-1", tt.current, now))

			tx, err := repo.Cancel(context.Background(), CancelTransactionParams{
				TypeOf:  domain.TransactionTypeReserve,
				ID:      "tx-1",
				EndDate: now,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.TransactionStatusCanceled, tx.Status)
		})
	}
}

func TestPostgresTransactionRepository_ExpireBefore(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPostgresTransactionRepository(mock)
	now := time.Now()

	mock.ExpectExec("SET status = 'Expired'").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.ExpireBefore(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPostgresTransactionRepository_ClaimForExport(t *testing.T) {
	t.Run("claims one", func(t *testing.T) {
		mock := newMockPool(t)
		repo := NewPostgresTransactionRepository(mock)
		now := time.Now()

		mock.ExpectQuery("SET tasks_exportation_status = 'Exporting', updated_at = \\$3.*FOR UPDATE SKIP LOCKED").
			WithArgs("Reserve", "Confirmed", now).
			WillReturnRows(reserveTransactionRows(t, "tx-1", domain.TransactionStatusConfirmed, now))

		tx, err := repo.ClaimForExport(context.Background(), domain.TransactionTypeReserve, domain.TransactionStatusConfirmed, now)
		require.NoError(t, err)
		require.NotNil(t, tx)
		assert.Equal(t, "tx-1", tx.ID)
	})

	t.Run("none available", func(t *testing.T) {
		mock := newMockPool(t)
		repo := NewPostgresTransactionRepository(mock)
		now := time.Now()

		mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
			WithArgs("Reserve", "Expired", now).
			WillReturnError(pgx.ErrNoRows)

		tx, err := repo.ClaimForExport(context.Background(), domain.TransactionTypeReserve, domain.TransactionStatusExpired, now)
		require.NoError(t, err)
		assert.Nil(t, tx)
	})
}

func TestPostgresTransactionRepository_SetTasksExported(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPostgresTransactionRepository(mock)
	now := time.Now()

	mock.ExpectExec("SET tasks_exportation_status = 'Exported'").
		WithArgs("tx-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("SET tasks_exportation_status = 'Exported'").
		WithArgs("tx-2", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.SetTasksExported(context.Background(), "tx-1", now))
	assert.True(t, domain.IsNotFoundError(repo.SetTasksExported(context.Background(), "tx-2", now)))
}

func TestPostgresTransactionRepository_ReexportStale(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPostgresTransactionRepository(mock)
	now := time.Now()
	cutoff := now.Add(-time.Hour)

	mock.ExpectExec("SET tasks_exportation_status = 'Unexported', updated_at = \\$2").
		WithArgs(cutoff, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := repo.ReexportStale(context.Background(), cutoff, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
