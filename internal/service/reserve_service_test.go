package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReserveService(reservations *MockReservationRepository, actions *MockActionRepository, seatLocks *MockSeatLockRepository) *reserveService {
	svc := NewReserveService(reservations, actions, seatLocks).(*reserveService)
	svc.now = func() time.Time { return testNow }
	return svc
}

func cancelActions(holder string, ids ...string) []domain.CancelActionAttributes {
	var actions []domain.CancelActionAttributes
	for i, id := range ids {
		actions = append(actions, domain.CancelActionAttributes{
			TypeOf: domain.ActionTypeCancel,
			Object: domain.ReservationRef{
				ID:           id,
				EventID:      "event-1",
				TicketedSeat: domain.Seat{SeatSection: "A", SeatNumber: string(rune('1' + i))},
			},
			Purpose:    domain.TransactionRef{TypeOf: domain.TransactionTypeReserve, ID: holder},
			SeatHolder: holder,
		})
	}
	return actions
}

func TestReserveService_ConfirmReservation(t *testing.T) {
	var mu sync.Mutex
	var confirmed []string
	reservations := &MockReservationRepository{
		ConfirmFunc: func(ctx context.Context, id string, at time.Time) (*domain.Reservation, error) {
			mu.Lock()
			defer mu.Unlock()
			confirmed = append(confirmed, id)
			return &domain.Reservation{ID: id, ReservationStatus: domain.ReservationStatusConfirmed}, nil
		},
	}
	actions := &MockActionRepository{}
	svc := newTestReserveService(reservations, actions, &MockSeatLockRepository{})

	err := svc.ConfirmReservation(context.Background(), []domain.ReserveActionAttributes{
		{TypeOf: domain.ActionTypeReserve, Object: domain.ReservationRef{ID: "r-0"}},
		{TypeOf: domain.ActionTypeReserve, Object: domain.ReservationRef{ID: "r-1"}},
	})
	require.NoError(t, err)

	sort.Strings(confirmed)
	assert.Equal(t, []string{"r-0", "r-1"}, confirmed)
	assert.Len(t, actions.Started, 2)
	assert.Len(t, actions.Completed, 2)
	assert.Empty(t, actions.GivenUp)
}

func TestReserveService_ConfirmReservation_GivesUpOnFailure(t *testing.T) {
	reservations := &MockReservationRepository{
		ConfirmFunc: func(ctx context.Context, id string, at time.Time) (*domain.Reservation, error) {
			return nil, domain.NewArgumentError("reservation", "Reservation r-0 already cancelled")
		},
	}
	actions := &MockActionRepository{}
	svc := newTestReserveService(reservations, actions, &MockSeatLockRepository{})

	err := svc.ConfirmReservation(context.Background(), []domain.ReserveActionAttributes{
		{TypeOf: domain.ActionTypeReserve, Object: domain.ReservationRef{ID: "r-0"}},
	})
	assert.True(t, domain.IsArgumentError(err))

	require.Len(t, actions.Started, 1)
	assert.Empty(t, actions.Completed)
	assert.Equal(t, "Reservation r-0 already cancelled", actions.GivenUp[actions.Started[0].ID])
}

func TestReserveService_ConfirmReservation_ActionStartFails(t *testing.T) {
	called := false
	reservations := &MockReservationRepository{
		ConfirmFunc: func(ctx context.Context, id string, at time.Time) (*domain.Reservation, error) {
			called = true
			return nil, nil
		},
	}
	actions := &MockActionRepository{
		StartFunc: func(ctx context.Context, action *domain.Action) error {
			return errors.New("connection refused")
		},
	}
	svc := newTestReserveService(reservations, actions, &MockSeatLockRepository{})

	err := svc.ConfirmReservation(context.Background(), []domain.ReserveActionAttributes{
		{TypeOf: domain.ActionTypeReserve, Object: domain.ReservationRef{ID: "r-0"}},
	})
	assert.ErrorContains(t, err, "connection refused")
	assert.False(t, called)
}

func TestReserveService_CancelPendingReservation(t *testing.T) {
	seatLocks := &MockSeatLockRepository{}
	actions := cancelActions("tx-1", "r-0", "r-1", "r-2")
	for _, a := range actions {
		require.NoError(t, seatLocks.Lock(context.Background(), "event-1", []domain.Seat{a.Object.TicketedSeat}, "tx-1", testNow.Add(time.Hour)))
	}

	var mu sync.Mutex
	var canceled []string
	reservations := &MockReservationRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Reservation, error) {
			switch id {
			case "r-0":
				return &domain.Reservation{ID: id, ReservationStatus: domain.ReservationStatusPending}, nil
			case "r-1":
				return &domain.Reservation{ID: id, ReservationStatus: domain.ReservationStatusConfirmed}, nil
			default:
				return nil, domain.NewNotFoundError("reservation")
			}
		},
		CancelFunc: func(ctx context.Context, id string, at time.Time) (*domain.Reservation, error) {
			mu.Lock()
			defer mu.Unlock()
			canceled = append(canceled, id)
			return &domain.Reservation{ID: id, ReservationStatus: domain.ReservationStatusCancelled}, nil
		},
	}
	svc := newTestReserveService(reservations, &MockActionRepository{}, seatLocks)

	require.NoError(t, svc.CancelPendingReservation(context.Background(), actions))

	assert.Equal(t, []string{"r-0"}, canceled)

	holder, _ := seatLocks.GetHolder(context.Background(), "event-1", actions[0].Object.TicketedSeat)
	assert.Empty(t, holder, "pending reservation seat released")
	holder, _ = seatLocks.GetHolder(context.Background(), "event-1", actions[1].Object.TicketedSeat)
	assert.Equal(t, "tx-1", holder, "confirmed reservation keeps its seat")
	holder, _ = seatLocks.GetHolder(context.Background(), "event-1", actions[2].Object.TicketedSeat)
	assert.Empty(t, holder, "seat locked without a reservation is released")
}

func TestReserveService_CancelReservation_OnlyReleasesOwnHold(t *testing.T) {
	seatLocks := &MockSeatLockRepository{}
	actions := cancelActions("tx-1", "r-0")
	require.NoError(t, seatLocks.Lock(context.Background(), "event-1", []domain.Seat{actions[0].Object.TicketedSeat}, "tx-2", testNow.Add(time.Hour)))

	actionRepo := &MockActionRepository{}
	svc := newTestReserveService(&MockReservationRepository{}, actionRepo, seatLocks)

	require.NoError(t, svc.CancelReservation(context.Background(), actions))

	holder, _ := seatLocks.GetHolder(context.Background(), "event-1", actions[0].Object.TicketedSeat)
	assert.Equal(t, "tx-2", holder)
	assert.Len(t, actionRepo.Completed, 1)
}

func TestReserveService_CancelReservation_UnlockError(t *testing.T) {
	seatLocks := &MockSeatLockRepository{
		UnlockFunc: func(ctx context.Context, eventID string, seat domain.Seat, holder string) (bool, error) {
			return false, domain.NewServiceUnavailableError("redis unavailable")
		},
	}
	actionRepo := &MockActionRepository{}
	svc := newTestReserveService(&MockReservationRepository{}, actionRepo, seatLocks)

	err := svc.CancelReservation(context.Background(), cancelActions("tx-1", "r-0"))
	assert.True(t, domain.IsServiceUnavailableError(err))
	assert.Len(t, actionRepo.GivenUp, 1)
}

func TestReserveService_CheckInAndAttend(t *testing.T) {
	var checkedAt time.Time
	reservations := &MockReservationRepository{
		CheckInFunc: func(ctx context.Context, id string, at time.Time) (*domain.Reservation, error) {
			checkedAt = at
			return &domain.Reservation{ID: id, CheckedIn: true}, nil
		},
	}
	svc := newTestReserveService(reservations, &MockActionRepository{}, &MockSeatLockRepository{})

	res, err := svc.CheckIn(context.Background(), "r-0")
	require.NoError(t, err)
	assert.True(t, res.CheckedIn)
	assert.Equal(t, testNow, checkedAt)

	res, err = svc.Attend(context.Background(), "r-0")
	require.NoError(t, err)
	assert.True(t, res.Attended)
}
