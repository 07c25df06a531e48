package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/internal/repository"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReserveService performs the per-reservation side effects of terminal transactions
type ReserveService interface {
	// ConfirmReservation confirms each reservation; cancelled reservations are refused
	ConfirmReservation(ctx context.Context, actions []domain.ReserveActionAttributes) error

	// CancelPendingReservation cancels reservations that were never confirmed and releases their seats
	CancelPendingReservation(ctx context.Context, actions []domain.CancelActionAttributes) error

	// CancelReservation cancels reservations regardless of status and releases their seats
	CancelReservation(ctx context.Context, actions []domain.CancelActionAttributes) error

	// CheckIn marks a reservation checked in
	CheckIn(ctx context.Context, id string) (*domain.Reservation, error)

	// Attend marks a reservation attended
	Attend(ctx context.Context, id string) (*domain.Reservation, error)
}

type reserveService struct {
	reservationRepo repository.ReservationRepository
	actionRepo      repository.ActionRepository
	seatLockRepo    repository.SeatLockRepository
	now             func() time.Time
}

// NewReserveService creates a new reserve service
func NewReserveService(
	reservationRepo repository.ReservationRepository,
	actionRepo repository.ActionRepository,
	seatLockRepo repository.SeatLockRepository,
) ReserveService {
	return &reserveService{
		reservationRepo: reservationRepo,
		actionRepo:      actionRepo,
		seatLockRepo:    seatLockRepo,
		now:             time.Now,
	}
}

// ConfirmReservation confirms reservations concurrently
func (s *reserveService) ConfirmReservation(ctx context.Context, actions []domain.ReserveActionAttributes) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reserve.confirm_reservation")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.Int("actions", len(actions)))

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range actions {
		g.Go(func() error {
			action := s.newAction(a.TypeOf, a.Agent, a.Object, a.Purpose)
			return s.run(gctx, action, func(ctx context.Context) error {
				_, err := s.reservationRepo.Confirm(ctx, a.Object.ID, s.now())
				return err
			})
		})
	}
	return g.Wait()
}

// CancelPendingReservation leaves confirmed reservations and their seats untouched
func (s *reserveService) CancelPendingReservation(ctx context.Context, actions []domain.CancelActionAttributes) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reserve.cancel_pending_reservation")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.Int("actions", len(actions)))

	return s.cancelAll(ctx, actions, func(ctx context.Context, a domain.CancelActionAttributes) error {
		res, err := s.reservationRepo.FindByID(ctx, a.Object.ID)
		switch {
		case domain.IsNotFoundError(err):
			// Start locked the seat but never persisted the reservation
			return s.unlock(ctx, a)
		case err != nil:
			return err
		case res.ReservationStatus == domain.ReservationStatusConfirmed:
			return nil
		}

		if _, err := s.reservationRepo.Cancel(ctx, a.Object.ID, s.now()); err != nil {
			return err
		}
		return s.unlock(ctx, a)
	})
}

// CancelReservation cancels reservations and releases seats still held by the reserve transaction
func (s *reserveService) CancelReservation(ctx context.Context, actions []domain.CancelActionAttributes) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reserve.cancel_reservation")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.Int("actions", len(actions)))

	return s.cancelAll(ctx, actions, func(ctx context.Context, a domain.CancelActionAttributes) error {
		if _, err := s.reservationRepo.Cancel(ctx, a.Object.ID, s.now()); err != nil {
			return err
		}
		return s.unlock(ctx, a)
	})
}

// CheckIn sets the checkedIn flag
func (s *reserveService) CheckIn(ctx context.Context, id string) (*domain.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reserve.check_in")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", id))
	return s.reservationRepo.CheckIn(ctx, id, s.now())
}

// Attend sets the attended flag
func (s *reserveService) Attend(ctx context.Context, id string) (*domain.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reserve.attend")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", id))
	return s.reservationRepo.Attend(ctx, id, s.now())
}

func (s *reserveService) cancelAll(ctx context.Context, actions []domain.CancelActionAttributes, cancel func(context.Context, domain.CancelActionAttributes) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range actions {
		g.Go(func() error {
			action := s.newAction(a.TypeOf, a.Agent, a.Object, a.Purpose)
			return s.run(gctx, action, func(ctx context.Context) error {
				return cancel(ctx, a)
			})
		})
	}
	return g.Wait()
}

func (s *reserveService) unlock(ctx context.Context, a domain.CancelActionAttributes) error {
	if a.SeatHolder == "" {
		return nil
	}
	released, err := s.seatLockRepo.Unlock(ctx, a.Object.EventID, a.Object.TicketedSeat, a.SeatHolder)
	if err != nil {
		return err
	}
	if !released {
		logger.Get().Debug("seat lock not held by holder",
			zap.String("event_id", a.Object.EventID),
			zap.String("seat", a.Object.TicketedSeat.String()),
			zap.String("holder", a.SeatHolder),
		)
	}
	return nil
}

func (s *reserveService) newAction(typeOf domain.ActionType, agent domain.Agent, object domain.ReservationRef, purpose domain.TransactionRef) *domain.Action {
	return &domain.Action{
		ID:        uuid.New().String(),
		TypeOf:    typeOf,
		Agent:     agent,
		Object:    object,
		Purpose:   purpose,
		StartDate: s.now(),
	}
}

// run records the action around fn: started before, completed or given up after
func (s *reserveService) run(ctx context.Context, action *domain.Action, fn func(context.Context) error) error {
	if err := s.actionRepo.Start(ctx, action); err != nil {
		return fmt.Errorf("failed to start %s: %w", action.TypeOf, err)
	}

	if err := fn(ctx); err != nil {
		if giveUpErr := s.actionRepo.GiveUp(ctx, action.ID, err, s.now()); giveUpErr != nil {
			logger.Get().ErrorContext(ctx, "failed to give up action",
				zap.String("action_id", action.ID),
				zap.Error(giveUpErr),
			)
		}
		return err
	}

	return s.actionRepo.Complete(ctx, action.ID, s.now())
}
