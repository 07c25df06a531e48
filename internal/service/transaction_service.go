package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/internal/dto"
	"github.com/prohmpiriya/booking-rush-reservation/internal/metrics"
	"github.com/prohmpiriya/booking-rush-reservation/internal/repository"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TransactionService drives transactions through their lifecycle
type TransactionService interface {
	// StartReserve locks the requested seats and persists an InProgress Reserve transaction
	StartReserve(ctx context.Context, req *dto.StartReserveRequest) (*domain.Transaction, error)

	// StartCancelReservation persists an InProgress CancelReservation transaction for a confirmed Reserve transaction
	StartCancelReservation(ctx context.Context, req *dto.StartCancelReservationRequest) (*domain.Transaction, error)

	// Confirm moves an InProgress transaction to Confirmed; confirming twice returns the stored transaction
	Confirm(ctx context.Context, typeOf domain.TransactionType, id string) (*domain.Transaction, error)

	// Cancel moves an InProgress transaction to Canceled; cancelling twice returns the stored transaction
	Cancel(ctx context.Context, typeOf domain.TransactionType, id string) (*domain.Transaction, error)

	// Expire moves every InProgress transaction whose expires is before deadline to Expired
	Expire(ctx context.Context, deadline time.Time) (int64, error)

	// ExportTasks claims one terminal transaction and materializes its tasks; nil when none is waiting
	ExportTasks(ctx context.Context, typeOf domain.TransactionType, status domain.TransactionStatus) (*domain.Transaction, error)

	// ExportTasksByID materializes the tasks of a terminal transaction
	ExportTasksByID(ctx context.Context, typeOf domain.TransactionType, id string) ([]*domain.Task, error)

	// ReexportTasks returns exports stuck for longer than interval to Unexported
	ReexportTasks(ctx context.Context, interval time.Duration) (int64, error)

	// FindByID retrieves a transaction of the given type
	FindByID(ctx context.Context, typeOf domain.TransactionType, id string) (*domain.Transaction, error)
}

// TransactionServiceConfig contains configuration for the transaction service
type TransactionServiceConfig struct {
	DefaultExpiresIn       time.Duration
	RemainingNumberOfTries int
}

type transactionService struct {
	transactionRepo       repository.TransactionRepository
	reservationRepo       repository.ReservationRepository
	eventRepo             repository.EventRepository
	taskRepo              repository.TaskRepository
	seatLockRepo          repository.SeatLockRepository
	reservationNumberRepo repository.ReservationNumberRepository
	reserveService        ReserveService
	defaultExpiresIn      time.Duration
	remainingTries        int
	now                   func() time.Time
}

// NewTransactionService creates a new transaction service
func NewTransactionService(
	transactionRepo repository.TransactionRepository,
	reservationRepo repository.ReservationRepository,
	eventRepo repository.EventRepository,
	taskRepo repository.TaskRepository,
	seatLockRepo repository.SeatLockRepository,
	reservationNumberRepo repository.ReservationNumberRepository,
	reserveService ReserveService,
	cfg *TransactionServiceConfig,
) TransactionService {
	expiresIn := 15 * time.Minute
	tries := domain.DefaultRemainingNumberOfTries
	if cfg != nil {
		if cfg.DefaultExpiresIn > 0 {
			expiresIn = cfg.DefaultExpiresIn
		}
		if cfg.RemainingNumberOfTries > 0 {
			tries = cfg.RemainingNumberOfTries
		}
	}
	return &transactionService{
		transactionRepo:       transactionRepo,
		reservationRepo:       reservationRepo,
		eventRepo:             eventRepo,
		taskRepo:              taskRepo,
		seatLockRepo:          seatLockRepo,
		reservationNumberRepo: reservationNumberRepo,
		reserveService:        reserveService,
		defaultExpiresIn:      expiresIn,
		remainingTries:        tries,
		now:                   time.Now,
	}
}

// StartReserve validates the request, locks seats all-or-nothing, then persists reservations and the transaction
func (s *transactionService) StartReserve(ctx context.Context, req *dto.StartReserveRequest) (tx *domain.Transaction, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.transaction.start_reserve")
	defer func() { telemetry.EndSpan(span, err) }()

	if req == nil || len(req.AcceptedOffers) == 0 {
		return nil, domain.NewArgumentError("acceptedOffers", "At least one accepted offer is required")
	}
	if req.Agent.ID == "" {
		return nil, domain.NewArgumentError("agent", "Agent id is required")
	}
	txID, err := s.transactionID(req.TransactionID)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("transaction_id", txID),
		attribute.String("event_id", req.EventID),
		attribute.Int("seats", len(req.AcceptedOffers)),
	)

	seats := make([]domain.Seat, 0, len(req.AcceptedOffers))
	seen := make(map[domain.Seat]struct{}, len(req.AcceptedOffers))
	for _, offer := range req.AcceptedOffers {
		seat := offer.Seat()
		if _, dup := seen[seat]; dup {
			return nil, domain.NewArgumentError("acceptedOffers", fmt.Sprintf("Seat %s requested twice", seat))
		}
		seen[seat] = struct{}{}
		seats = append(seats, seat)
	}

	now := s.now()

	event, err := s.eventRepo.FindEventByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !now.Before(event.EndDate) {
		return nil, domain.NewArgumentError("event", fmt.Sprintf("Event %s already ended", event.ID))
	}

	offers, err := s.eventRepo.SearchTicketOffers(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	offersByID := make(map[string]*domain.TicketOffer, len(offers))
	for _, o := range offers {
		offersByID[o.ID] = o
	}

	accepted := make([]*domain.TicketOffer, 0, len(req.AcceptedOffers))
	for _, a := range req.AcceptedOffers {
		offer, ok := offersByID[a.TicketOfferID]
		if !ok {
			return nil, domain.NewNotFoundError("ticket offer")
		}
		if !offer.AvailableAt(now) {
			return nil, domain.NewArgumentError("ticket offer", fmt.Sprintf("Ticket offer %s not available", offer.ID))
		}
		accepted = append(accepted, offer)
	}

	reservationNumber, err := s.reservationNumberRepo.Publish(ctx, now, event.Seller.BranchCode)
	if err != nil {
		return nil, err
	}

	agent := req.Agent.ToDomain()
	reservations := make([]domain.Reservation, 0, len(accepted))
	for i, offer := range accepted {
		price := offer.Price()
		reservations = append(reservations, domain.Reservation{
			ID:                domain.ReservationID(reservationNumber, i),
			ReservationNumber: reservationNumber,
			ReservationFor:    *event,
			ReservedTicket: domain.Ticket{
				TicketedSeat:  seats[i],
				TicketType:    offer.TicketType,
				TicketOfferID: offer.ID,
				TotalPrice:    price,
				PriceCurrency: offer.PriceCurrency,
				DateIssued:    now,
			},
			UnderName:         agent,
			Price:             price,
			PriceCurrency:     offer.PriceCurrency,
			ReservationStatus: domain.ReservationStatusPending,
			BookingTime:       now,
			ModifiedTime:      now,
		})
	}

	if err := s.seatLockRepo.Lock(ctx, event.ID, seats, txID, event.EndDate); err != nil {
		if domain.IsConflictError(err) {
			metrics.RecordSeatConflict(ctx, event.ID)
		}
		return nil, err
	}

	// Locks are held from here on; their TTL bounds any leak below
	if err := s.reservationRepo.CreateMany(ctx, reservations); err != nil {
		return nil, err
	}

	tx = &domain.Transaction{
		ID:     txID,
		TypeOf: domain.TransactionTypeReserve,
		Status: domain.TransactionStatusInProgress,
		Agent:  agent,
		Object: &domain.ReserveObject{
			Event:             *event,
			ReservationNumber: reservationNumber,
			Reservations:      reservations,
			Notes:             req.Notes,
		},
		Expires:                now.Add(s.expiresIn(req.ExpiresInSeconds)),
		StartDate:              now,
		TasksExportationStatus: domain.TasksExportationStatusUnexported,
		UpdatedAt:              now,
	}
	if err := s.transactionRepo.Create(ctx, tx); err != nil {
		return nil, err
	}

	metrics.RecordTransactionStarted(ctx, tx.TypeOf.String(), event.ID, len(seats))
	return tx, nil
}

// StartCancelReservation snapshots the reservations of a confirmed Reserve transaction
func (s *transactionService) StartCancelReservation(ctx context.Context, req *dto.StartCancelReservationRequest) (tx *domain.Transaction, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.transaction.start_cancel_reservation")
	defer func() { telemetry.EndSpan(span, err) }()

	if req == nil || req.ReserveTransactionID == "" {
		return nil, domain.NewArgumentError("transaction", "Reserve transaction id is required")
	}
	if req.Agent.ID == "" {
		return nil, domain.NewArgumentError("agent", "Agent id is required")
	}
	txID, err := s.transactionID(req.TransactionID)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("transaction_id", txID),
		attribute.String("reserve_transaction_id", req.ReserveTransactionID),
	)

	reserve, err := s.transactionRepo.FindByID(ctx, domain.TransactionTypeReserve, req.ReserveTransactionID)
	if err != nil {
		return nil, err
	}
	if reserve.Status != domain.TransactionStatusConfirmed {
		return nil, domain.NewArgumentError("transaction",
			fmt.Sprintf("Reserve transaction %s is %s, not Confirmed", reserve.ID, reserve.Status))
	}
	object, ok := reserve.Object.(*domain.ReserveObject)
	if !ok {
		return nil, domain.NewNotImplementedError(fmt.Sprintf("object of %s transaction not supported", reserve.TypeOf))
	}

	now := s.now()
	tx = &domain.Transaction{
		ID:     txID,
		TypeOf: domain.TransactionTypeCancelReservation,
		Status: domain.TransactionStatusInProgress,
		Agent:  req.Agent.ToDomain(),
		Object: &domain.CancelReservationObject{
			Transaction:  reserve.Ref(),
			Reservations: object.Reservations,
		},
		Expires:                now.Add(s.expiresIn(req.ExpiresInSeconds)),
		StartDate:              now,
		TasksExportationStatus: domain.TasksExportationStatusUnexported,
		UpdatedAt:              now,
	}
	if err := s.transactionRepo.Create(ctx, tx); err != nil {
		return nil, err
	}

	metrics.RecordTransactionStarted(ctx, tx.TypeOf.String(), object.Event.ID, len(object.Reservations))
	return tx, nil
}

// Confirm stores the result and potential actions under the InProgress guard
func (s *transactionService) Confirm(ctx context.Context, typeOf domain.TransactionType, id string) (tx *domain.Transaction, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.transaction.confirm")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(
		attribute.String("transaction_id", id),
		attribute.String("type_of", typeOf.String()),
	)

	current, err := s.transactionRepo.FindByID(ctx, typeOf, id)
	if err != nil {
		return nil, err
	}

	params := repository.ConfirmTransactionParams{
		TypeOf:  typeOf,
		ID:      id,
		EndDate: s.now().Truncate(time.Microsecond),
	}

	switch object := current.Object.(type) {
	case *domain.ReserveObject:
		result := &domain.ReserveResult{ReservationNumber: object.ReservationNumber}
		actions := &domain.ReservePotentialActions{Reserve: make([]domain.ReserveActionAttributes, 0, len(object.Reservations))}
		for i := range object.Reservations {
			res := &object.Reservations[i]
			result.Price += res.Price
			result.PriceCurrency = res.PriceCurrency
			actions.Reserve = append(actions.Reserve, domain.ReserveActionAttributes{
				TypeOf:  domain.ActionTypeReserve,
				Agent:   current.Agent,
				Object:  res.Ref(),
				Purpose: current.Ref(),
			})
		}
		params.Result = result
		params.PotentialActions = actions
	case *domain.CancelReservationObject:
		result := &domain.CancelReservationResult{CanceledReservationIDs: make([]string, 0, len(object.Reservations))}
		actions := &domain.CancelReservationPotentialActions{}
		for i := range object.Reservations {
			res := &object.Reservations[i]
			result.CanceledReservationIDs = append(result.CanceledReservationIDs, res.ID)
			actions.CancelReservation = append(actions.CancelReservation, domain.CancelActionAttributes{
				TypeOf:     domain.ActionTypeCancel,
				Agent:      current.Agent,
				Object:     res.Ref(),
				Purpose:    current.Ref(),
				SeatHolder: object.Transaction.ID,
			})
		}
		params.Result = result
		params.PotentialActions = actions
	default:
		return nil, domain.NewNotImplementedError(fmt.Sprintf("confirming %s transactions not implemented", typeOf))
	}

	tx, err = s.transactionRepo.Confirm(ctx, params)
	if err != nil {
		return nil, err
	}

	if tx.EndDate != nil && tx.EndDate.Equal(params.EndDate) {
		metrics.RecordTransactionConfirmed(ctx, typeOf.String())
	}
	return tx, nil
}

// Cancel cancels under the InProgress guard, then releases a Reserve transaction's seats in-process.
// The task path repeats the release, so the inline error is only logged.
func (s *transactionService) Cancel(ctx context.Context, typeOf domain.TransactionType, id string) (tx *domain.Transaction, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.transaction.cancel")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(
		attribute.String("transaction_id", id),
		attribute.String("type_of", typeOf.String()),
	)

	endDate := s.now().Truncate(time.Microsecond)
	tx, err = s.transactionRepo.Cancel(ctx, repository.CancelTransactionParams{
		TypeOf:  typeOf,
		ID:      id,
		EndDate: endDate,
	})
	if err != nil {
		return nil, err
	}

	if tx.EndDate != nil && tx.EndDate.Equal(endDate) {
		metrics.RecordTransactionCanceled(ctx, typeOf.String())
	}

	if object, ok := tx.Object.(*domain.ReserveObject); ok {
		if err := s.reserveService.CancelPendingReservation(ctx, pendingCancelActions(tx, object)); err != nil {
			logger.Get().WarnContext(ctx, "inline pending reservation cancel failed",
				zap.String("transaction_id", tx.ID),
				zap.Error(err),
			)
		}
	}

	return tx, nil
}

// Expire bulk-expires overdue transactions
func (s *transactionService) Expire(ctx context.Context, deadline time.Time) (n int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.transaction.expire")
	defer func() { telemetry.EndSpan(span, err) }()

	n, err = s.transactionRepo.ExpireBefore(ctx, deadline)
	if err != nil {
		return 0, err
	}

	metrics.RecordTransactionsExpired(ctx, n)
	return n, nil
}

// ExportTasks leaves the transaction Exporting on failure so the reexport sweep can retry it
func (s *transactionService) ExportTasks(ctx context.Context, typeOf domain.TransactionType, status domain.TransactionStatus) (tx *domain.Transaction, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.transaction.export_tasks")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(
		attribute.String("type_of", typeOf.String()),
		attribute.String("status", status.String()),
	)

	now := s.now()
	tx, err = s.transactionRepo.ClaimForExport(ctx, typeOf, status, now)
	if err != nil || tx == nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("transaction_id", tx.ID))

	if _, err := s.exportTasks(ctx, tx); err != nil {
		return nil, err
	}
	if err := s.transactionRepo.SetTasksExported(ctx, tx.ID, s.now()); err != nil {
		return nil, err
	}
	return tx, nil
}

// ExportTasksByID loads a transaction and materializes its tasks
func (s *transactionService) ExportTasksByID(ctx context.Context, typeOf domain.TransactionType, id string) (tasks []*domain.Task, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.transaction.export_tasks_by_id")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.String("transaction_id", id))

	tx, err := s.transactionRepo.FindByID(ctx, typeOf, id)
	if err != nil {
		return nil, err
	}
	return s.exportTasks(ctx, tx)
}

// ReexportTasks resets exports untouched for interval
func (s *transactionService) ReexportTasks(ctx context.Context, interval time.Duration) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.transaction.reexport_tasks")
	defer span.End()

	now := s.now()
	return s.transactionRepo.ReexportStale(ctx, now.Add(-interval), now)
}

// FindByID retrieves a transaction of the given type
func (s *transactionService) FindByID(ctx context.Context, typeOf domain.TransactionType, id string) (*domain.Transaction, error) {
	return s.transactionRepo.FindByID(ctx, typeOf, id)
}

// exportTasks builds the tasks for a terminal transaction. Task ids derive from the
// transaction id and task name, so exporting the same transaction again creates nothing new.
func (s *transactionService) exportTasks(ctx context.Context, tx *domain.Transaction) ([]*domain.Task, error) {
	var (
		name domain.TaskName
		data interface{}
	)

	switch object := tx.Object.(type) {
	case *domain.ReserveObject:
		switch tx.Status {
		case domain.TransactionStatusConfirmed:
			actions, ok := tx.PotentialActions.(*domain.ReservePotentialActions)
			if !ok {
				return nil, domain.NewNotFoundError("potential actions")
			}
			name = domain.TaskNameConfirmReservation
			data = domain.ConfirmReservationTaskData{ActionAttributes: actions.Reserve}
		case domain.TransactionStatusCanceled, domain.TransactionStatusExpired:
			name = domain.TaskNameCancelPendingReservation
			data = domain.CancelReservationTaskData{ActionAttributes: pendingCancelActions(tx, object)}
		default:
			return nil, domain.NewNotImplementedError(fmt.Sprintf("transaction status %s not implemented", tx.Status))
		}
	case *domain.CancelReservationObject:
		switch tx.Status {
		case domain.TransactionStatusConfirmed:
			actions, ok := tx.PotentialActions.(*domain.CancelReservationPotentialActions)
			if !ok {
				return nil, domain.NewNotFoundError("potential actions")
			}
			name = domain.TaskNameCancelReservation
			data = domain.CancelReservationTaskData{ActionAttributes: actions.CancelReservation}
		case domain.TransactionStatusCanceled, domain.TransactionStatusExpired:
			return []*domain.Task{}, nil
		default:
			return nil, domain.NewNotImplementedError(fmt.Sprintf("transaction status %s not implemented", tx.Status))
		}
	default:
		return nil, domain.NewNotImplementedError(fmt.Sprintf("transaction type %s not implemented", tx.TypeOf))
	}

	taskID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(tx.ID+":"+name.String())).String()
	task, err := domain.NewTask(taskID, name, data, s.now(), s.remainingTries)
	if err != nil {
		return nil, err
	}

	tasks := []*domain.Task{task}
	if err := s.taskRepo.CreateMany(ctx, tasks); err != nil {
		return nil, err
	}

	metrics.RecordTasksExported(ctx, tx.TypeOf.String(), len(tasks))
	logger.Get().Info(fmt.Sprintf("Exported %s task for %s transaction %s", name, tx.Status, tx.ID))
	return tasks, nil
}

func (s *transactionService) transactionID(requested string) (string, error) {
	if requested == "" {
		return uuid.New().String(), nil
	}
	if _, err := uuid.Parse(requested); err != nil {
		return "", domain.NewArgumentError("transaction", "Transaction id must be a UUID")
	}
	return requested, nil
}

func (s *transactionService) expiresIn(seconds int) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return s.defaultExpiresIn
}

// pendingCancelActions describes releasing every reservation of a Reserve transaction.
// The transaction itself holds the seat locks.
func pendingCancelActions(tx *domain.Transaction, object *domain.ReserveObject) []domain.CancelActionAttributes {
	actions := make([]domain.CancelActionAttributes, 0, len(object.Reservations))
	for i := range object.Reservations {
		actions = append(actions, domain.CancelActionAttributes{
			TypeOf:     domain.ActionTypeCancel,
			Agent:      tx.Agent,
			Object:     object.Reservations[i].Ref(),
			Purpose:    tx.Ref(),
			SeatHolder: tx.ID,
		})
	}
	return actions
}
