package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/internal/repository"
)

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	CreateFunc           func(ctx context.Context, tx *domain.Transaction) error
	FindByIDFunc         func(ctx context.Context, typeOf domain.TransactionType, id string) (*domain.Transaction, error)
	ConfirmFunc          func(ctx context.Context, params repository.ConfirmTransactionParams) (*domain.Transaction, error)
	CancelFunc           func(ctx context.Context, params repository.CancelTransactionParams) (*domain.Transaction, error)
	ExpireBeforeFunc     func(ctx context.Context, deadline time.Time) (int64, error)
	ClaimForExportFunc   func(ctx context.Context, typeOf domain.TransactionType, status domain.TransactionStatus, now time.Time) (*domain.Transaction, error)
	SetTasksExportedFunc func(ctx context.Context, id string, exportedAt time.Time) error
	ReexportStaleFunc    func(ctx context.Context, staleBefore, now time.Time) (int64, error)
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx)
	}
	return nil
}

func (m *MockTransactionRepository) FindByID(ctx context.Context, typeOf domain.TransactionType, id string) (*domain.Transaction, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, typeOf, id)
	}
	return nil, domain.NewNotFoundError("transaction")
}

func (m *MockTransactionRepository) Confirm(ctx context.Context, params repository.ConfirmTransactionParams) (*domain.Transaction, error) {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, params)
	}
	return nil, domain.NewNotFoundError("transaction")
}

func (m *MockTransactionRepository) Cancel(ctx context.Context, params repository.CancelTransactionParams) (*domain.Transaction, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, params)
	}
	return nil, domain.NewNotFoundError("transaction")
}

func (m *MockTransactionRepository) ExpireBefore(ctx context.Context, deadline time.Time) (int64, error) {
	if m.ExpireBeforeFunc != nil {
		return m.ExpireBeforeFunc(ctx, deadline)
	}
	return 0, nil
}

func (m *MockTransactionRepository) ClaimForExport(ctx context.Context, typeOf domain.TransactionType, status domain.TransactionStatus, now time.Time) (*domain.Transaction, error) {
	if m.ClaimForExportFunc != nil {
		return m.ClaimForExportFunc(ctx, typeOf, status, now)
	}
	return nil, nil
}

func (m *MockTransactionRepository) SetTasksExported(ctx context.Context, id string, exportedAt time.Time) error {
	if m.SetTasksExportedFunc != nil {
		return m.SetTasksExportedFunc(ctx, id, exportedAt)
	}
	return nil
}

func (m *MockTransactionRepository) ReexportStale(ctx context.Context, staleBefore, now time.Time) (int64, error) {
	if m.ReexportStaleFunc != nil {
		return m.ReexportStaleFunc(ctx, staleBefore, now)
	}
	return 0, nil
}

// MockReservationRepository is a mock implementation of ReservationRepository
type MockReservationRepository struct {
	CreateManyFunc func(ctx context.Context, reservations []domain.Reservation) error
	FindByIDFunc   func(ctx context.Context, id string) (*domain.Reservation, error)
	ConfirmFunc    func(ctx context.Context, id string, at time.Time) (*domain.Reservation, error)
	CancelFunc     func(ctx context.Context, id string, at time.Time) (*domain.Reservation, error)
	CheckInFunc    func(ctx context.Context, id string, at time.Time) (*domain.Reservation, error)
	AttendFunc     func(ctx context.Context, id string, at time.Time) (*domain.Reservation, error)
}

func (m *MockReservationRepository) CreateMany(ctx context.Context, reservations []domain.Reservation) error {
	if m.CreateManyFunc != nil {
		return m.CreateManyFunc(ctx, reservations)
	}
	return nil
}

func (m *MockReservationRepository) FindByID(ctx context.Context, id string) (*domain.Reservation, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, domain.NewNotFoundError("reservation")
}

func (m *MockReservationRepository) Confirm(ctx context.Context, id string, at time.Time) (*domain.Reservation, error) {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, id, at)
	}
	return &domain.Reservation{ID: id, ReservationStatus: domain.ReservationStatusConfirmed}, nil
}

func (m *MockReservationRepository) Cancel(ctx context.Context, id string, at time.Time) (*domain.Reservation, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, id, at)
	}
	return &domain.Reservation{ID: id, ReservationStatus: domain.ReservationStatusCancelled}, nil
}

func (m *MockReservationRepository) CheckIn(ctx context.Context, id string, at time.Time) (*domain.Reservation, error) {
	if m.CheckInFunc != nil {
		return m.CheckInFunc(ctx, id, at)
	}
	return &domain.Reservation{ID: id, CheckedIn: true}, nil
}

func (m *MockReservationRepository) Attend(ctx context.Context, id string, at time.Time) (*domain.Reservation, error) {
	if m.AttendFunc != nil {
		return m.AttendFunc(ctx, id, at)
	}
	return &domain.Reservation{ID: id, Attended: true}, nil
}

// MockEventRepository is a mock implementation of EventRepository
type MockEventRepository struct {
	FindEventByIDFunc      func(ctx context.Context, id string) (*domain.Event, error)
	SearchTicketOffersFunc func(ctx context.Context, eventID string) ([]*domain.TicketOffer, error)
}

func (m *MockEventRepository) FindEventByID(ctx context.Context, id string) (*domain.Event, error) {
	if m.FindEventByIDFunc != nil {
		return m.FindEventByIDFunc(ctx, id)
	}
	return nil, domain.NewNotFoundError("event")
}

func (m *MockEventRepository) SearchTicketOffers(ctx context.Context, eventID string) ([]*domain.TicketOffer, error) {
	if m.SearchTicketOffersFunc != nil {
		return m.SearchTicketOffersFunc(ctx, eventID)
	}
	return []*domain.TicketOffer{}, nil
}

func (m *MockEventRepository) SaveEvent(ctx context.Context, event *domain.Event) error {
	return nil
}

func (m *MockEventRepository) SaveTicketOffer(ctx context.Context, offer *domain.TicketOffer) error {
	return nil
}

// MockTaskRepository is a mock implementation of TaskRepository
type MockTaskRepository struct {
	CreateManyFunc          func(ctx context.Context, tasks []*domain.Task) error
	ClaimFunc               func(ctx context.Context, name domain.TaskName, now time.Time) (*domain.Task, error)
	PushExecutionResultFunc func(ctx context.Context, id string, result domain.TaskExecutionResult, executed bool) error
	RetryFunc               func(ctx context.Context, lastTriedBefore time.Time) (int64, error)
	AbortOneFunc            func(ctx context.Context, lastTriedBefore time.Time) (*domain.Task, error)
	FindByIDFunc            func(ctx context.Context, id string) (*domain.Task, error)
}

func (m *MockTaskRepository) CreateMany(ctx context.Context, tasks []*domain.Task) error {
	if m.CreateManyFunc != nil {
		return m.CreateManyFunc(ctx, tasks)
	}
	return nil
}

func (m *MockTaskRepository) Claim(ctx context.Context, name domain.TaskName, now time.Time) (*domain.Task, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, name, now)
	}
	return nil, nil
}

func (m *MockTaskRepository) PushExecutionResult(ctx context.Context, id string, result domain.TaskExecutionResult, executed bool) error {
	if m.PushExecutionResultFunc != nil {
		return m.PushExecutionResultFunc(ctx, id, result, executed)
	}
	return nil
}

func (m *MockTaskRepository) Retry(ctx context.Context, lastTriedBefore time.Time) (int64, error) {
	if m.RetryFunc != nil {
		return m.RetryFunc(ctx, lastTriedBefore)
	}
	return 0, nil
}

func (m *MockTaskRepository) AbortOne(ctx context.Context, lastTriedBefore time.Time) (*domain.Task, error) {
	if m.AbortOneFunc != nil {
		return m.AbortOneFunc(ctx, lastTriedBefore)
	}
	return nil, nil
}

func (m *MockTaskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, domain.NewNotFoundError("task")
}

// MockActionRepository records action lifecycle calls
type MockActionRepository struct {
	mu        sync.Mutex
	Started   []*domain.Action
	Completed []string
	GivenUp   map[string]string

	StartFunc func(ctx context.Context, action *domain.Action) error
}

func (m *MockActionRepository) Start(ctx context.Context, action *domain.Action) error {
	if m.StartFunc != nil {
		if err := m.StartFunc(ctx, action); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Started = append(m.Started, action)
	return nil
}

func (m *MockActionRepository) Complete(ctx context.Context, id string, endDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completed = append(m.Completed, id)
	return nil
}

func (m *MockActionRepository) GiveUp(ctx context.Context, id string, cause error, endDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GivenUp == nil {
		m.GivenUp = map[string]string{}
	}
	m.GivenUp[id] = cause.Error()
	return nil
}

func (m *MockActionRepository) SearchByPurpose(ctx context.Context, purposeID string) ([]*domain.Action, error) {
	return nil, nil
}

// MockSeatLockRepository keeps holders in memory with the same compare-and-delete rules as Redis
type MockSeatLockRepository struct {
	mu      sync.Mutex
	holders map[string]string

	LockFunc   func(ctx context.Context, eventID string, seats []domain.Seat, holder string, expiresAt time.Time) error
	UnlockFunc func(ctx context.Context, eventID string, seat domain.Seat, holder string) (bool, error)
}

func seatKey(eventID string, seat domain.Seat) string {
	return eventID + ":" + seat.String()
}

func (m *MockSeatLockRepository) Lock(ctx context.Context, eventID string, seats []domain.Seat, holder string, expiresAt time.Time) error {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, eventID, seats, holder, expiresAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holders == nil {
		m.holders = map[string]string{}
	}
	for _, seat := range seats {
		if h, ok := m.holders[seatKey(eventID, seat)]; ok && h != holder {
			return domain.NewConflictError("seat", fmt.Sprintf("Seat %s already held", seat))
		}
	}
	for _, seat := range seats {
		m.holders[seatKey(eventID, seat)] = holder
	}
	return nil
}

func (m *MockSeatLockRepository) Unlock(ctx context.Context, eventID string, seat domain.Seat, holder string) (bool, error) {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, eventID, seat, holder)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holders[seatKey(eventID, seat)] != holder {
		return false, nil
	}
	delete(m.holders, seatKey(eventID, seat))
	return true, nil
}

func (m *MockSeatLockRepository) GetHolder(ctx context.Context, eventID string, seat domain.Seat) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holders[seatKey(eventID, seat)], nil
}

// MockReservationNumberRepository issues sequential numbers
type MockReservationNumberRepository struct {
	mu   sync.Mutex
	seq  int
	Err  error
	Used int
}

func (m *MockReservationNumberRepository) Publish(ctx context.Context, reserveDate time.Time, sellerBranchCode string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Used++
	if m.Err != nil {
		return "", m.Err
	}
	m.seq++
	return fmt.Sprintf("%s-%s-%06d", sellerBranchCode, reserveDate.Format("060102"), m.seq), nil
}

// MockReserveService is a mock implementation of ReserveService
type MockReserveService struct {
	ConfirmReservationFunc       func(ctx context.Context, actions []domain.ReserveActionAttributes) error
	CancelPendingReservationFunc func(ctx context.Context, actions []domain.CancelActionAttributes) error
	CancelReservationFunc        func(ctx context.Context, actions []domain.CancelActionAttributes) error
}

func (m *MockReserveService) ConfirmReservation(ctx context.Context, actions []domain.ReserveActionAttributes) error {
	if m.ConfirmReservationFunc != nil {
		return m.ConfirmReservationFunc(ctx, actions)
	}
	return nil
}

func (m *MockReserveService) CancelPendingReservation(ctx context.Context, actions []domain.CancelActionAttributes) error {
	if m.CancelPendingReservationFunc != nil {
		return m.CancelPendingReservationFunc(ctx, actions)
	}
	return nil
}

func (m *MockReserveService) CancelReservation(ctx context.Context, actions []domain.CancelActionAttributes) error {
	if m.CancelReservationFunc != nil {
		return m.CancelReservationFunc(ctx, actions)
	}
	return nil
}

func (m *MockReserveService) CheckIn(ctx context.Context, id string) (*domain.Reservation, error) {
	return &domain.Reservation{ID: id, CheckedIn: true}, nil
}

func (m *MockReserveService) Attend(ctx context.Context, id string) (*domain.Reservation, error) {
	return &domain.Reservation{ID: id, Attended: true}, nil
}

var (
	_ repository.TransactionRepository       = (*MockTransactionRepository)(nil)
	_ repository.ReservationRepository       = (*MockReservationRepository)(nil)
	_ repository.EventRepository             = (*MockEventRepository)(nil)
	_ repository.TaskRepository              = (*MockTaskRepository)(nil)
	_ repository.ActionRepository            = (*MockActionRepository)(nil)
	_ repository.SeatLockRepository          = (*MockSeatLockRepository)(nil)
	_ repository.ReservationNumberRepository = (*MockReservationNumberRepository)(nil)
	_ ReserveService                         = (*MockReserveService)(nil)
)
