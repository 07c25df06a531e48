package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	pkgredis "github.com/prohmpiriya/booking-rush-reservation/pkg/redis"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

//go:embed scripts/lock_seats.lua
var lockSeatsScript string

//go:embed scripts/unlock_seat.lua
var unlockSeatScript string

var (
	scriptLockSeats  = pkgredis.NewScript("lock_seats", lockSeatsScript)
	scriptUnlockSeat = pkgredis.NewScript("unlock_seat", unlockSeatScript)
)

// SeatLockRepository holds seats for a transaction
type SeatLockRepository interface {
	// Lock holds every seat for holder or none of them
	Lock(ctx context.Context, eventID string, seats []domain.Seat, holder string, expiresAt time.Time) error
	// Unlock releases a seat only if holder still holds it
	Unlock(ctx context.Context, eventID string, seat domain.Seat, holder string) (bool, error)
	// GetHolder returns the current holder, or "" when the seat is free
	GetHolder(ctx context.Context, eventID string, seat domain.Seat) (string, error)
}

// RedisSeatLockRepository implements SeatLockRepository with Lua scripts
type RedisSeatLockRepository struct {
	client *pkgredis.Client
}

// NewRedisSeatLockRepository creates a new RedisSeatLockRepository
func NewRedisSeatLockRepository(client *pkgredis.Client) *RedisSeatLockRepository {
	return &RedisSeatLockRepository{client: client}
}

// LoadScripts preloads the lock scripts into Redis
func (r *RedisSeatLockRepository) LoadScripts(ctx context.Context) error {
	return r.client.LoadScripts(ctx, scriptLockSeats, scriptUnlockSeat)
}

func seatLockKey(eventID string, seat domain.Seat) string {
	return fmt.Sprintf("seatLock:%s:%s:%s", eventID, seat.SeatSection, seat.SeatNumber)
}

// Lock atomically holds all seats; a contested seat fails the whole call with a conflict
func (r *RedisSeatLockRepository) Lock(ctx context.Context, eventID string, seats []domain.Seat, holder string, expiresAt time.Time) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.seat_lock.lock")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("holder", holder),
		attribute.Int("seats", len(seats)),
	)

	if len(seats) == 0 {
		return domain.NewArgumentError("seats", "at least one seat is required")
	}
	if !expiresAt.After(time.Now()) {
		return domain.NewArgumentError("expiresAt", "seat lock expiry must be in the future")
	}

	keys := make([]string, len(seats))
	for i, seat := range seats {
		keys[i] = seatLockKey(eventID, seat)
	}

	contested, err := r.client.Run(ctx, scriptLockSeats, keys, holder, expiresAt.UnixMilli()).Int64()
	if err != nil {
		return domain.NewServiceUnavailableError(fmt.Sprintf("failed to lock seats: %v", err))
	}

	if contested < 0 || contested > int64(len(seats)) {
		return domain.NewServiceUnavailableError(fmt.Sprintf("unexpected lock_seats result: %d", contested))
	}
	if contested > 0 {
		seat := seats[contested-1]
		span.SetAttributes(attribute.String("contested_seat", seat.String()))
		return domain.NewConflictError("seat", fmt.Sprintf("Seat %s already held", seat))
	}

	return nil
}

// Unlock releases a seat with compare-and-delete; a mismatched holder is a no-op
func (r *RedisSeatLockRepository) Unlock(ctx context.Context, eventID string, seat domain.Seat, holder string) (released bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.seat_lock.unlock")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("seat", seat.String()),
		attribute.String("holder", holder),
	)

	n, err := r.client.Run(ctx, scriptUnlockSeat, []string{seatLockKey(eventID, seat)}, holder).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to unlock seat %s: %w", seat, err)
	}

	span.SetAttributes(attribute.Bool("released", n == 1))
	return n == 1, nil
}

// GetHolder returns the transaction id holding the seat
func (r *RedisSeatLockRepository) GetHolder(ctx context.Context, eventID string, seat domain.Seat) (string, error) {
	holder, err := r.client.Get(ctx, seatLockKey(eventID, seat)).Result()
	if errors.Is(err, pkgredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get seat holder: %w", err)
	}
	return holder, nil
}

var _ SeatLockRepository = (*RedisSeatLockRepository)(nil)
