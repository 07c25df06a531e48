package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	pkgredis "github.com/prohmpiriya/booking-rush-reservation/pkg/redis"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	reservationNumberKeyPrefix = "reservationNumber"
	reservationNumberTTL       = 24 * time.Hour
	// MaxReservationSequence is the per-seller, per-day ceiling of reservation numbers
	MaxReservationSequence = 999999
)

// ReservationNumberRepository issues reservation numbers
type ReservationNumberRepository interface {
	Publish(ctx context.Context, reserveDate time.Time, sellerBranchCode string) (string, error)
}

// RedisReservationNumberRepository issues numbers from a per-seller, per-day Redis counter
type RedisReservationNumberRepository struct {
	client   *pkgredis.Client
	location *time.Location
}

// NewRedisReservationNumberRepository creates a new RedisReservationNumberRepository.
// The date part of each number is computed in loc.
func NewRedisReservationNumberRepository(client *pkgredis.Client, loc *time.Location) *RedisReservationNumberRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &RedisReservationNumberRepository{client: client, location: loc}
}

// Publish increments the counter for (seller, date) and formats {seller}-{YYMMDD}-{000000}
func (r *RedisReservationNumberRepository) Publish(ctx context.Context, reserveDate time.Time, sellerBranchCode string) (number string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.reservation_number.publish")
	defer func() { telemetry.EndSpan(span, err) }()

	if sellerBranchCode == "" {
		return "", domain.NewArgumentError("sellerBranchCode", "seller branch code is required")
	}

	date := reserveDate.In(r.location).Format("060102")
	key := fmt.Sprintf("%s:%s-%s", reservationNumberKeyPrefix, sellerBranchCode, date)
	span.SetAttributes(attribute.String("key", key))

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, reservationNumberTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", domain.NewServiceUnavailableError(fmt.Sprintf("reservation number counter unavailable: %v", err))
	}

	seq, err := incr.Result()
	if err != nil {
		return "", domain.NewServiceUnavailableError(fmt.Sprintf("reservation number counter unavailable: %v", err))
	}
	if seq <= 0 {
		return "", domain.NewServiceUnavailableError(fmt.Sprintf("reservation number counter returned %d", seq))
	}
	if seq > MaxReservationSequence {
		return "", domain.NewServiceUnavailableError(
			fmt.Sprintf("reservation numbers exhausted for seller %s on %s", sellerBranchCode, date))
	}

	span.SetAttributes(attribute.Int64("sequence", seq))
	return fmt.Sprintf("%s-%s-%06d", sellerBranchCode, date, seq), nil
}

var _ ReservationNumberRepository = (*RedisReservationNumberRepository)(nil)
