package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestNew_AppliesDefaultsWithoutMutatingInput(t *testing.T) {
	in := &Config{JitterFactor: 3}
	r := New(in)

	assert.Equal(t, 100*time.Millisecond, r.config.InitialInterval)
	assert.Equal(t, 5*time.Second, r.config.MaxInterval)
	assert.Equal(t, 2.0, r.config.Multiplier)
	assert.Equal(t, 1.0, r.config.JitterFactor)
	assert.Zero(t, in.InitialInterval)
}

func TestRetrier_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("broker not ready")
		}
		return nil
	})

	assert.NoError(t, result.Err)
	assert.Equal(t, 3, result.Attempts)
}

func TestRetrier_StopsOnPermanentError(t *testing.T) {
	cause := errors.New("invalid payload")
	calls := 0
	result := New(fastConfig(5)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(cause)
	})

	assert.ErrorIs(t, result.Err, cause)
	assert.Equal(t, 1, calls)
}

func TestRetrier_ExhaustsRetries(t *testing.T) {
	var waits []int
	result := New(fastConfig(2)).DoWithCallback(context.Background(),
		func(ctx context.Context) error { return errors.New("down") },
		func(attempt int, err error, next time.Duration) { waits = append(waits, attempt) },
	)

	assert.ErrorIs(t, result.Err, ErrMaxRetriesExceeded)
	assert.EqualError(t, result.LastError, "down")
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, []int{1, 2}, waits)
	assert.EqualError(t, result.Cause(), "down")
}

func TestRetrier_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := New(fastConfig(2)).Do(ctx, func(ctx context.Context) error { return nil })

	assert.ErrorIs(t, result.Err, ErrContextCanceled)
	assert.ErrorIs(t, result.Cause(), ErrContextCanceled)
}

func TestCalculateInterval_CappedAtMax(t *testing.T) {
	r := New(&Config{InitialInterval: time.Second, MaxInterval: 3 * time.Second, Multiplier: 2})

	assert.Equal(t, time.Second, r.calculateInterval(0))
	assert.Equal(t, 2*time.Second, r.calculateInterval(1))
	assert.Equal(t, 3*time.Second, r.calculateInterval(5))
}
