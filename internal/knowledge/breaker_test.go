package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(clock *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker("test", BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Minute}, nil)
	cb.now = func() time.Time { return *clock }
	return cb
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := newTestBreaker(&clock)
	ctx := context.Background()
	boom := errors.New("503")
	calls := 0
	failing := func(context.Context) error { calls++; return boom }

	assert.ErrorIs(t, cb.Do(ctx, failing), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Do(ctx, failing), boom)
	assert.Equal(t, StateOpen, cb.State())

	// 打开期间不发出调用
	assert.ErrorIs(t, cb.Do(ctx, failing), ErrCircuitOpen)
	assert.Equal(t, 2, calls)

	clock = clock.Add(time.Minute)
	require.NoError(t, cb.Do(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := newTestBreaker(&clock)
	ctx := context.Background()
	boom := errors.New("503")

	_ = cb.Do(ctx, func(context.Context) error { return boom })
	_ = cb.Do(ctx, func(context.Context) error { return boom })
	clock = clock.Add(2 * time.Minute)

	assert.ErrorIs(t, cb.Do(ctx, func(context.Context) error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_IgnoresCancellation(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 3; i++ {
		err := cb.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, StateClosed, cb.State())
}
