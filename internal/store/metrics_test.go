package store

import (
	"context"
	"testing"

	"github.com/blok-hamster/copy-trader-service/internal/config"
	"github.com/blok-hamster/copy-trader-service/internal/domain"
	"github.com/blok-hamster/copy-trader-service/internal/store/memkv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetrics() *Metrics {
	return NewMetrics(memkv.New(), config.Config{Environment: "production"})
}

func TestIncrementAccumulatesNamedCounter(t *testing.T) {
	m := testMetrics()
	ctx := context.Background()

	m.Increment(ctx, "trades_classified")
	m.Increment(ctx, "trades_classified")
	m.Increment(ctx, "quota_blocked")

	classified, err := m.GetCounter(ctx, "trades_classified")
	require.NoError(t, err)
	assert.Equal(t, int64(2), classified)

	blocked, err := m.GetCounter(ctx, "quota_blocked")
	require.NoError(t, err)
	assert.Equal(t, int64(1), blocked)
}

func TestGetCounterMissingIsZero(t *testing.T) {
	m := testMetrics()
	v, err := m.GetCounter(context.Background(), "never_incremented")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestSetCurrentRoundTripsSnapshot(t *testing.T) {
	m := testMetrics()
	ctx := context.Background()

	_, found, err := m.GetCurrent(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	m.SetCurrent(ctx, domain.ServiceMetrics{TradesClassified: 5, QuotaBlocked: 2})

	snapshot, found, err := m.GetCurrent(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(5), snapshot.TradesClassified)
	assert.Equal(t, int64(2), snapshot.QuotaBlocked)
	assert.False(t, snapshot.UpdatedAt.IsZero())
}
