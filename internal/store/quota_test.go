package store

import (
	"context"
	"sync"
	"testing"

	"github.com/blok-hamster/copy-trader-service/internal/config"
	"github.com/blok-hamster/copy-trader-service/internal/store/memkv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGate() *Gate {
	return NewGate(memkv.New(), config.Config{Environment: "production", CounterTTL: 0})
}

func TestCanPurchaseBeforeAnyPurchases(t *testing.T) {
	gate := testGate()
	res := gate.CanPurchase(context.Background(), "u1", "M1", 3)
	assert.True(t, res.CanPurchase)
	assert.Equal(t, int64(0), res.Current)
	assert.Equal(t, int64(3), res.Remaining)
}

func TestIncrementAndValidateWithinLimit(t *testing.T) {
	gate := testGate()
	ctx := context.Background()

	res, err := gate.IncrementAndValidate(ctx, "u1", "M1", "sub-1", 3)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(1), res.NewCount)

	record, found, err := gate.GetRecord(ctx, "u1", "M1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), record.CurrentCount)
	assert.Equal(t, "sub-1", record.SubscriptionID)
}

func TestIncrementAndValidateRollsBackAtLimit(t *testing.T) {
	gate := testGate()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := gate.IncrementAndValidate(ctx, "u1", "M1", "sub-1", 3)
		require.NoError(t, err)
		assert.True(t, res.Success)
	}

	res, err := gate.IncrementAndValidate(ctx, "u1", "M1", "sub-1", 3)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.WasAtLimit)
	assert.Equal(t, int64(3), res.NewCount, "rollback must restore the counter to its pre-attempt value")

	final := gate.CanPurchase(ctx, "u1", "M1", 3)
	assert.Equal(t, int64(3), final.Current)
}

func TestConcurrentIncrementAndValidateNeverExceedsMax(t *testing.T) {
	gate := testGate()
	ctx := context.Background()
	const max = 5

	var wg sync.WaitGroup
	successes := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := gate.IncrementAndValidate(ctx, "u1", "M1", "sub-1", max)
			require.NoError(t, err)
			successes <- res.Success
		}()
	}
	wg.Wait()
	close(successes)

	var successCount int
	for s := range successes {
		if s {
			successCount++
		}
	}
	assert.Equal(t, max, successCount, "exactly max purchases should succeed under concurrent contention")

	final := gate.CanPurchase(ctx, "u1", "M1", max)
	assert.Equal(t, int64(max), final.Current, "counter must settle exactly at max, never above")
}

func TestResetClearsCounterAndRecord(t *testing.T) {
	gate := testGate()
	ctx := context.Background()

	_, err := gate.IncrementAndValidate(ctx, "u1", "M1", "sub-1", 3)
	require.NoError(t, err)

	require.NoError(t, gate.Reset(ctx, "u1", "M1"))

	res := gate.CanPurchase(ctx, "u1", "M1", 3)
	assert.Equal(t, int64(0), res.Current)

	_, found, err := gate.GetRecord(ctx, "u1", "M1")
	require.NoError(t, err)
	assert.False(t, found)
}
