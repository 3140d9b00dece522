package store

import (
	"context"
	"testing"
	"time"

	"github.com/blok-hamster/copy-trader-service/internal/config"
	"github.com/blok-hamster/copy-trader-service/internal/domain"
	"github.com/blok-hamster/copy-trader-service/internal/store/memkv"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTradeHistory() *TradeHistory {
	return NewTradeHistory(memkv.New(), config.Config{Environment: "production", TradeHistoryTTL: time.Hour})
}

func TestAppendAndGetTrade(t *testing.T) {
	th := testTradeHistory()
	ctx := context.Background()

	trade := domain.Trade{
		ID:          uuid.NewString(),
		KOLWallet:   "K1",
		Side:        domain.SideBuy,
		TokenMint:   "M1",
		QuoteMint:   domain.NativeWrapMint,
		TokenAmount: 100,
		QuoteAmount: 1,
		EventTime:   time.Now(),
	}
	require.NoError(t, th.Append(ctx, trade))

	got, found, err := th.Get(ctx, "K1", trade.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, trade.TokenMint, got.TokenMint)
}

func TestPerKOLHistoryCappedAt100(t *testing.T) {
	th := testTradeHistory()
	ctx := context.Background()

	base := time.Now()
	var ids []string
	for i := 0; i < 110; i++ {
		trade := domain.Trade{
			ID:        uuid.NewString(),
			KOLWallet: "K1",
			Side:      domain.SideBuy,
			TokenMint: "M1",
			QuoteMint: domain.NativeWrapMint,
			EventTime: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, th.Append(ctx, trade))
		ids = append(ids, trade.ID)
	}

	recent, err := th.RecentForKOL(ctx, "K1", 200)
	require.NoError(t, err)
	assert.Len(t, recent, perKOLCap)
	// Most recent (last appended) must be first.
	assert.Equal(t, ids[len(ids)-1], recent[0])
	// The oldest 10 must have been evicted.
	assert.NotContains(t, recent, ids[0])
}

func TestGlobalHistoryCappedAt1000(t *testing.T) {
	th := testTradeHistory()
	ctx := context.Background()

	base := time.Now()
	var ids []string
	for i := 0; i < 1005; i++ {
		trade := domain.Trade{
			ID:        uuid.NewString(),
			KOLWallet: "K1",
			Side:      domain.SideBuy,
			TokenMint: "M1",
			QuoteMint: domain.NativeWrapMint,
			EventTime: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, th.Append(ctx, trade))
		ids = append(ids, trade.ID)
	}

	recent, err := th.RecentGlobal(ctx, 2000)
	require.NoError(t, err)
	assert.Len(t, recent, globalCap)
	// The global set's members are full trades, not bare IDs, resolvable
	// without a per-KOL detail lookup.
	assert.Equal(t, ids[len(ids)-1], recent[0].ID)
	assert.Equal(t, "M1", recent[0].TokenMint)
}

func TestGetMissingTradeReturnsNotFound(t *testing.T) {
	th := testTradeHistory()
	_, found, err := th.Get(context.Background(), "K1", "nonexistent")
	require.NoError(t, err)
	assert.False(t, found)
}
