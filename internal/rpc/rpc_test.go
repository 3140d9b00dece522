package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/blok-hamster/copy-trader-service/internal/config"
	"github.com/blok-hamster/copy-trader-service/internal/domain"
	"github.com/blok-hamster/copy-trader-service/internal/store"
	"github.com/blok-hamster/copy-trader-service/internal/store/memkv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer() *Server {
	client := memkv.New()
	cfg := config.Config{Environment: "production"}
	return NewServer(store.NewRegistry(client, nil, cfg, nil), store.NewGate(client, cfg), store.NewTradeHistory(client, cfg))
}

func TestCreateAndRemoveUserSubscription(t *testing.T) {
	s := testServer()
	ctx := context.Background()

	createArgs, err := json.Marshal(createSubscriptionArgs{Subscription: domain.Subscription{UserID: "u1", KOLWallet: "K1"}})
	require.NoError(t, err)

	createReply, err := s.createUserSubscription(ctx, createArgs)
	require.NoError(t, err)
	var subs []domain.Subscription
	require.NoError(t, json.Unmarshal(createReply.Data, &subs))
	require.Len(t, subs, 1)

	removeArgs, err := json.Marshal(userKOLArgs{UserID: "u1", KOLWallet: "K1"})
	require.NoError(t, err)

	removeReply, err := s.removeUserSubscription(ctx, removeArgs)
	require.NoError(t, err)
	var remaining []domain.Subscription
	require.NoError(t, json.Unmarshal(removeReply.Data, &remaining))
	assert.Empty(t, remaining)
}

func TestGetKolWallets(t *testing.T) {
	s := testServer()
	ctx := context.Background()

	addArgs, err := json.Marshal(kolWalletArgs{KOLWallet: "K1"})
	require.NoError(t, err)
	_, err = s.addKolWalletToWebhook(ctx, addArgs)
	require.NoError(t, err)

	listReply, err := s.getKolWallets(ctx, nil)
	require.NoError(t, err)
	var wallets []string
	require.NoError(t, json.Unmarshal(listReply.Data, &wallets))
	assert.Equal(t, []string{"K1"}, wallets)
}

func TestGetRecentKOLTradesResolvesDetails(t *testing.T) {
	s := testServer()
	ctx := context.Background()

	require.NoError(t, s.trades.Append(ctx, domain.Trade{
		ID: "t1", KOLWallet: "K1", Side: domain.SideBuy, TokenMint: "M1", QuoteMint: domain.NativeWrapMint,
	}))

	args, err := json.Marshal(recentTradesArgs{KOLWallet: "K1", Limit: 10})
	require.NoError(t, err)
	r, err := s.getRecentKOLTrades(ctx, args)
	require.NoError(t, err)

	var trades []domain.Trade
	require.NoError(t, json.Unmarshal(r.Data, &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "M1", trades[0].TokenMint)
}

func TestGetTradeHistoryReturnsFullTradesAcrossKOLs(t *testing.T) {
	s := testServer()
	ctx := context.Background()

	require.NoError(t, s.trades.Append(ctx, domain.Trade{
		ID: "t1", KOLWallet: "K1", Side: domain.SideBuy, TokenMint: "M1", QuoteMint: domain.NativeWrapMint,
	}))
	require.NoError(t, s.trades.Append(ctx, domain.Trade{
		ID: "t2", KOLWallet: "K2", Side: domain.SideSell, TokenMint: "M2", QuoteMint: domain.NativeWrapMint,
	}))

	args, err := json.Marshal(tradeHistoryArgs{Limit: 10})
	require.NoError(t, err)
	r, err := s.getTradeHistory(ctx, args)
	require.NoError(t, err)

	var trades []domain.Trade
	require.NoError(t, json.Unmarshal(r.Data, &trades))
	require.Len(t, trades, 2)
	assert.Equal(t, "t2", trades[0].ID)
	assert.Equal(t, "M2", trades[0].TokenMint)
	assert.Equal(t, "t1", trades[1].ID)
}

func TestRPCMethodNameListHasTenEntries(t *testing.T) {
	// The "Invalid method" reply for unknown names comes from
	// bus.RPCServer.invoke, not from this package. This test only checks
	// the list of ten method names that Register binds and that a Server
	// can be constructed; it does not inspect the transport's table.
	s := testServer()
	methods := []string{
		"createUserSubscription", "removeUserSubscription", "addKolWalletToWebhook",
		"removeKolWalletFromWebhook", "getSubscriptionsForKOL", "getSubscriptionsForUser",
		"getKolWallets", "getRecentKOLTrades", "getTradeHistory", "getKOLSwapTransactions",
	}
	assert.Len(t, methods, 10)
	assert.NotNil(t, s)
}
