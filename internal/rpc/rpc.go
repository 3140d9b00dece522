// Package rpc implements the ten named methods of the RPC Query Surface
// (spec.md §4.6) over internal/bus's request/reply transport.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/blok-hamster/copy-trader-service/internal/bus"
	"github.com/blok-hamster/copy-trader-service/internal/domain"
	"github.com/blok-hamster/copy-trader-service/internal/store"
)

// Server wires the ten RPC methods to a Registry, Quota Gate, and Trade
// history, and registers them on a bus.RPCServer.
type Server struct {
	registry *store.Registry
	gate     *store.Gate
	trades   *store.TradeHistory
}

func NewServer(registry *store.Registry, gate *store.Gate, trades *store.TradeHistory) *Server {
	return &Server{registry: registry, gate: gate, trades: trades}
}

// Register binds every method to transport's dispatch table.
func (s *Server) Register(transport *bus.RPCServer) {
	transport.Register("createUserSubscription", s.createUserSubscription)
	transport.Register("removeUserSubscription", s.removeUserSubscription)
	transport.Register("addKolWalletToWebhook", s.addKolWalletToWebhook)
	transport.Register("removeKolWalletFromWebhook", s.removeKolWalletFromWebhook)
	transport.Register("getSubscriptionsForKOL", s.getSubscriptionsForKOL)
	transport.Register("getSubscriptionsForUser", s.getSubscriptionsForUser)
	transport.Register("getKolWallets", s.getKolWallets)
	transport.Register("getRecentKOLTrades", s.getRecentKOLTrades)
	transport.Register("getTradeHistory", s.getTradeHistory)
	transport.Register("getKOLSwapTransactions", s.getKOLSwapTransactions)
}

func reply(data interface{}) (bus.Reply, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return bus.Reply{}, fmt.Errorf("marshal rpc reply data: %w", err)
	}
	return bus.Reply{Message: "ok", Data: body}, nil
}

type createSubscriptionArgs struct {
	Subscription domain.Subscription `json:"subscription"`
}

func (s *Server) createUserSubscription(ctx context.Context, args json.RawMessage) (bus.Reply, error) {
	var in createSubscriptionArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return bus.Reply{}, fmt.Errorf("unmarshal args: %w", err)
	}
	subs, err := s.registry.AddSubscription(ctx, in.Subscription)
	if err != nil {
		return bus.Reply{}, err
	}
	return reply(subs)
}

type userKOLArgs struct {
	UserID    string `json:"userId"`
	KOLWallet string `json:"kolWallet"`
}

func (s *Server) removeUserSubscription(ctx context.Context, args json.RawMessage) (bus.Reply, error) {
	var in userKOLArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return bus.Reply{}, fmt.Errorf("unmarshal args: %w", err)
	}
	subs, err := s.registry.RemoveSubscription(ctx, in.UserID, in.KOLWallet)
	if err != nil {
		return bus.Reply{}, err
	}
	return reply(subs)
}

type kolWalletArgs struct {
	KOLWallet string `json:"kolWallet"`
}

func (s *Server) addKolWalletToWebhook(ctx context.Context, args json.RawMessage) (bus.Reply, error) {
	var in kolWalletArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return bus.Reply{}, fmt.Errorf("unmarshal args: %w", err)
	}
	if err := s.registry.AddKOLWallet(ctx, in.KOLWallet); err != nil {
		return bus.Reply{}, err
	}
	return reply(nil)
}

func (s *Server) removeKolWalletFromWebhook(ctx context.Context, args json.RawMessage) (bus.Reply, error) {
	var in kolWalletArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return bus.Reply{}, fmt.Errorf("unmarshal args: %w", err)
	}
	if err := s.registry.RemoveKOLWallet(ctx, in.KOLWallet); err != nil {
		return bus.Reply{}, err
	}
	return reply(nil)
}

func (s *Server) getSubscriptionsForKOL(ctx context.Context, args json.RawMessage) (bus.Reply, error) {
	var in kolWalletArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return bus.Reply{}, fmt.Errorf("unmarshal args: %w", err)
	}
	return reply(s.registry.GetSubscriptionsForKOL(ctx, in.KOLWallet))
}

type userArgs struct {
	UserID string `json:"userId"`
}

func (s *Server) getSubscriptionsForUser(ctx context.Context, args json.RawMessage) (bus.Reply, error) {
	var in userArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return bus.Reply{}, fmt.Errorf("unmarshal args: %w", err)
	}
	return reply(s.registry.GetUserSubscriptions(ctx, in.UserID))
}

func (s *Server) getKolWallets(ctx context.Context, _ json.RawMessage) (bus.Reply, error) {
	return reply(s.registry.GetWatchedKOLWallets(ctx))
}

type recentTradesArgs struct {
	KOLWallet string `json:"kolWallet"`
	Limit     int64  `json:"limit"`
}

func (s *Server) getRecentKOLTrades(ctx context.Context, args json.RawMessage) (bus.Reply, error) {
	var in recentTradesArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return bus.Reply{}, fmt.Errorf("unmarshal args: %w", err)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	ids, err := s.trades.RecentForKOL(ctx, in.KOLWallet, limit)
	if err != nil {
		return bus.Reply{}, err
	}
	return reply(s.resolveTrades(ctx, in.KOLWallet, ids))
}

type tradeHistoryArgs struct {
	Limit int64 `json:"limit"`
}

func (s *Server) getTradeHistory(ctx context.Context, args json.RawMessage) (bus.Reply, error) {
	var in tradeHistoryArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return bus.Reply{}, fmt.Errorf("unmarshal args: %w", err)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 100
	}
	trades, err := s.trades.RecentGlobal(ctx, limit)
	if err != nil {
		return bus.Reply{}, err
	}
	return reply(trades)
}

func (s *Server) getKOLSwapTransactions(ctx context.Context, args json.RawMessage) (bus.Reply, error) {
	var in recentTradesArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return bus.Reply{}, fmt.Errorf("unmarshal args: %w", err)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.trades.RecentForKOL(ctx, in.KOLWallet, limit)
	if err != nil {
		return bus.Reply{}, err
	}
	return reply(s.resolveTrades(ctx, in.KOLWallet, ids))
}

func (s *Server) resolveTrades(ctx context.Context, kolWallet string, ids []string) []domain.Trade {
	trades := make([]domain.Trade, 0, len(ids))
	for _, id := range ids {
		trade, found, err := s.trades.Get(ctx, kolWallet, id)
		if err != nil || !found {
			continue
		}
		trades = append(trades, trade)
	}
	return trades
}
