package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/blok-hamster/copy-trader-service/internal/config"
	"github.com/blok-hamster/copy-trader-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// perKOLCap and globalCap bound the sorted-set trade histories per spec.md
// §8 scenario: "the per-KOL history never exceeds 100 entries, the global
// history never exceeds 1000".
const (
	perKOLCap = 100
	globalCap = 1000
)

// TradeHistory persists classified trades keyed by KOL wallet, both as an
// individually addressable detail record and as capped recency-ordered
// sorted sets (spec.md §3 TradeHistory, §6 key layout).
type TradeHistory struct {
	redis RedisClient
	cfg   config.Config
}

func NewTradeHistory(redis RedisClient, cfg config.Config) *TradeHistory {
	return &TradeHistory{redis: redis, cfg: cfg}
}

func (t *TradeHistory) detailKey(kolWallet, tradeID string) string {
	return t.cfg.KVNamespace(fmt.Sprintf("trade:kol:%s:%s", kolWallet, tradeID))
}

func (t *TradeHistory) kolHistoryKey(kolWallet string) string {
	return t.cfg.KVNamespace(fmt.Sprintf("trade:recent:%s", kolWallet))
}

func (t *TradeHistory) globalHistoryKey() string {
	return t.cfg.KVNamespace("trade:recent")
}

// Append persists a classified trade, scoring both sorted sets by event
// time (ms) and trimming each back to its cap. Per spec.md §6, the per-KOL
// set's member is the bare tradeId (detail lookup stays keyed by
// kolWallet+tradeId), but the global set's member is the full JSON trade,
// since a global entry has no single owning KOL to resolve detail from.
func (t *TradeHistory) Append(ctx context.Context, trade domain.Trade) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}

	if err := t.redis.Set(ctx, t.detailKey(trade.KOLWallet, trade.ID), data, t.cfg.TradeHistoryTTL).Err(); err != nil {
		return fmt.Errorf("set trade detail: %w", err)
	}

	score := float64(trade.EventTime.UnixMilli())

	kolMember := redis.Z{Score: score, Member: trade.ID}
	if err := t.appendCapped(ctx, t.kolHistoryKey(trade.KOLWallet), kolMember, perKOLCap); err != nil {
		return fmt.Errorf("append kol history: %w", err)
	}

	globalMember := redis.Z{Score: score, Member: data}
	if err := t.appendCapped(ctx, t.globalHistoryKey(), globalMember, globalCap); err != nil {
		return fmt.Errorf("append global history: %w", err)
	}
	return nil
}

func (t *TradeHistory) appendCapped(ctx context.Context, key string, member redis.Z, limit int64) error {
	if err := t.redis.ZAdd(ctx, key, member).Err(); err != nil {
		return err
	}
	count, err := t.redis.ZCard(ctx, key).Result()
	if err != nil {
		return err
	}
	if count > limit {
		// Sorted ascending by score (event time); trim the oldest entries
		// off rank 0 up to the overflow amount.
		overflow := count - limit
		if err := t.redis.ZRemRangeByRank(ctx, key, 0, overflow-1).Err(); err != nil {
			return err
		}
	}
	return nil
}

// RecentForKOL returns up to limit trade IDs for a KOL wallet, most recent
// first.
func (t *TradeHistory) RecentForKOL(ctx context.Context, kolWallet string, limit int64) ([]string, error) {
	ids, err := t.redis.ZRevRange(ctx, t.kolHistoryKey(kolWallet), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange kol history: %w", err)
	}
	return ids, nil
}

// RecentGlobal returns up to limit full trades across all KOLs, most
// recent first. Unlike RecentForKOL, the global set's members are the
// full JSON trade (spec.md §6), so no per-trade detail lookup is needed.
func (t *TradeHistory) RecentGlobal(ctx context.Context, limit int64) ([]domain.Trade, error) {
	raws, err := t.redis.ZRevRange(ctx, t.globalHistoryKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange global history: %w", err)
	}
	trades := make([]domain.Trade, 0, len(raws))
	for _, raw := range raws {
		var trade domain.Trade
		if err := json.Unmarshal([]byte(raw), &trade); err != nil {
			return nil, fmt.Errorf("unmarshal global history entry: %w", err)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// Get loads one trade's detail record by KOL wallet and trade ID.
func (t *TradeHistory) Get(ctx context.Context, kolWallet, tradeID string) (domain.Trade, bool, error) {
	raw, err := t.redis.Get(ctx, t.detailKey(kolWallet, tradeID)).Result()
	if err != nil {
		if isRedisNil(err) {
			return domain.Trade{}, false, nil
		}
		return domain.Trade{}, false, fmt.Errorf("get trade detail: %w", err)
	}
	var trade domain.Trade
	if err := json.Unmarshal([]byte(raw), &trade); err != nil {
		return domain.Trade{}, false, fmt.Errorf("unmarshal trade detail: %w", err)
	}
	return trade, true, nil
}
