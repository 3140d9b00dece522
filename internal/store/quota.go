package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blok-hamster/copy-trader-service/internal/config"
	"github.com/blok-hamster/copy-trader-service/internal/domain"
)

// Gate implements the Purchase-Quota Gate (spec.md §4.3): an atomic
// per-(userId, tokenMint) counter bounded by a subscription's tokenBuyCount,
// backed by the KV store's INCR/DECR/EXPIRE primitives.
type Gate struct {
	redis RedisClient
	cfg   config.Config
}

func NewGate(redis RedisClient, cfg config.Config) *Gate {
	return &Gate{redis: redis, cfg: cfg}
}

func (g *Gate) countKey(userID, tokenMint string) string {
	return g.cfg.KVNamespace(fmt.Sprintf("token_purchases:token_buy_count:%s:%s", userID, tokenMint))
}

func (g *Gate) recordKey(userID, tokenMint string) string {
	return g.cfg.KVNamespace(fmt.Sprintf("token_purchases:token_purchase_record:%s:%s", userID, tokenMint))
}

// CanPurchase is the advisory, read-only check (spec.md §4.3: "used for
// display/preflight, never the sole gate before a purchase"). It fails
// open: a read error reports CanPurchase=true rather than blocking display.
func (g *Gate) CanPurchase(ctx context.Context, userID, tokenMint string, max int64) domain.CanPurchaseResult {
	current, err := g.redis.Get(ctx, g.countKey(userID, tokenMint)).Int64()
	if err != nil {
		if isRedisNil(err) {
			current = 0
		} else {
			return domain.CanPurchaseResult{CanPurchase: true, Max: max, Remaining: max}
		}
	}

	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}
	return domain.CanPurchaseResult{
		CanPurchase: current < max,
		Current:     current,
		Max:         max,
		Remaining:   remaining,
	}
}

// IncrementAndValidate is the authoritative gate called immediately before a
// purchase executes (spec.md §4.3). It increments the counter, and if the
// post-increment value exceeds max, rolls back with a DECR and reports
// failure. It fails closed: any error on the increment step is treated as
// "not allowed" so a quota cannot silently be bypassed by a Redis outage.
func (g *Gate) IncrementAndValidate(ctx context.Context, userID, tokenMint, subscriptionID string, max int64) (domain.IncrementResult, error) {
	key := g.countKey(userID, tokenMint)

	newCount, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		return domain.IncrementResult{}, fmt.Errorf("incr %s: %w", key, err)
	}

	if newCount == 1 && g.cfg.CounterTTL > 0 {
		_ = g.redis.Expire(ctx, key, g.cfg.CounterTTL).Err()
	}

	if newCount > max {
		if _, decrErr := g.redis.Decr(ctx, key).Result(); decrErr != nil {
			return domain.IncrementResult{}, fmt.Errorf("rollback decr %s: %w", key, decrErr)
		}
		return domain.IncrementResult{Success: false, NewCount: newCount - 1, WasAtLimit: true}, nil
	}

	record := domain.PurchaseCounter{
		UserID:         userID,
		TokenMint:      tokenMint,
		CurrentCount:   newCount,
		MaxCount:       max,
		LastPurchase:   time.Now().UTC(),
		SubscriptionID: subscriptionID,
	}
	if err := g.saveRecord(ctx, userID, tokenMint, record); err != nil {
		// The authoritative counter already incremented; the record is a
		// denormalized read-side view, so a write failure here is logged by
		// the caller and does not reverse the increment.
		return domain.IncrementResult{Success: true, NewCount: newCount}, fmt.Errorf("save purchase record: %w", err)
	}

	return domain.IncrementResult{Success: true, NewCount: newCount}, nil
}

func (g *Gate) saveRecord(ctx context.Context, userID, tokenMint string, record domain.PurchaseCounter) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal purchase record: %w", err)
	}
	return g.redis.Set(ctx, g.recordKey(userID, tokenMint), data, g.cfg.CounterTTL).Err()
}

// GetRecord returns the last-known purchase record, if any.
func (g *Gate) GetRecord(ctx context.Context, userID, tokenMint string) (domain.PurchaseCounter, bool, error) {
	raw, err := g.redis.Get(ctx, g.recordKey(userID, tokenMint)).Result()
	if err != nil {
		if isRedisNil(err) {
			return domain.PurchaseCounter{}, false, nil
		}
		return domain.PurchaseCounter{}, false, fmt.Errorf("get %s: %w", g.recordKey(userID, tokenMint), err)
	}
	var record domain.PurchaseCounter
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return domain.PurchaseCounter{}, false, fmt.Errorf("unmarshal purchase record: %w", err)
	}
	return record, true, nil
}

// Reset clears the counter and record for (userID, tokenMint) with a single
// DEL. No RPC method exposes it.
func (g *Gate) Reset(ctx context.Context, userID, tokenMint string) error {
	if err := g.redis.Del(ctx, g.countKey(userID, tokenMint), g.recordKey(userID, tokenMint)).Err(); err != nil {
		return fmt.Errorf("del quota keys: %w", err)
	}
	return nil
}
