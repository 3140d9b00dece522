package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blok-hamster/copy-trader-service/internal/config"
	"github.com/blok-hamster/copy-trader-service/internal/domain"
)

const metricsCounterTTL = 24 * time.Hour

// Metrics persists the Dispatcher pipeline's running counters to the
// metrics:current / metrics:counter:{name} keys named in spec.md §6. It
// mirrors the Gate's plain-INCR idiom: counters are fire-and-forget,
// best-effort, and never block or fail the pipeline stage they observe.
type Metrics struct {
	redis RedisClient
	cfg   config.Config
}

func NewMetrics(redis RedisClient, cfg config.Config) *Metrics {
	return &Metrics{redis: redis, cfg: cfg}
}

func (m *Metrics) counterKey(name string) string {
	return m.cfg.KVNamespace(fmt.Sprintf("metrics:counter:%s", name))
}

func (m *Metrics) currentKey() string {
	return m.cfg.KVNamespace("metrics:current")
}

// Increment bumps the named counter (e.g. "trades_classified",
// "quota_blocked") and refreshes its 24h TTL. Errors are swallowed: a
// metrics-store outage must never affect trade processing.
func (m *Metrics) Increment(ctx context.Context, name string) {
	key := m.counterKey(name)
	if _, err := m.redis.Incr(ctx, key).Result(); err != nil {
		return
	}
	_ = m.redis.Expire(ctx, key, metricsCounterTTL).Err()
}

// SetCurrent overwrites the metrics:current snapshot. Like Increment, it is
// best-effort and never surfaces an error to the Dispatcher.
func (m *Metrics) SetCurrent(ctx context.Context, snapshot domain.ServiceMetrics) {
	snapshot.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	_ = m.redis.Set(ctx, m.currentKey(), data, 0).Err()
}

// GetCurrent loads the last-written metrics:current snapshot, if any.
func (m *Metrics) GetCurrent(ctx context.Context) (domain.ServiceMetrics, bool, error) {
	raw, err := m.redis.Get(ctx, m.currentKey()).Result()
	if err != nil {
		if isRedisNil(err) {
			return domain.ServiceMetrics{}, false, nil
		}
		return domain.ServiceMetrics{}, false, fmt.Errorf("get metrics:current: %w", err)
	}
	var snapshot domain.ServiceMetrics
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return domain.ServiceMetrics{}, false, fmt.Errorf("unmarshal metrics:current: %w", err)
	}
	return snapshot, true, nil
}

// GetCounter returns the current value of one named counter, 0 if absent.
func (m *Metrics) GetCounter(ctx context.Context, name string) (int64, error) {
	v, err := m.redis.Get(ctx, m.counterKey(name)).Int64()
	if err != nil {
		if isRedisNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get counter %s: %w", name, err)
	}
	return v, nil
}
