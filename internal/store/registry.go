// Package store holds the Redis-backed Registry (spec.md §4.2), the
// Purchase-Quota Gate (§4.3), and Trade persistence/history (§3 TradeHistory,
// §6 KV key layout), generalizing the teacher's influencer/subscription set
// stores (ingestion/internal/store, matcher/internal/store) to the full
// key layout spec.md §6 names.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/blok-hamster/copy-trader-service/internal/config"
	"github.com/blok-hamster/copy-trader-service/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ProviderRegistrar is the subset of the blockchain-index provider contract
// the Registry needs: syncing its watched-address list. It is satisfied by
// *provider.Client without an import back into internal/provider.
type ProviderRegistrar interface {
	AppendAddresses(ctx context.Context, webhookID string, addresses []string) error
	RemoveAddresses(ctx context.Context, webhookID string, addresses []string) error
	GetAllWebhookAddresses(ctx context.Context, webhookID string) ([]string, error)
}

// Registry is the authoritative mapping of users -> subscriptions and
// KOL -> subscribers, backed by Redis and kept in sync with the external
// provider's watched-address list.
type Registry struct {
	redis    RedisClient
	provider ProviderRegistrar
	cfg      config.Config
	logger   *log.Logger

	userLocks keyedMutex
	kolMu     sync.Mutex
}

func NewRegistry(redis RedisClient, provider ProviderRegistrar, cfg config.Config, logger *log.Logger) *Registry {
	return &Registry{redis: redis, provider: provider, cfg: cfg, logger: logger}
}

// logf writes to the configured logger if one was supplied; a nil logger is
// valid (tests routinely construct a Registry without one).
func (r *Registry) logf(format string, args ...interface{}) {
	if r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}

func (r *Registry) userKey(userID string) string {
	return r.cfg.KVNamespace(fmt.Sprintf("sub:user:%s", userID))
}

func (r *Registry) activeKey() string {
	return r.cfg.KVNamespace("kol:active")
}

func (r *Registry) subscribersKey(kolWallet string) string {
	return r.cfg.KVNamespace(fmt.Sprintf("kol:subscribers:%s", kolWallet))
}

// GetUserSubscriptions returns all subscriptions for a user; empty if none.
// Never fails — a read error degrades to an empty list (spec.md §4.2, §7).
func (r *Registry) GetUserSubscriptions(ctx context.Context, userID string) []domain.Subscription {
	subs, err := r.loadUserSubscriptions(ctx, userID)
	if err != nil {
		r.logf("get subscriptions for user %s: %v", userID, err)
		return []domain.Subscription{}
	}
	return subs
}

func (r *Registry) loadUserSubscriptions(ctx context.Context, userID string) ([]domain.Subscription, error) {
	raw, err := r.redis.Get(ctx, r.userKey(userID)).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", r.userKey(userID), err)
	}
	var subs []domain.Subscription
	if err := json.Unmarshal([]byte(raw), &subs); err != nil {
		return nil, fmt.Errorf("unmarshal subscriptions for %s: %w", userID, err)
	}
	return subs, nil
}

func (r *Registry) saveUserSubscriptions(ctx context.Context, userID string, subs []domain.Subscription) error {
	data, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("marshal subscriptions for %s: %w", userID, err)
	}
	if err := r.redis.Set(ctx, r.userKey(userID), data, r.cfg.TradeHistoryTTL).Err(); err != nil {
		return fmt.Errorf("set %s: %w", r.userKey(userID), err)
	}
	return nil
}

// AddSubscription upserts by (UserID, KOLWallet): a new record gets an ID if
// absent and CreatedAt/UpdatedAt set to now; a replaced record keeps the
// prior ID and CreatedAt and bumps UpdatedAt. Returns the user's full
// post-mutation subscription list (spec.md §4.2).
func (r *Registry) AddSubscription(ctx context.Context, sub domain.Subscription) ([]domain.Subscription, error) {
	unlock := r.userLocks.Lock(sub.UserID)
	defer unlock()

	subs, err := r.loadUserSubscriptions(ctx, sub.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	replaced := false
	for i, existing := range subs {
		if existing.KOLWallet == sub.KOLWallet {
			sub.ID = existing.ID
			sub.CreatedAt = existing.CreatedAt
			sub.UpdatedAt = now
			subs[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		if sub.ID == "" {
			sub.ID = uuid.NewString()
		}
		sub.CreatedAt = now
		sub.UpdatedAt = now
		subs = append(subs, sub)
	}

	if err := r.saveUserSubscriptions(ctx, sub.UserID, subs); err != nil {
		return nil, err
	}

	if err := r.addToKOLIndex(ctx, sub.KOLWallet, sub.UserID); err != nil {
		// Persistence of the subscriber index failed; the subscription list
		// write already succeeded, so surface but do not roll back (spec.md
		// §4.2 failure semantics: provider/index sync is best-effort).
		return subs, fmt.Errorf("index kol subscriber: %w", err)
	}

	return subs, nil
}

// RemoveSubscription removes the matching subscription and returns the
// user's remaining subscriptions.
func (r *Registry) RemoveSubscription(ctx context.Context, userID, kolWallet string) ([]domain.Subscription, error) {
	unlock := r.userLocks.Lock(userID)
	defer unlock()

	subs, err := r.loadUserSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}

	remaining := subs[:0:0]
	found := false
	for _, s := range subs {
		if s.KOLWallet == kolWallet {
			found = true
			continue
		}
		remaining = append(remaining, s)
	}
	if !found {
		return subs, nil
	}

	if err := r.saveUserSubscriptions(ctx, userID, remaining); err != nil {
		return nil, err
	}

	if err := r.removeFromKOLIndex(ctx, kolWallet, userID); err != nil {
		return remaining, fmt.Errorf("deindex kol subscriber: %w", err)
	}

	return remaining, nil
}

// addToKOLIndex appends userID to the KOL's subscriber set, adds the KOL to
// the active set, and registers it with the provider if it was not already
// active (spec.md §4.2, invariant: K in active-set iff |subscribers(K)| > 0).
func (r *Registry) addToKOLIndex(ctx context.Context, kolWallet, userID string) error {
	r.kolMu.Lock()
	defer r.kolMu.Unlock()

	if err := r.redis.SAdd(ctx, r.subscribersKey(kolWallet), userID).Err(); err != nil {
		return fmt.Errorf("sadd subscribers: %w", err)
	}
	if r.cfg.TradeHistoryTTL > 0 {
		_ = r.redis.Expire(ctx, r.subscribersKey(kolWallet), r.cfg.TradeHistoryTTL).Err()
	}

	wasActive, err := r.isActive(ctx, kolWallet)
	if err != nil {
		return err
	}
	if err := r.redis.SAdd(ctx, r.activeKey(), kolWallet).Err(); err != nil {
		return fmt.Errorf("sadd active: %w", err)
	}
	if r.cfg.TradeHistoryTTL > 0 {
		_ = r.redis.Expire(ctx, r.activeKey(), r.cfg.TradeHistoryTTL).Err()
	}

	if !wasActive && r.provider != nil {
		// Best-effort: a provider failure here does not roll back the
		// subscription; syncWithProvider reconciles later (spec.md §4.2).
		if err := r.provider.AppendAddresses(ctx, r.cfg.WebhookID, []string{kolWallet}); err != nil {
			return fmt.Errorf("provider append address: %w", err)
		}
	}
	return nil
}

// removeFromKOLIndex removes userID from the KOL's subscriber set and, if
// that empties the set, removes the KOL from the active set and the
// provider.
func (r *Registry) removeFromKOLIndex(ctx context.Context, kolWallet, userID string) error {
	r.kolMu.Lock()
	defer r.kolMu.Unlock()

	if err := r.redis.SRem(ctx, r.subscribersKey(kolWallet), userID).Err(); err != nil {
		return fmt.Errorf("srem subscribers: %w", err)
	}

	count, err := r.redis.SCard(ctx, r.subscribersKey(kolWallet)).Result()
	if err != nil {
		return fmt.Errorf("scard subscribers: %w", err)
	}
	if count > 0 {
		return nil
	}

	if err := r.redis.SRem(ctx, r.activeKey(), kolWallet).Err(); err != nil {
		return fmt.Errorf("srem active: %w", err)
	}
	if r.provider != nil {
		if err := r.provider.RemoveAddresses(ctx, r.cfg.WebhookID, []string{kolWallet}); err != nil {
			return fmt.Errorf("provider remove address: %w", err)
		}
	}
	return nil
}

func (r *Registry) isActive(ctx context.Context, kolWallet string) (bool, error) {
	members, err := r.redis.SMembers(ctx, r.activeKey()).Result()
	if err != nil {
		return false, fmt.Errorf("smembers active: %w", err)
	}
	for _, m := range members {
		if m == kolWallet {
			return true, nil
		}
	}
	return false, nil
}

// GetUsersForKOL returns the set of userIds subscribed to a KOL wallet.
// Read-only; never fails (empty set on error).
func (r *Registry) GetUsersForKOL(ctx context.Context, kolWallet string) map[string]struct{} {
	members, err := r.redis.SMembers(ctx, r.subscribersKey(kolWallet)).Result()
	if err != nil {
		r.logf("get users for kol %s: %v", kolWallet, err)
		return map[string]struct{}{}
	}
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set
}

// GetSubscriptionsForKOL joins the subscriber set with each user's
// subscription list, filtering to the matching KOL.
func (r *Registry) GetSubscriptionsForKOL(ctx context.Context, kolWallet string) []domain.Subscription {
	users := r.GetUsersForKOL(ctx, kolWallet)
	result := make([]domain.Subscription, 0, len(users))
	for userID := range users {
		for _, sub := range r.GetUserSubscriptions(ctx, userID) {
			if sub.KOLWallet == kolWallet {
				result = append(result, sub)
			}
		}
	}
	return result
}

// AddKOLWallet registers a KOL wallet directly with the provider's
// watched-address list, independent of any user subscription (spec.md
// §4.6 "addKolWalletToWebhook"). It is idempotent.
func (r *Registry) AddKOLWallet(ctx context.Context, kolWallet string) error {
	r.kolMu.Lock()
	defer r.kolMu.Unlock()

	wasActive, err := r.isActive(ctx, kolWallet)
	if err != nil {
		return err
	}
	if err := r.redis.SAdd(ctx, r.activeKey(), kolWallet).Err(); err != nil {
		return fmt.Errorf("sadd active: %w", err)
	}
	if r.cfg.TradeHistoryTTL > 0 {
		_ = r.redis.Expire(ctx, r.activeKey(), r.cfg.TradeHistoryTTL).Err()
	}
	if !wasActive && r.provider != nil {
		if err := r.provider.AppendAddresses(ctx, r.cfg.WebhookID, []string{kolWallet}); err != nil {
			return fmt.Errorf("provider append address: %w", err)
		}
	}
	return nil
}

// RemoveKOLWallet deregisters a KOL wallet unconditionally, even if users
// remain subscribed to it (spec.md §4.6 "removeKolWalletFromWebhook" is an
// operator-level override; subscriber cleanup is the caller's concern).
func (r *Registry) RemoveKOLWallet(ctx context.Context, kolWallet string) error {
	r.kolMu.Lock()
	defer r.kolMu.Unlock()

	if err := r.redis.SRem(ctx, r.activeKey(), kolWallet).Err(); err != nil {
		return fmt.Errorf("srem active: %w", err)
	}
	if r.provider != nil {
		if err := r.provider.RemoveAddresses(ctx, r.cfg.WebhookID, []string{kolWallet}); err != nil {
			return fmt.Errorf("provider remove address: %w", err)
		}
	}
	return nil
}

// GetWatchedKOLWallets returns the active set.
func (r *Registry) GetWatchedKOLWallets(ctx context.Context) []string {
	members, err := r.redis.SMembers(ctx, r.activeKey()).Result()
	if err != nil {
		r.logf("get watched kol wallets: %v", err)
		return []string{}
	}
	return members
}

// SyncWithProvider is an idempotent reconciliation: any KOL in the active
// set not known to the provider is appended; any provider-known KOL not in
// the active set is removed (spec.md §4.2).
func (r *Registry) SyncWithProvider(ctx context.Context) error {
	if r.provider == nil {
		return nil
	}

	r.kolMu.Lock()
	defer r.kolMu.Unlock()

	active := make(map[string]struct{})
	for _, w := range r.GetWatchedKOLWallets(ctx) {
		active[w] = struct{}{}
	}

	known, err := r.provider.GetAllWebhookAddresses(ctx, r.cfg.WebhookID)
	if err != nil {
		return fmt.Errorf("provider list addresses: %w", err)
	}
	knownSet := make(map[string]struct{}, len(known))
	for _, w := range known {
		knownSet[w] = struct{}{}
	}

	var toAppend, toRemove []string
	for w := range active {
		if _, ok := knownSet[w]; !ok {
			toAppend = append(toAppend, w)
		}
	}
	for w := range knownSet {
		if _, ok := active[w]; !ok {
			toRemove = append(toRemove, w)
		}
	}

	if len(toAppend) > 0 {
		if err := r.provider.AppendAddresses(ctx, r.cfg.WebhookID, toAppend); err != nil {
			return fmt.Errorf("provider append addresses: %w", err)
		}
	}
	if len(toRemove) > 0 {
		if err := r.provider.RemoveAddresses(ctx, r.cfg.WebhookID, toRemove); err != nil {
			return fmt.Errorf("provider remove addresses: %w", err)
		}
	}
	return nil
}

func isRedisNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// keyedMutex serializes mutations per key (spec.md §4.2: "mutations
// targeting the same (userId, kolWallet) must be serialized").
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
