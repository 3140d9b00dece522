// Package dispatcher implements the Event Dispatcher (spec.md §4.4): the
// control-plane orchestrator that turns one webhook batch into persisted
// trades, fan-out notifications, and outbound copy-trade RPC calls.
package dispatcher

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blok-hamster/copy-trader-service/internal/bus"
	"github.com/blok-hamster/copy-trader-service/internal/classifier"
	"github.com/blok-hamster/copy-trader-service/internal/config"
	"github.com/blok-hamster/copy-trader-service/internal/domain"
	"github.com/blok-hamster/copy-trader-service/internal/store"
	"github.com/google/uuid"
)

// MLScorer is the subset of internal/mlscorer's client the Dispatcher
// needs, duck-typed to avoid tests needing a real HTTP server.
type MLScorer interface {
	Score(ctx context.Context, kolWallet, tokenMint, side string, tokenAmount, quoteAmount float64, tradeTime time.Time) float64
}

// Publisher is the subset of bus.Publisher the Dispatcher needs.
type Publisher interface {
	Publish(ctx context.Context, msg bus.Message) error
}

// MetricsRecorder is the subset of *store.Metrics the Dispatcher needs,
// duck-typed so tests can swap in a no-op. A nil MetricsRecorder is valid:
// the Dispatcher skips every recording call rather than require one.
type MetricsRecorder interface {
	Increment(ctx context.Context, name string)
	SetCurrent(ctx context.Context, snapshot domain.ServiceMetrics)
}

// Dispatcher wires the Registry, Quota Gate, Trade history, and bus
// publisher together into the pipeline described in spec.md §4.4.
type Dispatcher struct {
	registry *store.Registry
	gate     *store.Gate
	trades   *store.TradeHistory
	bus      Publisher
	scorer   MLScorer
	metrics  MetricsRecorder
	cfg      config.Config
	logger   *log.Logger

	kolLocks keyedMutex

	classified, dropped, persisted, quotaBlocked, mlScored, copyTradeEmitted atomic.Int64
}

func NewDispatcher(registry *store.Registry, gate *store.Gate, trades *store.TradeHistory, publisher Publisher, scorer MLScorer, metrics MetricsRecorder, cfg config.Config, logger *log.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, gate: gate, trades: trades, bus: publisher, scorer: scorer, metrics: metrics, cfg: cfg, logger: logger}
}

// logf writes to the configured logger if one was supplied; a nil logger is
// valid (tests routinely construct a Dispatcher without one).
func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.logger == nil {
		return
	}
	d.logger.Printf(format, args...)
}

// recordCounter increments the named metrics:counter:{name} key (spec.md
// §6) if a recorder is configured. Best-effort: never observed by the
// caller.
func (d *Dispatcher) recordCounter(ctx context.Context, name string) {
	if d.metrics == nil {
		return
	}
	d.metrics.Increment(ctx, name)
}

// snapshotMetrics writes the running pipeline totals to metrics:current
// (spec.md §6). Called once per processed transaction, after every stage
// transition it reflects has had a chance to update.
func (d *Dispatcher) snapshotMetrics(ctx context.Context) {
	if d.metrics == nil {
		return
	}
	d.metrics.SetCurrent(ctx, domain.ServiceMetrics{
		TradesClassified: d.classified.Load(),
		TradesDropped:    d.dropped.Load(),
		TradesPersisted:  d.persisted.Load(),
		QuotaBlocked:     d.quotaBlocked.Load(),
		MLScored:         d.mlScored.Load(),
		CopyTradeEmitted: d.copyTradeEmitted.Load(),
	})
}

// ProcessBatch runs spec.md §4.4 step 1 over one inbound webhook batch,
// preserving arrival order within each KOL wallet and never returning an
// error for a single bad transaction — the whole webhook path acks 200
// unconditionally (spec.md §4.4 step 2, §9).
func (d *Dispatcher) ProcessBatch(ctx context.Context, batch WebhookBatch) {
	active := d.registry.GetWatchedKOLWallets(ctx)
	activeSet := make(map[string]struct{}, len(active))
	for _, w := range active {
		activeSet[w] = struct{}{}
	}

	for _, tx := range batch {
		if !isSwapFamily(tx.Type) {
			continue
		}
		kolWallet := matchKOLWallet(tx, activeSet)
		if kolWallet == "" {
			continue
		}
		d.processOne(ctx, kolWallet, tx)
	}
}

// processOne runs steps b-i for a single transaction already matched to a
// KOL wallet. Mutations targeting the same KOL wallet are serialized so
// trades for one KOL are never persisted or fanned out out of order
// (spec.md §4.4 "Ordering guarantees").
func (d *Dispatcher) processOne(ctx context.Context, kolWallet string, tx WebhookTransaction) {
	unlock := d.kolLocks.Lock(kolWallet)
	defer unlock()

	result, err := classifier.Classify(classifier.Payload{AccountData: tx.AccountData, TargetUser: kolWallet})
	if err != nil {
		d.dropped.Add(1)
		d.recordCounter(ctx, "trades_dropped")
		d.snapshotMetrics(ctx)
		return
	}
	d.classified.Add(1)
	d.recordCounter(ctx, "trades_classified")

	trade := domain.Trade{
		ID:          uuid.NewString(),
		KOLWallet:   kolWallet,
		Signature:   tx.Signature,
		EventTime:   eventTime(tx.Timestamp),
		Side:        result.Side,
		TokenMint:   result.TokenMint,
		QuoteMint:   domain.NativeWrapMint,
		TokenAmount: result.TokenAmount,
		QuoteAmount: result.QuoteAmount,
		DexProgram:  classifier.InferDexLabel(tx.Source, tx.Description),
		Slot:        tx.Slot,
		Fee:         tx.Fee,
	}

	// Persistence failures are non-fatal (spec.md §4.4.d): the trade still
	// fans out to subscribers even if history storage is down.
	if err := d.trades.Append(ctx, trade); err != nil {
		d.logf("trade persistence failed for kol %s signature %s: %v", kolWallet, trade.Signature, err)
	} else {
		d.persisted.Add(1)
		d.recordCounter(ctx, "trades_persisted")
	}

	subs := d.registry.GetSubscriptionsForKOL(ctx, kolWallet)
	watchSubs, eligibleTrade, quotaBlocked := d.partitionSubscriptions(ctx, trade, subs)
	notified := append(append([]domain.Subscription{}, watchSubs...), eligibleTrade...)
	notified = append(notified, quotaBlocked...)

	probability := 0.0
	if d.isMLScored(kolWallet) && d.scorer != nil {
		probability = d.scorer.Score(ctx, kolWallet, trade.TokenMint, string(trade.Side), trade.TokenAmount, trade.QuoteAmount, trade.EventTime)
		d.mlScored.Add(1)
		d.recordCounter(ctx, "ml_scored")
	}

	d.emitTradeDetected(ctx, trade, notified, probability)
	d.emitNotifications(ctx, trade, notified)
	d.emitCopyTradeRequests(ctx, trade, eligibleTrade)
	d.snapshotMetrics(ctx)
}

// partitionSubscriptions implements spec.md §4.4.e: splits a KOL's
// subscriptions into watch-only, quota-eligible trade subscriptions, and
// trade subscriptions that failed their quota check (still notified, not
// copy-traded).
func (d *Dispatcher) partitionSubscriptions(ctx context.Context, trade domain.Trade, subs []domain.Subscription) (watch, eligible, blocked []domain.Subscription) {
	for _, sub := range subs {
		if !sub.Active {
			continue
		}
		switch {
		case sub.Type == domain.SubscriptionWatch:
			watch = append(watch, sub)
		case sub.HasTokenQuota():
			res, err := d.gate.IncrementAndValidate(ctx, sub.UserID, trade.TokenMint, sub.ID, int64(sub.TokenBuyCount))
			if err != nil {
				d.logf("quota increment failed for user %s token %s: %v", sub.UserID, trade.TokenMint, err)
			}
			if err != nil || !res.Success {
				blocked = append(blocked, sub)
				d.quotaBlocked.Add(1)
				d.recordCounter(ctx, "quota_blocked")
				continue
			}
			eligible = append(eligible, sub)
		default:
			eligible = append(eligible, sub)
		}
	}
	return watch, eligible, blocked
}

func (d *Dispatcher) isMLScored(kolWallet string) bool {
	for _, w := range d.cfg.MLScoredKOLWallets {
		if w == kolWallet {
			return true
		}
	}
	return false
}

func (d *Dispatcher) emitTradeDetected(ctx context.Context, trade domain.Trade, subs []domain.Subscription, mlProbability float64) {
	body, err := json.Marshal(struct {
		Trade             domain.Trade          `json:"trade"`
		Subscriptions     []domain.Subscription `json:"subscriptions"`
		EstimatedCopies   int                    `json:"estimatedCopyCount"`
		MLProbability     float64                `json:"mlProbability,omitempty"`
	}{Trade: trade, Subscriptions: subs, EstimatedCopies: len(subs), MLProbability: mlProbability})
	if err != nil {
		return
	}
	_ = d.bus.Publish(ctx, bus.Message{
		Exchange:   bus.ExchangeTradeEvents,
		RoutingKey: bus.RoutingKOLTradeDetected,
		Body:       body,
	})
}

func (d *Dispatcher) emitNotifications(ctx context.Context, trade domain.Trade, subs []domain.Subscription) {
	for _, sub := range subs {
		estimated := trade.QuoteAmount * sub.CopyPercentage / 100
		body, err := json.Marshal(struct {
			UserID                string             `json:"userId"`
			NotificationType      string             `json:"notificationType"`
			Trade                 domain.Trade       `json:"trade"`
			Subscription          domain.Subscription `json:"subscription"`
			EstimatedCopyAmount   float64            `json:"estimatedCopyAmount"`
		}{
			UserID:              sub.UserID,
			NotificationType:     "trade_detected",
			Trade:                 trade,
			Subscription:          sub,
			EstimatedCopyAmount:   estimated,
		})
		if err != nil {
			continue
		}
		_ = d.bus.Publish(ctx, bus.Message{
			Exchange:   bus.ExchangeNotifications,
			RoutingKey: bus.RoutingClientNotify,
			Body:       body,
		})
	}
}

// copyTradeOrder is one element of the batched copy-trade RPC call
// (spec.md §4.4.i).
type copyTradeOrder struct {
	AgentID        string              `json:"agentId"`
	TradeType      domain.Side         `json:"tradeType"`
	Amount         *float64            `json:"amount"`
	PrivateKey     string              `json:"privateKey"`
	Mint           string              `json:"mint"`
	Priority       string              `json:"priority"`
	WatchConfig    *domain.WatchConfig `json:"watchConfig,omitempty"`
}

func (d *Dispatcher) emitCopyTradeRequests(ctx context.Context, trade domain.Trade, subs []domain.Subscription) {
	var orders []copyTradeOrder
	for _, sub := range subs {
		if sub.Type != domain.SubscriptionTrade {
			continue
		}
		orders = append(orders, copyTradeOrder{
			AgentID:     sub.UserID,
			TradeType:   trade.Side,
			Amount:      sub.MinAmount,
			PrivateKey:  sub.OpaqueCredential,
			Mint:        trade.TokenMint,
			Priority:    "high",
			WatchConfig: sub.WatchConfig,
		})
	}
	if len(orders) == 0 {
		return
	}

	body, err := json.Marshal(orders)
	if err != nil {
		return
	}
	_ = d.bus.Publish(ctx, bus.Message{
		Exchange:   bus.ExchangeTradeEvents,
		RoutingKey: bus.RoutingCopyTradeRequest,
		Body:       body,
	})
	d.copyTradeEmitted.Add(1)
	d.recordCounter(ctx, "copy_trade_emitted")
}

// matchKOLWallet implements spec.md §4.4.a: scan accountData,
// nativeTransfers, tokenTransfers, and feePayer for any address in the
// active set.
func matchKOLWallet(tx WebhookTransaction, active map[string]struct{}) string {
	if _, ok := active[tx.FeePayer]; ok {
		return tx.FeePayer
	}
	for _, acct := range tx.AccountData {
		if _, ok := active[acct.Account]; ok {
			return acct.Account
		}
	}
	for _, t := range tx.NativeTransfers {
		if _, ok := active[t.FromUserAccount]; ok {
			return t.FromUserAccount
		}
		if _, ok := active[t.ToUserAccount]; ok {
			return t.ToUserAccount
		}
	}
	for _, t := range tx.TokenTransfers {
		if _, ok := active[t.FromUserAccount]; ok {
			return t.FromUserAccount
		}
		if _, ok := active[t.ToUserAccount]; ok {
			return t.ToUserAccount
		}
	}
	return ""
}

func eventTime(unixSeconds int64) time.Time {
	if unixSeconds <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(unixSeconds, 0).UTC()
}

// keyedMutex serializes work per KOL wallet (spec.md §4.4 "Ordering
// guarantees"). Identical in shape to internal/store's keyedMutex, which
// is unexported and so cannot be reused from this package.
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
