// Package domain holds the canonical records the broker passes between the
// Classifier, Registry, Quota Gate, and Dispatcher: Trade, Subscription,
// KOLWallet, PurchaseCounter, TradeHistory.
package domain

import "time"

// NativeWrapMint is the canonical wrapped-native quote mint for this chain.
// It is always the quoteMint of a classified Trade.
const NativeWrapMint = "So11111111111111111111111111111111111111112"

// NativeUnitExponent is the number of decimal places a native-unit delta is
// expressed in (lamports per SOL).
const NativeUnitExponent = 9

// Side is the direction of a classified swap.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// SubscriptionType selects whether a subscription drives copy-trade dispatch
// or notification-only watching.
type SubscriptionType string

const (
	SubscriptionTrade SubscriptionType = "trade"
	SubscriptionWatch SubscriptionType = "watch"
)

// Trade is the immutable, canonical record produced by the Classifier.
// Invariant: exactly one Side; TokenAmount > 0 and QuoteAmount > 0;
// {TokenMint, QuoteMint} is a set of size 2 and QuoteMint is NativeWrapMint.
type Trade struct {
	ID          string    `json:"id"`
	KOLWallet   string    `json:"kolWallet"`
	Signature   string    `json:"signature"`
	EventTime   time.Time `json:"eventTime"`
	Side        Side      `json:"side"`
	TokenMint   string    `json:"tokenMint"`
	QuoteMint   string    `json:"quoteMint"`
	TokenAmount float64   `json:"tokenAmount"`
	QuoteAmount float64   `json:"quoteAmount"`
	DexProgram  string    `json:"dexProgram,omitempty"`
	Slot        *int64    `json:"slot,omitempty"`
	Fee         *float64  `json:"fee,omitempty"`
}

// WatchConfig holds the optional exit parameters for a watch-style copy.
type WatchConfig struct {
	TakeProfitPct    float64 `json:"takeProfitPct,omitempty"`
	StopLossPct      float64 `json:"stopLossPct,omitempty"`
	TrailingStopPct  float64 `json:"trailingStopPct,omitempty"`
	MaxHoldMinutes   int     `json:"maxHoldMinutes,omitempty"`
}

// SafetySettings are optional per-subscription trading guards.
type SafetySettings struct {
	SlippageBps    int      `json:"slippageBps,omitempty"`
	DexWhitelist   []string `json:"dexWhitelist,omitempty"`
	TokenBlacklist []string `json:"tokenBlacklist,omitempty"`
	TradingHours   string   `json:"tradingHours,omitempty"`
}

// Subscription is a user's standing instruction to copy or watch a KOL
// wallet. Invariant: (UserID, KOLWallet) is unique; adding a duplicate
// replaces the prior record.
type Subscription struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	KOLWallet        string           `json:"kolWallet"`
	WalletAddress    string           `json:"walletAddress"`
	OpaqueCredential string           `json:"opaqueCredential,omitempty"`
	Type             SubscriptionType `json:"type"`
	Active           bool             `json:"active"`
	CopyPercentage   float64          `json:"copyPercentage"`
	MinAmount        *float64         `json:"minAmount,omitempty"`
	MaxAmount        *float64         `json:"maxAmount,omitempty"`
	TokenBuyCount    int              `json:"tokenBuyCount,omitempty"`
	WatchConfig      *WatchConfig     `json:"watchConfig,omitempty"`
	Safety           *SafetySettings  `json:"safety,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// HasTokenQuota reports whether this subscription is gated by the
// Purchase-Quota Gate, per spec.md §4.4.e: trade subscriptions with a
// positive tokenBuyCount AND a watchConfig.
func (s Subscription) HasTokenQuota() bool {
	return s.Type == SubscriptionTrade && s.TokenBuyCount > 0 && s.WatchConfig != nil
}

// PurchaseCounter is the per-(user, tokenMint) quota record maintained by
// the Purchase-Quota Gate. TTL = 24h from LastPurchase.
type PurchaseCounter struct {
	UserID         string    `json:"userId"`
	TokenMint      string    `json:"tokenMint"`
	CurrentCount   int64     `json:"currentCount"`
	MaxCount       int64     `json:"maxCount"`
	LastPurchase   time.Time `json:"lastPurchase"`
	SubscriptionID string    `json:"subscriptionId"`
}

// CanPurchaseResult is the advisory response of Gate.CanPurchase.
type CanPurchaseResult struct {
	CanPurchase bool  `json:"canPurchase"`
	Current     int64 `json:"current"`
	Max         int64 `json:"max"`
	Remaining   int64 `json:"remaining"`
}

// IncrementResult is the authoritative response of Gate.IncrementAndValidate.
type IncrementResult struct {
	Success    bool  `json:"success"`
	NewCount   int64 `json:"newCount"`
	WasAtLimit bool  `json:"wasAtLimit"`
}

// ServiceMetrics is the point-in-time snapshot written to the
// metrics:current KV key (spec.md §6) once per transaction the Dispatcher
// processes.
type ServiceMetrics struct {
	TradesClassified int64     `json:"tradesClassified"`
	TradesDropped    int64     `json:"tradesDropped"`
	TradesPersisted  int64     `json:"tradesPersisted"`
	QuotaBlocked     int64     `json:"quotaBlocked"`
	MLScored         int64     `json:"mlScored"`
	CopyTradeEmitted int64     `json:"copyTradeEmitted"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
