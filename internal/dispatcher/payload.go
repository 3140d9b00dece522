package dispatcher

import (
	"strings"

	"github.com/blok-hamster/copy-trader-service/internal/classifier"
)

// WebhookTransaction is one element of an inbound webhook batch (spec.md
// §4.4 step 1): the raw per-transaction payload from the blockchain-index
// provider, carrying enough of the balance-delta ledger for the
// Classifier plus the fields used for KOL-wallet matching and DEX-label
// inference.
type WebhookTransaction struct {
	Signature       string                     `json:"signature"`
	Type            string                     `json:"type"`
	Slot            *int64                     `json:"slot,omitempty"`
	Timestamp       int64                      `json:"timestamp"`
	FeePayer        string                     `json:"feePayer"`
	Source          string                     `json:"source"`
	Description     string                     `json:"description"`
	Fee             *float64                   `json:"fee,omitempty"`
	AccountData     []classifier.AccountRecord `json:"accountData"`
	NativeTransfers []TransferRef              `json:"nativeTransfers"`
	TokenTransfers  []TransferRef              `json:"tokenTransfers"`
}

// isSwapFamily reports whether a webhook transaction's type discriminator
// belongs to the SWAP family that triggers classification (spec.md §9:
// "only SWAP-family types trigger classification"). Matching is
// case-insensitive and substring-based so provider variants like
// PUMP_FUN_SWAP and SWAP_ACCOUNT still gate in.
func isSwapFamily(txType string) bool {
	return strings.Contains(strings.ToUpper(txType), "SWAP")
}

// TransferRef is a (from, to) address pair used only for KOL-wallet
// matching (spec.md §4.4.a: "scan accountData, nativeTransfers,
// tokenTransfers, and feePayer").
type TransferRef struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
}

// WebhookBatch is the full inbound payload: an array of transactions
// (spec.md §4.4: "batch size typically 1-10").
type WebhookBatch []WebhookTransaction
