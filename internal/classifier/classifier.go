// Package classifier implements the Swap Classifier (spec.md §4.1): a pure,
// deterministic parser that converts a webhook transaction payload's
// per-account balance deltas into a canonical buy/sell Trade, or reports
// "not classifiable".
package classifier

import (
	"errors"
	"strings"

	"github.com/blok-hamster/copy-trader-service/internal/domain"
	"github.com/blok-hamster/copy-trader-service/internal/numbers"
	"github.com/mr-tron/base58"
)

// ErrUnclassified is the sentinel returned whenever a payload cannot be
// reduced to a single buy or sell leg. Callers treat this as "drop, log
// only" (spec.md §4.4.b) — it is never a program error.
var ErrUnclassified = errors.New("classifier: not classifiable")

// RawTokenAmount is the webhook provider's nested representation of a
// token delta (spec.md §6: "tokenBalanceChanges[] with ... rawTokenAmount.
// {tokenAmount, decimals}") — not a pair of flat fields.
type RawTokenAmount struct {
	TokenAmount string `json:"tokenAmount"` // signed decimal string, e.g. "-500000000"
	Decimals    int    `json:"decimals"`
}

// TokenBalanceChange is one per-account, per-mint token delta as reported by
// the webhook provider's accountData[].tokenBalanceChanges[].
type TokenBalanceChange struct {
	UserAccount    string         `json:"userAccount"`
	Mint           string         `json:"mint"`
	RawTokenAmount RawTokenAmount `json:"rawTokenAmount"`
}

// AccountRecord is one element of the webhook payload's accountData[].
type AccountRecord struct {
	Account             string               `json:"account"`
	NativeBalanceChange int64                `json:"nativeBalanceChange"` // signed, minor units (lamports)
	TokenBalanceChanges []TokenBalanceChange `json:"tokenBalanceChanges"`
}

// Payload is the subset of a Helius-style webhook transaction this package
// needs: the account ledger and an optional explicit target user.
type Payload struct {
	AccountData []AccountRecord
	// TargetUser, if non-empty, overrides the "first account with non-zero
	// change" selection rule in spec.md §4.1 step 2 (the Dispatcher passes
	// the matched KOL wallet).
	TargetUser string
}

// Result is the canonical classification of one payload's dominant swap leg.
type Result struct {
	Side        domain.Side
	TokenMint   string
	TokenAmount float64
	QuoteAmount float64
}

// netDelta is mint -> signed net change for one account.
type netDelta map[string]float64

// NormalizeAddress canonicalizes a base58-encoded Solana address (KOL
// wallet, feePayer, or mint) by decoding and re-encoding it, so two
// encodings of the same 32-byte pubkey compare equal. Anything that
// doesn't decode to a 32-byte pubkey — including the placeholder account
// labels a malformed or partial webhook payload might carry — is returned
// unchanged: spec.md §4.1 treats malformed fields as zero/skip, not as a
// hard classification failure.
func NormalizeAddress(addr string) string {
	decoded, err := base58.Decode(addr)
	if err != nil || len(decoded) != 32 {
		return addr
	}
	return base58.Encode(decoded)
}

// Classify runs the algorithm in spec.md §4.1. It is pure, deterministic,
// and never panics: malformed numeric fields are treated as zero (per
// numbers.ExtractFloat failure handling), and missing fields are
// tolerated.
func Classify(p Payload) (Result, error) {
	balances := buildBalances(p.AccountData)
	if len(balances) == 0 {
		return Result{}, ErrUnclassified
	}

	user := selectUser(p, balances)
	if user == "" {
		return Result{}, ErrUnclassified
	}

	mintDeltas := balances[user]

	nativeDelta := mintDeltas[domain.NativeWrapMint]
	var (
		tokenMint  string
		tokenDelta float64
		nonNative  int
	)
	for mint, delta := range mintDeltas {
		if mint == domain.NativeWrapMint {
			continue
		}
		nonNative++
		tokenMint = mint
		tokenDelta = delta
	}

	if nonNative != 1 || nativeDelta == 0 || tokenDelta == 0 {
		return Result{}, ErrUnclassified
	}

	switch {
	case nativeDelta < 0 && tokenDelta > 0:
		return Result{
			Side:        domain.SideBuy,
			TokenMint:   tokenMint,
			TokenAmount: abs(tokenDelta),
			QuoteAmount: abs(nativeDelta),
		}, nil
	case tokenDelta < 0 && nativeDelta > 0:
		return Result{
			Side:        domain.SideSell,
			TokenMint:   tokenMint,
			TokenAmount: abs(tokenDelta),
			QuoteAmount: abs(nativeDelta),
		}, nil
	default:
		return Result{}, ErrUnclassified
	}
}

// buildBalances converts the account ledger into account -> mint -> net
// change, attributing native deltas to the account under NativeWrapMint and
// token deltas by their reported decimals (spec.md §4.1 step 1).
func buildBalances(accounts []AccountRecord) map[string]netDelta {
	balances := make(map[string]netDelta, len(accounts))

	for _, acct := range accounts {
		account := NormalizeAddress(acct.Account)
		if account == "" {
			continue
		}
		if _, ok := balances[account]; !ok {
			balances[account] = make(netDelta)
		}

		if acct.NativeBalanceChange != 0 {
			nativeUnits := float64(acct.NativeBalanceChange) / pow10(domain.NativeUnitExponent)
			balances[account][domain.NativeWrapMint] += nativeUnits
		}

		for _, tbc := range acct.TokenBalanceChanges {
			owner := NormalizeAddress(tbc.UserAccount)
			if owner == "" {
				owner = account
			}
			raw, err := numbers.ExtractFloat(tbc.RawTokenAmount.TokenAmount)
			if err != nil {
				raw = 0
			}
			amount := raw / pow10(tbc.RawTokenAmount.Decimals)
			mint := NormalizeAddress(tbc.Mint)
			if _, ok := balances[owner]; !ok {
				balances[owner] = make(netDelta)
			}
			balances[owner][mint] += amount
		}
	}

	// Drop accounts with no net change at all — they cannot be "the user".
	for acct, deltas := range balances {
		nonZero := false
		for _, d := range deltas {
			if d != 0 {
				nonZero = true
				break
			}
		}
		if !nonZero {
			delete(balances, acct)
		}
	}

	return balances
}

// selectUser implements spec.md §4.1 step 2: the explicit target if
// supplied, otherwise the first account (ledger order) with non-zero change.
func selectUser(p Payload, balances map[string]netDelta) string {
	if p.TargetUser != "" {
		target := NormalizeAddress(p.TargetUser)
		if _, ok := balances[target]; ok {
			return target
		}
		return ""
	}
	for _, acct := range p.AccountData {
		account := NormalizeAddress(acct.Account)
		if _, ok := balances[account]; ok {
			return account
		}
	}
	return ""
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func pow10(exp int) float64 {
	if exp <= 0 {
		return 1
	}
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= 10
	}
	return result
}

// dexLabels maps a case-insensitive match against the webhook's source or
// description fields to a canonical DEX-program label, per spec.md §4.4.c
// ("a fixed table"). Grounded on the program identifiers in
// VladislavFirsov-solana-token-lab/internal/discovery/dex_parser.go and the
// DEX name table in aman-zulfiqar-solana-swap-indexer/constants.go.
var dexLabels = []struct {
	match string
	label string
}{
	{"jupiter", "Jupiter"},
	{"raydium", "Raydium"},
	{"orca whirlpool", "OrcaWhirlpool"},
	{"whirlpool", "OrcaWhirlpool"},
	{"orca", "Orca"},
	{"pump.fun", "PumpFun"},
	{"pumpfun", "PumpFun"},
}

// InferDexLabel matches a webhook's source/description fields against the
// fixed DEX-program table. Returns "" when nothing matches.
func InferDexLabel(source, description string) string {
	haystack := strings.ToLower(source + " " + description)
	for _, entry := range dexLabels {
		if strings.Contains(haystack, entry.match) {
			return entry.label
		}
	}
	return ""
}
