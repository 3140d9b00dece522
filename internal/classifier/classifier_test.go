package classifier

import (
	"testing"

	"github.com/blok-hamster/copy-trader-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyBuy(t *testing.T) {
	p := Payload{
		AccountData: []AccountRecord{
			{
				Account:             "W",
				NativeBalanceChange: -50_000_000,
				TokenBalanceChanges: []TokenBalanceChange{
					{UserAccount: "W", Mint: "M", RawTokenAmount: RawTokenAmount{TokenAmount: "1000000000", Decimals: 6}},
				},
			},
		},
	}

	res, err := Classify(p)
	require.NoError(t, err)
	assert.Equal(t, domain.SideBuy, res.Side)
	assert.Equal(t, "M", res.TokenMint)
	assert.InDelta(t, 1000.0, res.TokenAmount, 1e-9)
	assert.InDelta(t, 0.05, res.QuoteAmount, 1e-9)
}

func TestClassifySell(t *testing.T) {
	p := Payload{
		AccountData: []AccountRecord{
			{
				Account:             "W",
				NativeBalanceChange: 100_000_000,
				TokenBalanceChanges: []TokenBalanceChange{
					{UserAccount: "W", Mint: "M", RawTokenAmount: RawTokenAmount{TokenAmount: "-500000000", Decimals: 6}},
				},
			},
		},
	}

	res, err := Classify(p)
	require.NoError(t, err)
	assert.Equal(t, domain.SideSell, res.Side)
	assert.Equal(t, "M", res.TokenMint)
	assert.InDelta(t, 500.0, res.TokenAmount, 1e-9)
	assert.InDelta(t, 0.1, res.QuoteAmount, 1e-9)
}

func TestClassifyZeroNonNativeDeltas(t *testing.T) {
	p := Payload{
		AccountData: []AccountRecord{
			{Account: "W", NativeBalanceChange: -50_000_000},
		},
	}
	_, err := Classify(p)
	assert.ErrorIs(t, err, ErrUnclassified)
}

func TestClassifyTwoNonNativeDeltas(t *testing.T) {
	p := Payload{
		AccountData: []AccountRecord{
			{
				Account:             "W",
				NativeBalanceChange: -50_000_000,
				TokenBalanceChanges: []TokenBalanceChange{
					{UserAccount: "W", Mint: "M1", RawTokenAmount: RawTokenAmount{TokenAmount: "1000000000", Decimals: 6}},
					{UserAccount: "W", Mint: "M2", RawTokenAmount: RawTokenAmount{TokenAmount: "500000000", Decimals: 6}},
				},
			},
		},
	}
	_, err := Classify(p)
	assert.ErrorIs(t, err, ErrUnclassified)
}

func TestClassifyZeroNativeDelta(t *testing.T) {
	p := Payload{
		AccountData: []AccountRecord{
			{
				Account: "W",
				TokenBalanceChanges: []TokenBalanceChange{
					{UserAccount: "W", Mint: "M", RawTokenAmount: RawTokenAmount{TokenAmount: "1000000000", Decimals: 6}},
				},
			},
		},
	}
	_, err := Classify(p)
	assert.ErrorIs(t, err, ErrUnclassified)
}

func TestClassifyMalformedRawAmountTreatedAsZero(t *testing.T) {
	p := Payload{
		AccountData: []AccountRecord{
			{
				Account:             "W",
				NativeBalanceChange: -50_000_000,
				TokenBalanceChanges: []TokenBalanceChange{
					{UserAccount: "W", Mint: "M", RawTokenAmount: RawTokenAmount{TokenAmount: "not-a-number", Decimals: 6}},
				},
			},
		},
	}
	_, err := Classify(p)
	assert.ErrorIs(t, err, ErrUnclassified)
}

func TestClassifyExplicitTargetUser(t *testing.T) {
	p := Payload{
		TargetUser: "Payer",
		AccountData: []AccountRecord{
			{Account: "Payer", NativeBalanceChange: -50_000_000},
			{
				Account: "TokenAccount",
				TokenBalanceChanges: []TokenBalanceChange{
					{UserAccount: "Payer", Mint: "M", RawTokenAmount: RawTokenAmount{TokenAmount: "1000000000", Decimals: 6}},
				},
			},
		},
	}
	res, err := Classify(p)
	require.NoError(t, err)
	assert.Equal(t, domain.SideBuy, res.Side)
}

func TestInferDexLabel(t *testing.T) {
	assert.Equal(t, "Jupiter", InferDexLabel("JUPITER_V6", ""))
	assert.Equal(t, "OrcaWhirlpool", InferDexLabel("", "swap via Orca Whirlpool"))
	assert.Equal(t, "Raydium", InferDexLabel("RAYDIUM_SWAP", ""))
	assert.Equal(t, "", InferDexLabel("unknown", "unknown"))
}

func TestNormalizeAddressRoundTripsValidPubkey(t *testing.T) {
	// A real base58-encoded 32-byte Solana pubkey (the wrapped-SOL mint)
	// must round-trip to itself.
	assert.Equal(t, domain.NativeWrapMint, NormalizeAddress(domain.NativeWrapMint))
}

func TestNormalizeAddressLeavesNonPubkeyUnchanged(t *testing.T) {
	assert.Equal(t, "W", NormalizeAddress("W"))
	assert.Equal(t, "", NormalizeAddress(""))
}
