package model

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walletAddress(t *testing.T, seed byte) string {
	t.Helper()
	s := make([]byte, ed25519.SeedSize)
	s[0] = seed
	pub := ed25519.NewKeyFromSeed(s).Public().(ed25519.PublicKey)
	return base58.Encode(pub)
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal("amount", " 1.25 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("1.25")))

	_, err = ParseDecimal("amount", "abc")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = ParseDecimal("amount", "")
	assert.True(t, IsValidationError(err))

	_, err = ParsePositive("amount", "-1")
	assert.True(t, IsValidationError(err))
	_, err = ParsePositive("amount", "0")
	assert.True(t, IsValidationError(err))
}

func TestValidateSlippage(t *testing.T) {
	assert.NoError(t, ValidateSlippage(decimal.Zero))
	assert.NoError(t, ValidateSlippage(decimal.NewFromInt(100)))
	assert.Error(t, ValidateSlippage(decimal.NewFromInt(-1)))
	assert.Error(t, ValidateSlippage(decimal.RequireFromString("100.01")))
}

func TestValidateWalletAddress(t *testing.T) {
	assert.NoError(t, ValidateWalletAddress(walletAddress(t, 1)))

	assert.Error(t, ValidateWalletAddress("not-base58-0OIl"))
	assert.Error(t, ValidateWalletAddress(base58.Encode([]byte{1, 2, 3})))

	offCurve := make([]byte, AddressLength)
	offCurve[0] = 2
	assert.NoError(t, ValidateAddress("token_address", base58.Encode(offCurve)))
	assert.Error(t, ValidateWalletAddress(base58.Encode(offCurve)))
}

func TestIntentValidate(t *testing.T) {
	now := time.Now()
	token := walletAddress(t, 9)
	base := func() Intent {
		return Intent{UserID: "u1", WalletRef: "w1", TokenAddress: token, CreatedAt: now}
	}

	snipe := base()
	snipe.Kind = KindSnipe
	snipe.Snipe = &SnipeParams{Mode: SnipeAbsolute, Amount: decimal.NewFromInt(1), Threshold: decimal.NewFromInt(5)}
	assert.NoError(t, snipe.Validate())

	snipe.Snipe.Amount = decimal.NewFromInt(-1)
	assert.True(t, IsValidationError(snipe.Validate()))

	limit := base()
	limit.Kind = KindLimit
	limit.Limit = &LimitParams{Side: "hold", Amount: decimal.NewFromInt(1), TriggerPrice: decimal.NewFromInt(2)}
	assert.True(t, IsValidationError(limit.Validate()))

	dca := base()
	dca.Kind = KindDCA
	dca.DCA = &DCAParams{TotalAmount: decimal.NewFromInt(4), Interval: time.Hour, PlannedOrders: 0}
	assert.True(t, IsValidationError(dca.Validate()))
	dca.DCA.PlannedOrders = 4
	assert.NoError(t, dca.Validate())
	dca.DCA.Interval = MaxDCAInterval + time.Second
	assert.True(t, IsValidationError(dca.Validate()))

	ct := base()
	ct.TokenAddress = ""
	ct.Kind = KindCopyTrade
	ct.CopyTrade = &CopyTradeParams{TraderAddress: walletAddress(t, 3), MaxAmountPerTrade: decimal.NewFromInt(2)}
	assert.NoError(t, ct.Validate())

	expired := snipe
	expired.Snipe = &SnipeParams{Mode: SnipeAbsolute, Amount: decimal.NewFromInt(1), Threshold: decimal.NewFromInt(5)}
	past := now.Add(-time.Minute)
	expired.ExpiresAt = &past
	assert.True(t, IsValidationError(expired.Validate()))

	unknown := base()
	unknown.Kind = "moonshot"
	assert.True(t, IsValidationError(unknown.Validate()))
}

func TestDCAOrderAmount(t *testing.T) {
	p := DCAParams{TotalAmount: decimal.NewFromInt(10), PlannedOrders: 4}
	assert.Equal(t, "2.5", p.OrderAmount().String())

	p = DCAParams{TotalAmount: decimal.NewFromInt(1), PlannedOrders: 3}
	assert.Equal(t, "0.333333333", p.OrderAmount().String())
}

func TestIntentClone(t *testing.T) {
	src := Intent{
		Kind: KindCopyTrade,
		CopyTrade: &CopyTradeParams{
			Signals: []TradeSignal{{Signature: "s1"}},
		},
	}
	c := src.Clone()
	c.CopyTrade.Signals[0].Signature = "changed"
	c.CopyTrade.Signals = append(c.CopyTrade.Signals, TradeSignal{Signature: "s2"})
	assert.Equal(t, "s1", src.CopyTrade.Signals[0].Signature)
	assert.Len(t, src.CopyTrade.Signals, 1)
}
