package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_EqualIgnoresCaseAndMetadata(t *testing.T) {
	a := Token{ChainID: 1, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC"}
	b := Token{ChainID: 1, Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Symbol: "USDC.e", PriceUSD: 1}
	c := Token{ChainID: 137, Address: a.Address}

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equal(c))
}

func TestToken_Format(t *testing.T) {
	usdc := Token{Decimals: 6}
	assert.Equal(t, "1.5", usdc.Format("1500000"))
	assert.Equal(t, "garbage", usdc.Format("garbage"))

	units, err := usdc.ToBaseUnits("2.25")
	require.NoError(t, err)
	assert.Equal(t, "2250000", units)

	_, err = usdc.ToBaseUnits("0.0000001")
	assert.Error(t, err)
	_, err = usdc.ToBaseUnits("-1")
	assert.Error(t, err)
}

func TestQuote_Validate(t *testing.T) {
	q := &Quote{FromAmount: "1000", ToAmount: "990", ToAmountMin: "985"}
	assert.NoError(t, q.Validate())

	q.ToAmountMin = "991"
	assert.Error(t, q.Validate())

	q.ToAmountMin = "1.5"
	assert.Error(t, q.Validate())

	q = &Quote{FromAmount: "0", ToAmount: "1", ToAmountMin: "1"}
	assert.Error(t, q.Validate())
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
