package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Token is a routable asset on a specific chain.
type Token struct {
	ChainID  int64   `json:"chain_id"`
	Address  string  `json:"address"`
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Decimals int32   `json:"decimals"`
	LogoURI  string  `json:"logo_uri,omitempty"`
	PriceUSD float64 `json:"price_usd,omitempty"`
}

// Key identifies a token by chain and case-folded address.
func (t Token) Key() string {
	return fmt.Sprintf("%d:%s", t.ChainID, strings.ToLower(t.Address))
}

// Equal compares tokens by chain and address only.
func (t Token) Equal(o Token) bool {
	return t.ChainID == o.ChainID && strings.EqualFold(t.Address, o.Address)
}

// Format renders an amount in smallest units as a decimal string.
func (t Token) Format(amount string) string {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return amount
	}
	return d.Shift(-t.Decimals).String()
}

// ToBaseUnits converts a human amount ("1.5") to smallest units ("1500000").
func (t Token) ToBaseUnits(human string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(human))
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %w", human, err)
	}
	if !d.IsPositive() {
		return "", fmt.Errorf("amount must be positive")
	}
	units := d.Shift(t.Decimals)
	if !units.Equal(units.Truncate(0)) {
		return "", fmt.Errorf("amount %s has more than %d decimals", human, t.Decimals)
	}
	return units.String(), nil
}

// ValueUSD estimates the USD value of an amount in smallest units.
func (t Token) ValueUSD(amount string) decimal.Decimal {
	d, err := decimal.NewFromString(amount)
	if err != nil || t.PriceUSD <= 0 {
		return decimal.Zero
	}
	return d.Shift(-t.Decimals).Mul(decimal.NewFromFloat(t.PriceUSD))
}

// KnownAsset is a token the user holds or has received and wants listed locally.
type KnownAsset struct {
	ChainID  int64     `json:"chain_id" db:"chain_id"`
	Address  string    `json:"address" db:"address"`
	Symbol   string    `json:"symbol" db:"symbol"`
	Decimals int32     `json:"decimals" db:"decimals"`
	AddedAt  time.Time `json:"added_at" db:"added_at"`
}

// AssetFromToken builds a KnownAsset for registration.
func AssetFromToken(t Token) KnownAsset {
	return KnownAsset{ChainID: t.ChainID, Address: t.Address, Symbol: t.Symbol, Decimals: t.Decimals}
}
