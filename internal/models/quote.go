package models

import (
	"fmt"
	"math/big"
	"time"
)

// FeeCost is a protocol or integrator fee charged by a route.
type FeeCost struct {
	Name      string `json:"name"`
	Amount    string `json:"amount"`
	AmountUSD string `json:"amount_usd,omitempty"`
	Token     Token  `json:"token"`
	Included  bool   `json:"included"`
}

// GasCost is an estimated network fee for executing the route.
type GasCost struct {
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	AmountUSD string `json:"amount_usd,omitempty"`
	Limit     string `json:"limit,omitempty"`
	Token     Token  `json:"token"`
}

// TransactionRequest is the unsigned transaction returned with a quote.
// EVM routes populate To/Data/Value/GasLimit/GasPrice; account-model
// routes carry a base64 serialized transaction in Data.
type TransactionRequest struct {
	ChainID  int64  `json:"chain_id"`
	To       string `json:"to,omitempty"`
	From     string `json:"from,omitempty"`
	Data     string `json:"data"`
	Value    string `json:"value,omitempty"`
	GasLimit string `json:"gas_limit,omitempty"`
	GasPrice string `json:"gas_price,omitempty"`
}

// Quote is a normalized, executable route offer.
type Quote struct {
	ID                       string              `json:"id"`
	Tool                     string              `json:"tool,omitempty"`
	FromChain                int64               `json:"from_chain"`
	ToChain                  int64               `json:"to_chain"`
	FromToken                Token               `json:"from_token"`
	ToToken                  Token               `json:"to_token"`
	FromAmount               string              `json:"from_amount"`
	ToAmount                 string              `json:"to_amount"`
	ToAmountMin              string              `json:"to_amount_min"`
	FromAddress              string              `json:"from_address"`
	ToAddress                string              `json:"to_address"`
	ApprovalAddress          string              `json:"approval_address,omitempty"`
	SlippageBps              uint16              `json:"slippage_bps"`
	EstimatedDurationSeconds int64               `json:"estimated_duration_seconds"`
	GasCosts                 []GasCost           `json:"gas_costs"`
	FeeCosts                 []FeeCost           `json:"fee_costs"`
	Transaction              *TransactionRequest `json:"transaction,omitempty"`
	FetchedAt                time.Time           `json:"fetched_at"`
}

// Validate checks the amount invariants every normalized quote must hold.
func (q *Quote) Validate() error {
	from, ok := ParseAmount(q.FromAmount)
	if !ok || from.Sign() <= 0 {
		return fmt.Errorf("fromAmount %q is not a positive integer", q.FromAmount)
	}
	to, ok := ParseAmount(q.ToAmount)
	if !ok {
		return fmt.Errorf("toAmount %q is not a non-negative integer", q.ToAmount)
	}
	floor, ok := ParseAmount(q.ToAmountMin)
	if !ok {
		return fmt.Errorf("toAmountMin %q is not a non-negative integer", q.ToAmountMin)
	}
	if floor.Cmp(to) > 0 {
		return fmt.Errorf("toAmountMin %s exceeds toAmount %s", q.ToAmountMin, q.ToAmount)
	}
	return nil
}

// ParseAmount parses a decimal-string integer amount. Negative values are rejected.
func ParseAmount(s string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}
