package swapengine

import (
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/settlement"
)

// ExecuteRequest is a user-confirmed quote plus the PIN that unlocks the vault.
type ExecuteRequest struct {
	Quote *models.Quote
	PIN   string
}

// ExecuteResult describes a broadcast swap.
type ExecuteResult struct {
	TxID         string
	ApprovalTxID string
	Record       *models.SwapRecord

	// Handle is nil only when the ledger write failed after broadcast, in
	// which case nothing is tracking the swap.
	Handle *settlement.Handle

	StartedAt   time.Time
	SignedAt    time.Time
	BroadcastAt time.Time
}

// RiskCheckResult contains risk validation results
type RiskCheckResult struct {
	Allowed bool
	Reason  string

	SwapValueUSD      float64
	MaxSwapValueUSD   float64
	DailyUsedUSD      float64
	DailyLimitUSD     float64
	DailyRemainingUSD float64

	ExceedsMaxSwapValue bool
	ExceedsDailyLimit   bool
	TokenNotWhitelisted bool
	QuoteExpired        bool
}

// RiskStatus reports configured limits and current usage.
type RiskStatus struct {
	MaxSwapValueUSD   float64       `json:"max_swap_value_usd"`
	DailyLimitUSD     float64       `json:"daily_limit_usd"`
	DailyUsedUSD      float64       `json:"daily_used_usd"`
	DailyRemainingUSD float64       `json:"daily_remaining_usd"`
	MaxSlippageBps    uint16        `json:"max_slippage_bps"`
	QuoteMaxAge       time.Duration `json:"quote_max_age"`
	AllowedTokens     []string      `json:"allowed_tokens,omitempty"`
}
