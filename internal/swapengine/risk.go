package swapengine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/constants"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/shopspring/decimal"
)

// RiskConfig defines pre-execution limits applied to a quote.
type RiskConfig struct {
	// Per-swap USD cap, zero disables. Unpriced tokens count as zero.
	MaxSwapValueUSD float64

	// Rolling 24h USD cap, zero disables.
	DailyLimitUSD float64

	MaxSlippageBps uint16

	// Quotes older than this are refused.
	QuoteMaxAge time.Duration

	// Symbol whitelist (empty = allow all)
	AllowedTokens []string
}

// DefaultRiskConfig returns conservative risk settings
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxSlippageBps: constants.MaxSlippageBps,
		QuoteMaxAge:    constants.DefaultQuoteMaxAge,
	}
}

// RiskManager enforces risk limits
type RiskManager struct {
	config       RiskConfig
	dailyTracker *DailyLimitTracker
	now          func() time.Time
}

// NewRiskManager creates a risk manager with the given config
func NewRiskManager(config RiskConfig) *RiskManager {
	return &RiskManager{
		config:       config,
		dailyTracker: NewDailyLimitTracker(),
		now:          time.Now,
	}
}

// CheckQuote validates a quote against all risk rules. A rejection is
// reported in the result, not as an error.
func (rm *RiskManager) CheckQuote(q *models.Quote) *RiskCheckResult {
	result := &RiskCheckResult{
		Allowed:         true,
		MaxSwapValueUSD: rm.config.MaxSwapValueUSD,
		DailyLimitUSD:   rm.config.DailyLimitUSD,
	}

	// 1. Freshness
	if rm.config.QuoteMaxAge > 0 && !q.FetchedAt.IsZero() {
		if age := rm.now().Sub(q.FetchedAt); age > rm.config.QuoteMaxAge {
			result.Allowed = false
			result.QuoteExpired = true
			result.Reason = fmt.Sprintf("quote is %s old, max %s", age.Truncate(time.Second), rm.config.QuoteMaxAge)
			return result
		}
	}

	// 2. Slippage
	if rm.config.MaxSlippageBps > 0 && q.SlippageBps > rm.config.MaxSlippageBps {
		result.Allowed = false
		result.Reason = fmt.Sprintf("slippage %d bps exceeds max %d bps", q.SlippageBps, rm.config.MaxSlippageBps)
		return result
	}

	// 3. Token whitelist
	if !rm.isTokenAllowed(q.FromToken.Symbol) || !rm.isTokenAllowed(q.ToToken.Symbol) {
		result.Allowed = false
		result.TokenNotWhitelisted = true
		result.Reason = fmt.Sprintf("token not whitelisted: %s or %s", q.FromToken.Symbol, q.ToToken.Symbol)
		return result
	}

	// 4. Per-swap value
	value := q.FromToken.ValueUSD(q.FromAmount)
	result.SwapValueUSD, _ = value.Float64()
	if rm.config.MaxSwapValueUSD > 0 && value.GreaterThan(decimal.NewFromFloat(rm.config.MaxSwapValueUSD)) {
		result.Allowed = false
		result.ExceedsMaxSwapValue = true
		result.Reason = fmt.Sprintf("swap value $%s exceeds max $%.2f per swap", value.StringFixed(2), rm.config.MaxSwapValueUSD)
		return result
	}

	// 5. Daily limit
	used := rm.dailyTracker.GetDailyUsage()
	result.DailyUsedUSD = used
	if rm.config.DailyLimitUSD > 0 {
		result.DailyRemainingUSD = rm.config.DailyLimitUSD - used
		if used+result.SwapValueUSD > rm.config.DailyLimitUSD {
			result.Allowed = false
			result.ExceedsDailyLimit = true
			result.Reason = fmt.Sprintf("daily limit exceeded: used $%.2f + $%.2f > $%.2f",
				used, result.SwapValueUSD, rm.config.DailyLimitUSD)
			return result
		}
	}

	return result
}

// RecordSwap records a broadcast swap for daily limit tracking
func (rm *RiskManager) RecordSwap(q *models.Quote) {
	v, _ := q.FromToken.ValueUSD(q.FromAmount).Float64()
	rm.dailyTracker.RecordSwap(v)
}

// Status returns current limits and usage.
func (rm *RiskManager) Status() RiskStatus {
	used := rm.dailyTracker.GetDailyUsage()
	st := RiskStatus{
		MaxSwapValueUSD: rm.config.MaxSwapValueUSD,
		DailyLimitUSD:   rm.config.DailyLimitUSD,
		DailyUsedUSD:    used,
		MaxSlippageBps:  rm.config.MaxSlippageBps,
		QuoteMaxAge:     rm.config.QuoteMaxAge,
		AllowedTokens:   rm.config.AllowedTokens,
	}
	if rm.config.DailyLimitUSD > 0 {
		st.DailyRemainingUSD = rm.config.DailyLimitUSD - used
	}
	return st
}

func (rm *RiskManager) isTokenAllowed(symbol string) bool {
	if len(rm.config.AllowedTokens) == 0 {
		return true
	}
	for _, allowed := range rm.config.AllowedTokens {
		if strings.EqualFold(allowed, symbol) {
			return true
		}
	}
	return false
}

// DailyLimitTracker tracks rolling 24-hour usage
type DailyLimitTracker struct {
	mu    sync.Mutex
	swaps []usage
	now   func() time.Time
}

type usage struct {
	timestamp time.Time
	valueUSD  float64
}

func NewDailyLimitTracker() *DailyLimitTracker {
	return &DailyLimitTracker{now: time.Now}
}

func (t *DailyLimitTracker) RecordSwap(valueUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.swaps = append(t.swaps, usage{timestamp: t.now(), valueUSD: valueUSD})
	t.cleanup()
}

// GetDailyUsage sums usage in the last 24 hours
func (t *DailyLimitTracker) GetDailyUsage() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanup()

	total := 0.0
	for _, s := range t.swaps {
		total += s.valueUSD
	}
	return total
}

// cleanup drops entries older than 24 hours. Caller holds mu.
func (t *DailyLimitTracker) cleanup() {
	cutoff := t.now().Add(-24 * time.Hour)
	kept := t.swaps[:0]
	for _, s := range t.swaps {
		if s.timestamp.After(cutoff) {
			kept = append(kept, s)
		}
	}
	t.swaps = kept
}
