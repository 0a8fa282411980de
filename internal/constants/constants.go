package constants

import (
	"fmt"
	"time"
)

// Redis keys
const (
	RedisKeySwapPrefix   = "swaps:record:"
	RedisKeySwapIndex    = "swaps:index"
	RedisKeySwapPending  = "swaps:pending"
	RedisKeyAssetsPrefix = "assets:"
	RedisKeyVaultSealed  = "vault:sealed"
)

// Redis Pub/Sub channels
const (
	PubSubChannelSwapStatus     = "swaps:status"
	PubSubChannelBalancesPrefix = "balances:refresh:"
)

// Settlement polling
const (
	DefaultPollInterval           = 10 * time.Second
	DefaultPollTimeout            = 15 * time.Second
	DefaultMaxConsecutiveFailures = 60
)

// Optimistic transaction retries for WATCH/MULTI updates
const MaxRedisTxRetries = 8

// Quotes
const (
	DefaultSlippageBps = 50
	MaxSlippageBps     = 5000
	DefaultQuoteMaxAge = 2 * time.Minute
)

func SwapKey(txID string) string { return RedisKeySwapPrefix + txID }

func AssetsKey(chainID int64) string { return fmt.Sprintf("%s%d", RedisKeyAssetsPrefix, chainID) }

func BalancesChannel(chainID int64) string {
	return fmt.Sprintf("%s%d", PubSubChannelBalancesPrefix, chainID)
}
