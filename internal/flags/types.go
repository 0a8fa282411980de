package flags

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("flag not found")

// Flag is a runtime switch. A true value on a pause key blocks new swaps.
type Flag struct {
	Key       string    `json:"key"`
	Value     bool      `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	// GlobalPauseKey stops execution on every chain.
	GlobalPauseKey = "execution.paused"
	chainPausePre  = "chain."
	chainPauseSuf  = ".paused"
)

// ChainPauseKey is the flag that stops execution on one chain.
func ChainPauseKey(chainKey string) string {
	return chainPausePre + chainKey + chainPauseSuf
}
