package server

import (
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK       bool     `json:"ok"`
	Tracking []string `json:"tracking"` // transaction ids with an active polling loop
}

// ExecuteRequest carries a previously fetched quote and the vault PIN.
// The PIN is never logged or echoed back.
type ExecuteRequest struct {
	Quote *models.Quote `json:"quote"`
	PIN   string        `json:"pin"`
}

// ExecuteResponse describes a broadcast swap.
type ExecuteResponse struct {
	TxID         string             `json:"tx_id"`
	ApprovalTxID string             `json:"approval_tx_id,omitempty"`
	Record       *models.SwapRecord `json:"record"`
	Tracking     bool               `json:"tracking"`
	TookMs       int64              `json:"took_ms"`
}

// TerminalRequest moves a PENDING record to DONE or FAILED.
type TerminalRequest struct {
	Status           models.Status `json:"status"`
	Substatus        string        `json:"substatus"`
	SubstatusMessage string        `json:"substatus_message"`
	ReceivingTxID    string        `json:"receiving_tx_id"`
	ToAmount         string        `json:"to_amount"`
	CompletedAt      *time.Time    `json:"completed_at"`
}

// TerminalResponse reports whether the call performed the transition.
type TerminalResponse struct {
	Applied bool               `json:"applied"`
	Record  *models.SwapRecord `json:"record"`
}

// TrackResponse reports the state of a polling loop.
type TrackResponse struct {
	TxID  string            `json:"tx_id"`
	State string            `json:"state"`
	Last  models.SwapStatus `json:"last"`
}

// ReconcileResponse reports how many PENDING records were resumed.
type ReconcileResponse struct {
	Resumed int `json:"resumed"`
}

// ExplainResponse is a plain-language account of a failed swap.
type ExplainResponse struct {
	TxID        string `json:"tx_id"`
	Explanation string `json:"explanation"`
	Generated   bool   `json:"generated"` // true when the text came from the language model
}

// AssetRequest registers a token for local listing.
type AssetRequest struct {
	Chain    string `json:"chain"` // key or numeric id
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// ChainPauseRequest toggles execution on one chain.
type ChainPauseRequest struct {
	Paused bool `json:"paused"`
}

// FlagUpsertRequest represents a request to create or update a feature flag
type FlagUpsertRequest struct {
	Key   string `json:"key"`   // Flag key (must match regex pattern)
	Value bool   `json:"value"` // Flag value (true/false)
}

// FlagUpdateRequest represents a request to update an existing feature flag
type FlagUpdateRequest struct {
	Value bool `json:"value"` // New flag value
}

// AIAskRequest represents a natural language query request
type AIAskRequest struct {
	Question string `json:"question"` // Natural language question about settled swaps
	Model    string `json:"model"`    // Optional AI model override
}

// AIAskResponse represents the response from an AI query
type AIAskResponse struct {
	SQL    string `json:"sql"`     // Generated SQL query
	Answer string `json:"answer"`  // Natural language answer
	TookMs int64  `json:"took_ms"` // Execution time in milliseconds
}
