package models

import "time"

// Status is the persisted lifecycle state of a swap.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusDone    Status = "DONE"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// PollStatus is the aggregator's view of a swap at one point in time.
type PollStatus string

const (
	PollNotFound PollStatus = "NOT_FOUND"
	PollPending  PollStatus = "PENDING"
	PollDone     PollStatus = "DONE"
	PollFailed   PollStatus = "FAILED"
	// PollUnknown means the poll produced no new information.
	PollUnknown PollStatus = "UNKNOWN"
)

// SwapRecord is the locally persisted history entry for a submitted swap.
type SwapRecord struct {
	TxID             string     `json:"tx_id" db:"tx_id"`
	FromChain        int64      `json:"from_chain" db:"from_chain"`
	ToChain          int64      `json:"to_chain" db:"to_chain"`
	FromToken        Token      `json:"from_token" db:"-"`
	ToToken          Token      `json:"to_token" db:"-"`
	FromAmount       string     `json:"from_amount" db:"from_amount"`
	ToAmount         string     `json:"to_amount" db:"to_amount"`
	Status           Status     `json:"status" db:"status"`
	Substatus        string     `json:"substatus,omitempty" db:"substatus"`
	SubstatusMessage string     `json:"substatus_message,omitempty" db:"substatus_message"`
	ReceivingTxID    string     `json:"receiving_tx_id,omitempty" db:"receiving_tx_id"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// NewPendingRecord builds the ledger entry written right after a successful broadcast.
func NewPendingRecord(txID string, q *Quote, now time.Time) *SwapRecord {
	return &SwapRecord{
		TxID:       txID,
		FromChain:  q.FromChain,
		ToChain:    q.ToChain,
		FromToken:  q.FromToken,
		ToToken:    q.ToToken,
		FromAmount: q.FromAmount,
		ToAmount:   q.ToAmount,
		Status:     StatusPending,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
}

// TerminalFields carries the data recorded when a swap settles.
type TerminalFields struct {
	Substatus        string
	SubstatusMessage string
	ReceivingTxID    string
	ToAmount         string
	CompletedAt      time.Time
}

// SwapStatus is a transient poll result; it is never persisted as-is.
type SwapStatus struct {
	Status           PollStatus `json:"status"`
	Substatus        string     `json:"substatus,omitempty"`
	SubstatusMessage string     `json:"substatus_message,omitempty"`
	ReceivingChainID int64      `json:"receiving_chain_id,omitempty"`
	ReceivingTxID    string     `json:"receiving_tx_id,omitempty"`
	ReceivingAmount  string     `json:"receiving_amount,omitempty"`
	ReceivingToken   *Token     `json:"receiving_token,omitempty"`
}

// SignedExecution is a ready-to-broadcast transaction. It lives only in memory.
type SignedExecution struct {
	ChainID      int64
	Raw          []byte
	TxID         string
	ApprovalTxID string
}
