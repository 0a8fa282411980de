package storage

import (
	"context"
	"errors"

	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
)

var (
	ErrNotFound         = errors.New("storage: record not found")
	ErrDuplicate        = errors.New("storage: record already exists")
	ErrTerminalConflict = errors.New("storage: record already in a different terminal state")
	ErrInvalidStatus    = errors.New("storage: target status is not terminal")
)

// SwapLedger persists swap records keyed by origin transaction id.
type SwapLedger interface {
	// Create stores a new record. ErrDuplicate if the txID exists.
	Create(ctx context.Context, rec *models.SwapRecord) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, txID string) (*models.SwapRecord, error)

	// UpdatePending records progress on a PENDING record. Terminal records
	// are left unchanged.
	UpdatePending(ctx context.Context, txID, substatus, message string) error

	// UpdateTerminal moves a PENDING record to DONE or FAILED. applied is
	// true only for the call that performed the transition. Repeating the
	// same terminal status is a no-op; a different one is ErrTerminalConflict.
	UpdateTerminal(ctx context.Context, txID string, status models.Status, f models.TerminalFields) (applied bool, err error)

	// List returns up to limit records, most recent first.
	List(ctx context.Context, limit int) ([]*models.SwapRecord, error)

	// ListPending returns every record still PENDING.
	ListPending(ctx context.Context) ([]*models.SwapRecord, error)
}

// AssetRegistry tracks tokens the user holds per chain.
type AssetRegistry interface {
	// Add registers an asset. added is false if it was already known.
	Add(ctx context.Context, a models.KnownAsset) (added bool, err error)

	List(ctx context.Context, chainID int64) ([]models.KnownAsset, error)
}

// BalanceRefresher asks the balance subsystem to re-read a chain.
type BalanceRefresher interface {
	Refresh(ctx context.Context, chainID int64) error
}

// OutcomeObserver is notified once per applied terminal transition.
type OutcomeObserver interface {
	OnSettled(ctx context.Context, rec *models.SwapRecord) error
}

// ValidateTerminal reports whether moving from current to target is allowed.
// It returns applied=false, nil for a repeat of the same terminal status.
func ValidateTerminal(current, target models.Status) (apply bool, err error) {
	if !target.Terminal() {
		return false, ErrInvalidStatus
	}
	switch {
	case current == models.StatusPending:
		return true, nil
	case current == target:
		return false, nil
	default:
		return false, ErrTerminalConflict
	}
}
