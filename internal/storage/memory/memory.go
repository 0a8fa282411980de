// Package memory holds in-process ledger and asset registry implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage"
)

type Ledger struct {
	mu      sync.RWMutex
	records map[string]*models.SwapRecord
	now     func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]*models.SwapRecord), now: time.Now}
}

func (l *Ledger) Create(_ context.Context, rec *models.SwapRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[rec.TxID]; ok {
		return storage.ErrDuplicate
	}
	cp := *rec
	l.records[rec.TxID] = &cp
	return nil
}

func (l *Ledger) Get(_ context.Context, txID string) (*models.SwapRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[txID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (l *Ledger) UpdatePending(_ context.Context, txID, substatus, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[txID]
	if !ok {
		return storage.ErrNotFound
	}
	if rec.Status != models.StatusPending {
		return nil
	}
	rec.Substatus = substatus
	rec.SubstatusMessage = message
	rec.UpdatedAt = l.now().UTC()
	return nil
}

func (l *Ledger) UpdateTerminal(_ context.Context, txID string, status models.Status, f models.TerminalFields) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[txID]
	if !ok {
		return false, storage.ErrNotFound
	}
	apply, err := storage.ValidateTerminal(rec.Status, status)
	if err != nil || !apply {
		return false, err
	}

	now := l.now().UTC()
	completed := f.CompletedAt
	if completed.IsZero() {
		completed = now
	}
	rec.Status = status
	rec.Substatus = f.Substatus
	rec.SubstatusMessage = f.SubstatusMessage
	rec.ReceivingTxID = f.ReceivingTxID
	if f.ToAmount != "" {
		rec.ToAmount = f.ToAmount
	}
	rec.UpdatedAt = now
	rec.CompletedAt = &completed
	return true, nil
}

func (l *Ledger) List(_ context.Context, limit int) ([]*models.SwapRecord, error) {
	l.mu.RLock()
	out := make([]*models.SwapRecord, 0, len(l.records))
	for _, rec := range l.records {
		cp := *rec
		out = append(out, &cp)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TxID > out[j].TxID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *Ledger) ListPending(ctx context.Context) ([]*models.SwapRecord, error) {
	all, err := l.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if rec.Status == models.StatusPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Assets is an in-process AssetRegistry.
type Assets struct {
	mu     sync.RWMutex
	assets map[string]models.KnownAsset
}

func NewAssets() *Assets {
	return &Assets{assets: make(map[string]models.KnownAsset)}
}

func (a *Assets) Add(_ context.Context, asset models.KnownAsset) (bool, error) {
	key := assetKey(asset.ChainID, asset.Address)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.assets[key]; ok {
		return false, nil
	}
	if asset.AddedAt.IsZero() {
		asset.AddedAt = time.Now().UTC()
	}
	a.assets[key] = asset
	return true, nil
}

func (a *Assets) List(_ context.Context, chainID int64) ([]models.KnownAsset, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.KnownAsset, 0)
	for _, asset := range a.assets {
		if asset.ChainID == chainID {
			out = append(out, asset)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func assetKey(chainID int64, address string) string {
	return models.Token{ChainID: chainID, Address: address}.Key()
}

// NopRefresher discards balance refresh requests.
type NopRefresher struct{}

func (NopRefresher) Refresh(context.Context, int64) error { return nil }

var (
	_ storage.SwapLedger       = (*Ledger)(nil)
	_ storage.AssetRegistry    = (*Assets)(nil)
	_ storage.BalanceRefresher = NopRefresher{}
)
