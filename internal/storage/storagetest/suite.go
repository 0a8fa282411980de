// Package storagetest runs the same behavioral checks against every
// SwapLedger and AssetRegistry backend.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Record returns a PENDING record for tests. createdAt orders List output.
func Record(txID string, createdAt time.Time) *models.SwapRecord {
	q := &models.Quote{
		FromChain:  137,
		ToChain:    42161,
		FromToken:  models.Token{ChainID: 137, Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Symbol: "USDC", Decimals: 6},
		ToToken:    models.Token{ChainID: 42161, Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Symbol: "USDC", Decimals: 6},
		FromAmount: "1000000",
		ToAmount:   "998000",
	}
	return models.NewPendingRecord(txID, q, createdAt)
}

// RunLedger exercises a ledger. prefix keeps ids unique across runs against
// shared backends.
func RunLedger(t *testing.T, l storage.SwapLedger, prefix string) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	id := func(s string) string { return fmt.Sprintf("%s-%s", prefix, s) }

	t.Run("create and get", func(t *testing.T) {
		rec := Record(id("a"), base)
		require.NoError(t, l.Create(ctx, rec))

		got, err := l.Get(ctx, id("a"))
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Equal(t, "USDC", got.ToToken.Symbol)
		assert.Equal(t, int64(42161), got.ToToken.ChainID)
		assert.Equal(t, "1000000", got.FromAmount)
		assert.Nil(t, got.CompletedAt)

		assert.ErrorIs(t, l.Create(ctx, rec), storage.ErrDuplicate)
		_, err = l.Get(ctx, id("missing"))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("pending progress", func(t *testing.T) {
		require.NoError(t, l.Create(ctx, Record(id("b"), base.Add(time.Second))))
		require.NoError(t, l.UpdatePending(ctx, id("b"), "WAIT_DESTINATION_TRANSACTION", "bridging"))

		got, err := l.Get(ctx, id("b"))
		require.NoError(t, err)
		assert.Equal(t, "WAIT_DESTINATION_TRANSACTION", got.Substatus)
		assert.Equal(t, models.StatusPending, got.Status)

		assert.ErrorIs(t, l.UpdatePending(ctx, id("missing"), "", ""), storage.ErrNotFound)
	})

	t.Run("terminal transitions", func(t *testing.T) {
		require.NoError(t, l.Create(ctx, Record(id("c"), base.Add(2*time.Second))))

		_, err := l.UpdateTerminal(ctx, id("c"), models.StatusPending, models.TerminalFields{})
		assert.ErrorIs(t, err, storage.ErrInvalidStatus)

		applied, err := l.UpdateTerminal(ctx, id("c"), models.StatusDone, models.TerminalFields{
			Substatus:     "COMPLETED",
			ReceivingTxID: "0xrecv",
			ToAmount:      "997000",
		})
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = l.UpdateTerminal(ctx, id("c"), models.StatusDone, models.TerminalFields{})
		require.NoError(t, err)
		assert.False(t, applied, "repeat is a no-op")

		_, err = l.UpdateTerminal(ctx, id("c"), models.StatusFailed, models.TerminalFields{})
		assert.ErrorIs(t, err, storage.ErrTerminalConflict)

		got, err := l.Get(ctx, id("c"))
		require.NoError(t, err)
		assert.Equal(t, models.StatusDone, got.Status)
		assert.Equal(t, "0xrecv", got.ReceivingTxID)
		assert.Equal(t, "997000", got.ToAmount)
		require.NotNil(t, got.CompletedAt)

		require.NoError(t, l.UpdatePending(ctx, id("c"), "LATE", "late"))
		got, err = l.Get(ctx, id("c"))
		require.NoError(t, err)
		assert.Equal(t, models.StatusDone, got.Status)
		assert.Equal(t, "COMPLETED", got.Substatus)

		_, err = l.UpdateTerminal(ctx, id("missing"), models.StatusDone, models.TerminalFields{})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list order and pending filter", func(t *testing.T) {
		recs, err := l.List(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, id("c"), recs[0].TxID)
		assert.Equal(t, id("b"), recs[1].TxID)

		pending, err := l.ListPending(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(pending))
		for _, r := range pending {
			ids = append(ids, r.TxID)
		}
		assert.Contains(t, ids, id("a"))
		assert.Contains(t, ids, id("b"))
		assert.NotContains(t, ids, id("c"))
	})
}

// RunAssets exercises an asset registry. chainID should be unique per run
// against shared backends.
func RunAssets(t *testing.T, r storage.AssetRegistry, chainID int64) {
	ctx := context.Background()
	asset := models.KnownAsset{ChainID: chainID, Address: "0xAbC0000000000000000000000000000000000001", Symbol: "ABC", Decimals: 18}

	added, err := r.Add(ctx, asset)
	require.NoError(t, err)
	assert.True(t, added)

	asset.Address = "0xabc0000000000000000000000000000000000001"
	added, err = r.Add(ctx, asset)
	require.NoError(t, err)
	assert.False(t, added, "address match is case-insensitive")

	list, err := r.List(ctx, chainID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ABC", list[0].Symbol)
	assert.False(t, list[0].AddedAt.IsZero())

	list, err = r.List(ctx, chainID+1)
	require.NoError(t, err)
	assert.Empty(t, list)
}
