package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	storagetest.RunLedger(t, NewLedger(), "mem")
}

func TestAssets(t *testing.T) {
	storagetest.RunAssets(t, NewAssets(), 137)
}

func TestLedger_ConcurrentTerminalAppliesOnce(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Create(ctx, storagetest.Record("0xrace", time.Now())))

	var applied int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.UpdateTerminal(ctx, "0xrace", models.StatusDone, models.TerminalFields{})
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&applied, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), applied)
}

func TestLedger_ReturnsCopies(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Create(ctx, storagetest.Record("0xcopy", time.Now())))

	got, err := l.Get(ctx, "0xcopy")
	require.NoError(t, err)
	got.Status = models.StatusFailed

	again, err := l.Get(ctx, "0xcopy")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)
}
