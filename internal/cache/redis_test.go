package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/constants"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage/storagetest"
	"github.com/aman-zulfiqar/crosschain-swap/internal/vault"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestRedisLedger(t *testing.T) {
	client := setupTestRedis(t)
	storagetest.RunLedger(t, NewRedisLedger(client, nil), "redis")
}

func TestRedisLedger_PendingSetFollowsStatus(t *testing.T) {
	client := setupTestRedis(t)
	l := NewRedisLedger(client, nil)
	ctx := context.Background()

	require.NoError(t, l.Create(ctx, storagetest.Record("0xp", time.Now())))
	n, err := client.SCard(ctx, constants.RedisKeySwapPending).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	applied, err := l.UpdateTerminal(ctx, "0xp", models.StatusFailed, models.TerminalFields{SubstatusMessage: "slippage exceeded"})
	require.NoError(t, err)
	assert.True(t, applied)

	n, err = client.SCard(ctx, constants.RedisKeySwapPending).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisAssets(t *testing.T) {
	client := setupTestRedis(t)
	storagetest.RunAssets(t, NewRedisAssets(client), 10)
}

func TestVaultStore(t *testing.T) {
	client := setupTestRedis(t)
	s := NewVaultStore(client)
	ctx := context.Background()

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, vault.ErrNotProvisioned)

	sealed := &vault.Sealed{
		Salt:   []byte("0123456789abcdef"),
		Params: vault.Params{N: 1 << 10, R: 8, P: 1},
		Blobs:  map[string]vault.Blob{"evm": {Nonce: []byte{1, 2, 3}, Ciphertext: []byte{4, 5, 6}}},
	}
	require.NoError(t, s.Save(ctx, sealed))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sealed, got)
}

func TestPubSub_OnSettled(t *testing.T) {
	client := setupTestRedis(t)
	p := NewPubSubManager(client, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, constants.PubSubChannelSwapStatus, constants.BalancesChannel(42161))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	rec := storagetest.Record("0xsettled", time.Now())
	rec.Status = models.StatusDone
	require.NoError(t, p.OnSettled(ctx, rec))
	require.NoError(t, p.Refresh(ctx, 42161))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got models.SwapRecord
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "0xsettled", got.TxID)
	assert.Equal(t, models.StatusDone, got.Status)

	msg, err = sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var ev BalanceRefreshEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	assert.Equal(t, int64(42161), ev.ChainID)
}
