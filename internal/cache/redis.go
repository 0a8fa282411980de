package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/constants"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage"
	"github.com/aman-zulfiqar/crosschain-swap/internal/vault"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisConfig holds connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// RedisLedger stores one JSON value per swap, a sorted-set index by
// creation time, and a set of PENDING ids. Terminal updates run inside
// WATCH/MULTI so concurrent writers cannot both apply.
type RedisLedger struct {
	client redis.UniversalClient
	logger *logrus.Logger
	now    func() time.Time
}

func NewRedisLedger(client redis.UniversalClient, logger *logrus.Logger) *RedisLedger {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisLedger{client: client, logger: logger, now: time.Now}
}

func (l *RedisLedger) Create(ctx context.Context, rec *models.SwapRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal swap: %w", err)
	}
	key := constants.SwapKey(rec.TxID)

	return l.watch(ctx, key, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("check swap: %w", err)
		}
		if exists > 0 {
			return storage.ErrDuplicate
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, constants.RedisKeySwapIndex, redis.Z{Score: float64(rec.CreatedAt.UnixNano()), Member: rec.TxID})
			if rec.Status == models.StatusPending {
				pipe.SAdd(ctx, constants.RedisKeySwapPending, rec.TxID)
			}
			return nil
		})
		return err
	})
}

func (l *RedisLedger) Get(ctx context.Context, txID string) (*models.SwapRecord, error) {
	return l.get(ctx, l.client, txID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (l *RedisLedger) get(ctx context.Context, c getter, txID string) (*models.SwapRecord, error) {
	val, err := c.Get(ctx, constants.SwapKey(txID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get swap: %w", err)
	}
	var rec models.SwapRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal swap %s: %w", txID, err)
	}
	return &rec, nil
}

func (l *RedisLedger) UpdatePending(ctx context.Context, txID, substatus, message string) error {
	key := constants.SwapKey(txID)
	return l.watch(ctx, key, func(tx *redis.Tx) error {
		rec, err := l.get(ctx, tx, txID)
		if err != nil {
			return err
		}
		if rec.Status != models.StatusPending {
			return nil
		}
		rec.Substatus = substatus
		rec.SubstatusMessage = message
		rec.UpdatedAt = l.now().UTC()
		return l.put(ctx, tx, rec)
	})
}

func (l *RedisLedger) UpdateTerminal(ctx context.Context, txID string, status models.Status, f models.TerminalFields) (bool, error) {
	key := constants.SwapKey(txID)
	var applied bool
	err := l.watch(ctx, key, func(tx *redis.Tx) error {
		applied = false
		rec, err := l.get(ctx, tx, txID)
		if err != nil {
			return err
		}
		apply, err := storage.ValidateTerminal(rec.Status, status)
		if err != nil || !apply {
			return err
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

		if err := l.put(ctx, tx, rec); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// put writes rec inside the watched transaction.
func (l *RedisLedger) put(ctx context.Context, tx *redis.Tx, rec *models.SwapRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal swap: %w", err)
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, constants.SwapKey(rec.TxID), data, 0)
		if rec.Status.Terminal() {
			pipe.SRem(ctx, constants.RedisKeySwapPending, rec.TxID)
		}
		return nil
	})
	return err
}

// watch runs fn under WATCH key, retrying when another writer touched it.
func (l *RedisLedger) watch(ctx context.Context, key string, fn func(*redis.Tx) error) error {
	for i := 0; i < constants.MaxRedisTxRetries; i++ {
		err := l.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			l.logger.WithField("key", key).Debug("optimistic transaction conflict, retrying")
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: too many concurrent writers", key)
}

func (l *RedisLedger) List(ctx context.Context, limit int) ([]*models.SwapRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := l.client.ZRevRange(ctx, constants.RedisKeySwapIndex, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list swaps: %w", err)
	}
	return l.load(ctx, ids)
}

func (l *RedisLedger) ListPending(ctx context.Context) ([]*models.SwapRecord, error) {
	ids, err := l.client.SMembers(ctx, constants.RedisKeySwapPending).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending swaps: %w", err)
	}
	recs, err := l.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if r.Status == models.StatusPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (l *RedisLedger) load(ctx context.Context, ids []string) ([]*models.SwapRecord, error) {
	out := make([]*models.SwapRecord, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = constants.SwapKey(id)
	}
	vals, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load swaps: %w", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			l.logger.WithField("tx_id", ids[i]).Warn("indexed swap has no record")
			continue
		}
		var rec models.SwapRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal swap %s: %w", ids[i], err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

// RedisAssets keeps one hash per chain keyed by lowercase address.
type RedisAssets struct {
	client redis.Cmdable
}

func NewRedisAssets(client redis.Cmdable) *RedisAssets {
	return &RedisAssets{client: client}
}

func (a *RedisAssets) Add(ctx context.Context, asset models.KnownAsset) (bool, error) {
	if asset.AddedAt.IsZero() {
		asset.AddedAt = time.Now().UTC()
	}
	data, err := json.Marshal(asset)
	if err != nil {
		return false, fmt.Errorf("marshal asset: %w", err)
	}
	added, err := a.client.HSetNX(ctx, constants.AssetsKey(asset.ChainID), strings.ToLower(asset.Address), data).Result()
	if err != nil {
		return false, fmt.Errorf("add asset: %w", err)
	}
	return added, nil
}

func (a *RedisAssets) List(ctx context.Context, chainID int64) ([]models.KnownAsset, error) {
	vals, err := a.client.HGetAll(ctx, constants.AssetsKey(chainID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	out := make([]models.KnownAsset, 0, len(vals))
	for field, v := range vals {
		var asset models.KnownAsset
		if err := json.Unmarshal([]byte(v), &asset); err != nil {
			return nil, fmt.Errorf("unmarshal asset %s: %w", field, err)
		}
		out = append(out, asset)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// VaultStore persists sealed vault material under a single key.
type VaultStore struct {
	client redis.Cmdable
}

func NewVaultStore(client redis.Cmdable) *VaultStore {
	return &VaultStore{client: client}
}

func (s *VaultStore) Load(ctx context.Context) (*vault.Sealed, error) {
	val, err := s.client.Get(ctx, constants.RedisKeyVaultSealed).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, vault.ErrNotProvisioned
	}
	if err != nil {
		return nil, fmt.Errorf("load vault: %w", err)
	}
	var sealed vault.Sealed
	if err := json.Unmarshal(val, &sealed); err != nil {
		return nil, fmt.Errorf("decode vault: %w", err)
	}
	return &sealed, nil
}

func (s *VaultStore) Save(ctx context.Context, sealed *vault.Sealed) error {
	data, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("encode vault: %w", err)
	}
	if err := s.client.Set(ctx, constants.RedisKeyVaultSealed, data, 0).Err(); err != nil {
		return fmt.Errorf("save vault: %w", err)
	}
	return nil
}

var (
	_ storage.SwapLedger    = (*RedisLedger)(nil)
	_ storage.AssetRegistry = (*RedisAssets)(nil)
	_ vault.BlobStore       = (*VaultStore)(nil)
)
