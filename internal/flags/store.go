package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// hashKey holds every flag as one field of a single Redis hash, so listing
// and the execution gate are one round trip each.
const hashKey = "swapflags"

var keyRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// Store persists execution switches in Redis.
type Store struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewStore(client redis.Cmdable) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	return &Store{client: client, now: time.Now}, nil
}

func ValidateKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid flag key %q", key)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, key string, value bool) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	f := &Flag{Key: key, Value: value, UpdatedAt: s.now().UTC()}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal flag: %w", err)
	}
	if err := s.client.HSet(ctx, hashKey, key, b).Err(); err != nil {
		return nil, fmt.Errorf("upsert flag %s: %w", key, err)
	}
	return f, nil
}

func (s *Store) Get(ctx context.Context, key string) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	raw, err := s.client.HGet(ctx, hashKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flag %s: %w", key, err)
	}
	return decode(key, raw)
}

// List returns every flag ordered by key. Entries that fail to decode are
// skipped.
func (s *Store) List(ctx context.Context) ([]*Flag, error) {
	all, err := s.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	out := make([]*Flag, 0, len(all))
	for key, raw := range all {
		f, err := decode(key, raw)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes key. Deleting a missing flag returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	n, err := s.client.HDel(ctx, hashKey, key).Result()
	if err != nil {
		return fmt.Errorf("delete flag %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Allowed reports whether new swaps may start on chainKey. Missing flags
// mean allowed.
func (s *Store) Allowed(ctx context.Context, chainKey string) (bool, error) {
	chainFlag := ChainPauseKey(chainKey)
	if err := ValidateKey(chainFlag); err != nil {
		return false, err
	}
	vals, err := s.client.HMGet(ctx, hashKey, GlobalPauseKey, chainFlag).Result()
	if err != nil {
		return false, fmt.Errorf("read pause flags: %w", err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		f, err := decode([]string{GlobalPauseKey, chainFlag}[i], raw)
		if err != nil {
			return false, err
		}
		if f.Value {
			return false, nil
		}
	}
	return true, nil
}

// SetChainPaused toggles the pause flag for one chain.
func (s *Store) SetChainPaused(ctx context.Context, chainKey string, paused bool) (*Flag, error) {
	return s.Upsert(ctx, ChainPauseKey(chainKey), paused)
}

func decode(key, raw string) (*Flag, error) {
	var f Flag
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("unmarshal flag %s: %w", key, err)
	}
	return &f, nil
}
