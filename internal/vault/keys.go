package vault

import (
	"fmt"
	"sync"
)

// Keys is decrypted key material for one signing operation. The owner must
// call Wipe as soon as signing completes.
type Keys struct {
	mu    sync.Mutex
	m     map[string][]byte
	wiped bool
}

// NewKeys wraps raw key bytes. Intended for tests and in-process imports.
func NewKeys(m map[string][]byte) *Keys {
	cp := make(map[string][]byte, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return &Keys{m: cp}
}

// For returns the key bytes for a vault slot. The slice aliases internal
// storage and is zeroed by Wipe.
func (k *Keys) For(slot string) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.wiped {
		return nil, fmt.Errorf("vault: keys already wiped")
	}
	b, ok := k.m[slot]
	if !ok || len(b) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, slot)
	}
	return b, nil
}

// Wipe overwrites every key byte with zero. Safe to call more than once.
func (k *Keys) Wipe() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, b := range k.m {
		zero(b)
	}
	k.wiped = true
}

func (k *Keys) Wiped() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.wiped
}

func (k *Keys) String() string { return "vault.Keys{redacted}" }

func (k *Keys) GoString() string { return k.String() }

func (k *Keys) MarshalJSON() ([]byte, error) { return []byte(`"redacted"`), nil }
