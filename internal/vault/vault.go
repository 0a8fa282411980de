package vault

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

var (
	// ErrInvalidPin is returned for any authentication failure during unlock.
	ErrInvalidPin = errors.New("vault: invalid pin")
	// ErrUnavailable means no key is provisioned for the requested chain.
	ErrUnavailable = errors.New("vault: no key for chain")
	// ErrNotProvisioned means the store holds no sealed material at all.
	ErrNotProvisioned = errors.New("vault: not provisioned")
)

// Params are the scrypt cost parameters.
type Params struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

// DefaultParams is the production KDF cost.
var DefaultParams = Params{N: 1 << 15, R: 8, P: 1}

const (
	keyLen  = 32
	saltLen = 16
)

// Blob is one chain's sealed private key.
type Blob struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Sealed is everything persisted for a vault. It never contains plaintext.
type Sealed struct {
	Salt   []byte          `json:"salt"`
	Params Params          `json:"params"`
	Blobs  map[string]Blob `json:"blobs"`
}

// BlobStore persists sealed material. Load returns ErrNotProvisioned when empty.
type BlobStore interface {
	Load(ctx context.Context) (*Sealed, error)
	Save(ctx context.Context, s *Sealed) error
}

// Config holds vault settings.
type Config struct {
	Store  BlobStore
	Params Params
	Logger *logrus.Logger
}

// Vault decrypts PIN-protected keys on demand. It holds no plaintext between calls.
type Vault struct {
	store  BlobStore
	params Params
	logger *logrus.Logger
}

func New(cfg Config) (*Vault, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("vault: store is nil")
	}
	if cfg.Params.N == 0 {
		cfg.Params = DefaultParams
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Vault{store: cfg.Store, params: cfg.Params, logger: cfg.Logger}, nil
}

// Unlock derives the PIN key and opens every sealed blob. The work done does
// not depend on which chain the caller needs, and a missing vault costs the
// same as a wrong PIN.
func (v *Vault) Unlock(ctx context.Context, pin string) (*Keys, error) {
	sealed, err := v.store.Load(ctx)
	missing := errors.Is(err, ErrNotProvisioned)
	if err != nil && !missing {
		return nil, fmt.Errorf("vault: load: %w", err)
	}
	if missing {
		sealed = &Sealed{Salt: make([]byte, saltLen), Params: v.params}
	}

	kek, err := deriveKey(pin, sealed.Salt, sealed.Params)
	if err != nil {
		return nil, err
	}
	defer zero(kek)

	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, fmt.Errorf("vault: cipher: %w", err)
	}

	keys := &Keys{m: make(map[string][]byte, len(sealed.Blobs))}
	failed := false
	for _, chainKey := range sortedKeys(sealed.Blobs) {
		b := sealed.Blobs[chainKey]
		pt, err := aead.Open(nil, b.Nonce, b.Ciphertext, []byte(chainKey))
		if err != nil {
			// Keep going so the cost is independent of which blob failed.
			failed = true
			continue
		}
		keys.m[chainKey] = pt
	}

	if missing || failed || len(sealed.Blobs) == 0 {
		keys.Wipe()
		v.logger.Warn("vault unlock rejected")
		return nil, ErrInvalidPin
	}

	v.logger.WithField("chains", len(keys.m)).Debug("vault unlocked")
	return keys, nil
}

// Seal encrypts the given chain keys under pin and replaces the stored vault.
// The input slices are zeroed once sealed.
func (v *Vault) Seal(ctx context.Context, pin string, secrets map[string][]byte) error {
	defer func() {
		for _, b := range secrets {
			zero(b)
		}
	}()
	if len(pin) < 4 {
		return fmt.Errorf("vault: pin must be at least 4 characters")
	}
	if len(secrets) == 0 {
		return fmt.Errorf("vault: nothing to seal")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("vault: salt: %w", err)
	}
	kek, err := deriveKey(pin, salt, v.params)
	if err != nil {
		return err
	}
	defer zero(kek)

	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return fmt.Errorf("vault: cipher: %w", err)
	}

	sealed := &Sealed{Salt: salt, Params: v.params, Blobs: make(map[string]Blob, len(secrets))}
	for chainKey, secret := range secrets {
		nonce := make([]byte, aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("vault: nonce: %w", err)
		}
		sealed.Blobs[chainKey] = Blob{
			Nonce:      nonce,
			Ciphertext: aead.Seal(nil, nonce, secret, []byte(chainKey)),
		}
	}

	if err := v.store.Save(ctx, sealed); err != nil {
		return fmt.Errorf("vault: save: %w", err)
	}
	v.logger.WithField("chains", len(sealed.Blobs)).Info("vault sealed")
	return nil
}

// Provisioned reports whether sealed material exists.
func (v *Vault) Provisioned(ctx context.Context) (bool, error) {
	_, err := v.store.Load(ctx)
	if errors.Is(err, ErrNotProvisioned) {
		return false, nil
	}
	return err == nil, err
}

func deriveKey(pin string, salt []byte, p Params) ([]byte, error) {
	if p.N == 0 {
		p = DefaultParams
	}
	k, err := scrypt.Key([]byte(pin), salt, p.N, p.R, p.P, keyLen)
	if err != nil {
		return nil, fmt.Errorf("vault: kdf: %w", err)
	}
	return k, nil
}

func sortedKeys(m map[string]Blob) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
