package vault

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
)

// ParseSolanaKey accepts a base58-encoded 64-byte key or a solana-keygen JSON array.
func ParseSolanaKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("vault: invalid JSON private key: %w", err)
		}
		b := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("vault: invalid byte at %d", i)
			}
			b[i] = byte(v)
		}
		if len(b) != ed25519.PrivateKeySize {
			zero(b)
			return nil, fmt.Errorf("vault: expected %d bytes, got %d", ed25519.PrivateKeySize, len(b))
		}
		return b, nil
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("vault: invalid base58 private key")
	}
	if len(raw) != ed25519.PrivateKeySize {
		zero(raw)
		return nil, fmt.Errorf("vault: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return raw, nil
}

// ParseEVMKey accepts a hex secp256k1 key with or without 0x.
func ParseEVMKey(s string) ([]byte, error) {
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("vault: invalid EVM private key")
	}
	return crypto.FromECDSA(pk), nil
}
