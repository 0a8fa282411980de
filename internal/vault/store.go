package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// MemoryStore keeps sealed material in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	sealed *Sealed
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(_ context.Context) (*Sealed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed == nil {
		return nil, ErrNotProvisioned
	}
	return s.sealed, nil
}

func (s *MemoryStore) Save(_ context.Context, sealed *Sealed) error {
	s.mu.Lock()
	s.sealed = sealed
	s.mu.Unlock()
	return nil
}

// FileStore keeps sealed material in a single JSON file readable only by
// the owner. Writes go through a temp file and rename.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (s *FileStore) Load(_ context.Context) (*Sealed, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotProvisioned
	}
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", s.path, err)
	}
	var sealed Sealed
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, fmt.Errorf("vault: decode %s: %w", s.path, err)
	}
	return &sealed, nil
}

func (s *FileStore) Save(_ context.Context, sealed *Sealed) error {
	data, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("vault: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".vault-*")
	if err != nil {
		return fmt.Errorf("vault: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("vault: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("vault: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vault: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("vault: rename: %w", err)
	}
	return nil
}
