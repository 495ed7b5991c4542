// Package auth implements the client side of the session lifecycle: the
// persisted credential store, the one-time-identifier handshake with its
// explicit state machine, the advisory route guard, and the loopback
// listener that completes the identity-provider redirect.
package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store holds the current session credential. At most one credential is live
// at a time; its presence is the sole authorization signal for the guarded
// view. The token is opaque - no structural validation happens client-side.
type Store interface {
	Set(token string) error
	Get() (string, bool)
	Clear() error
}

// FileStore persists the credential under a well-known path in the user's
// profile, surviving process restarts. The file carries only the raw token.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Set(token string) error {
	if token == "" {
		return fmt.Errorf("refusing to store an empty credential")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

func (s *FileStore) Get() (string, bool) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests and for wiring pre-set
// credentials without touching the filesystem.
type MemStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Set(token string) error {
	if token == "" {
		return fmt.Errorf("refusing to store an empty credential")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
