package provider

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	_ ChainStore = (*MemoryChainStore)(nil)
	_ ChainStore = (*FileChainStore)(nil)
)

// MemoryChainStore keeps the last-known chain id in process memory. It is the
// default store when the caller does not supply one.
type MemoryChainStore struct {
	mu sync.Mutex
	id string
}

func NewMemoryChainStore() *MemoryChainStore {
	return &MemoryChainStore{}
}

func (s *MemoryChainStore) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, nil
}

func (s *MemoryChainStore) Put(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	return nil
}

// FileChainStore persists the last-known chain id as a single JSON document,
// the non-browser stand-in for page-local storage.
type FileChainStore struct {
	mu   sync.Mutex
	path string
}

func NewFileChainStore(path string) *FileChainStore {
	return &FileChainStore{path: path}
}

type chainDoc struct {
	ChainID string `json:"chainId"`
}

// Get returns the persisted chain id, or "" when nothing has been stored yet.
func (s *FileChainStore) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read chain store: %w", err)
	}

	var doc chainDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to parse chain store: %w", err)
	}
	return doc.ChainID, nil
}

func (s *FileChainStore) Put(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(chainDoc{ChainID: id})
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create chain store directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write chain store: %w", err)
	}
	return nil
}
