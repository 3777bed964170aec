// Package memory stores snapshots in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// BlobStore stores snapshots in-memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Save copies the content and returns a memory:// URI.
func (s *BlobStore) Save(_ context.Context, objectName, _ string, data []byte) (string, error) {
	if objectName == "" {
		return "", fmt.Errorf("object name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[objectName] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", objectName), nil
}

// Object returns the stored content and whether the object exists.
func (s *BlobStore) Object(objectName string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[objectName]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Len reports how many objects are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
