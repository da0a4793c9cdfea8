package storage

import (
	"context"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStorage is an in-memory implementation of ObjectStorage.
// Use this for development/testing or single-instance deployments.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

// NewMemoryStorage creates a new in-memory object store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string]memoryObject),
	}
}

// Put writes an object.
func (m *MemoryStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	m.objects[key] = memoryObject{data: dataCopy, contentType: contentType}
	return nil
}

// Get reads an object back.
func (m *MemoryStorage) Get(ctx context.Context, key string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, exists := m.objects[key]
	if !exists {
		return nil, "", ErrObjectNotFound
	}

	result := make([]byte, len(obj.data))
	copy(result, obj.data)
	return result, obj.contentType, nil
}

// Delete removes an object.
func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

// Len returns the number of stored objects.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Ensure MemoryStorage implements ObjectStorage
var _ ObjectStorage = (*MemoryStorage)(nil)
