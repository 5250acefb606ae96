package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/wmo-im/wis2node/errors"
)

// MemBucket is an in-memory Bucket used in tests and local development
type MemBucket struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemBucket creates an empty in-memory bucket
func NewMemBucket() *MemBucket {
	return &MemBucket{objects: make(map[string][]byte)}
}

// Get implements Bucket
func (b *MemBucket) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrObjectNotFound, "MemBucket", "Get", "get "+key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put implements Bucket
func (b *MemBucket) Put(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	b.objects[key] = stored
	return nil
}

// List implements Bucket
func (b *MemBucket) List(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var keys []string
	for k := range b.objects {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Len returns the number of stored objects
func (b *MemBucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
