package blob

import (
	"context"
	"sync"
)

// MemoryStore keeps objects in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := append([]byte(nil), data...)
	return &Object{Data: cp, ETag: contentTag(cp)}, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, exists := m.objects[key]
	if err := checkPrecondition(contentTag(current), exists, opts); err != nil {
		return "", err
	}
	m.objects[key] = append([]byte(nil), data...)
	return contentTag(data), nil
}
