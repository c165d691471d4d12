package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/vigil/internal/artifact"
	"github.com/roach88/vigil/internal/model"
)

// MemoryArtifacts is an in-memory artifact.Store that counts fetches.
//
// Block makes every Fetch wait until the returned release func is called,
// so tests can pile up concurrent callers behind one in-flight load.
//
// Thread-safety: All methods are safe for concurrent use.
type MemoryArtifacts struct {
	mu       sync.Mutex
	objects  map[string][]byte
	fetches  map[string]int
	failures map[string]error
	gate     chan struct{}
	entered  chan string
}

// NewMemoryArtifacts creates an empty store.
func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{
		objects:  make(map[string][]byte),
		fetches:  make(map[string]int),
		failures: make(map[string]error),
		entered:  make(chan string, 1024),
	}
}

// Fetch implements artifact.Store.
func (m *MemoryArtifacts) Fetch(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	m.fetches[key]++
	gate := m.gate
	m.mu.Unlock()

	select {
	case m.entered <- key:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failures[key]; ok {
		delete(m.failures, key)
		return nil, err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("memory://%s: %w", key, artifact.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Put implements artifact.Store.
func (m *MemoryArtifacts) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

// PutHandle encodes h and stores it under its model's well-known key.
func (m *MemoryArtifacts) PutHandle(h *model.Handle) error {
	data, err := model.Encode(h)
	if err != nil {
		return err
	}
	return m.Put(context.Background(), artifact.ModelKey(h.ModelID), data)
}

// FailNext makes the next Fetch of key return err.
func (m *MemoryArtifacts) FailNext(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key] = err
}

// Fetches returns how many times key was fetched.
func (m *MemoryArtifacts) Fetches(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[key]
}

// Block holds all subsequent fetches until release is called.
func (m *MemoryArtifacts) Block() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.gate = nil
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Entered receives the key of every Fetch as it starts.
func (m *MemoryArtifacts) Entered() <-chan string {
	return m.entered
}
