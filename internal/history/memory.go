package history

import (
	"context"
	"sync"

	"github.com/zombor/check-verifier/internal/check"
)

// Memory keeps the history blob in process memory. Nothing survives a restart.
type Memory struct {
	mu   sync.Mutex
	blob []byte
}

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	return &Memory{}
}

// Save prepends entry under the lock
func (m *Memory) Save(ctx context.Context, entry check.StoredCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := prepend(m.blob, entry)
	if err != nil {
		return err
	}
	m.blob = data
	return nil
}

// List returns the entries newest first
func (m *Memory) List(ctx context.Context) ([]check.StoredCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return decode(m.blob), nil
}

// Get returns the entry with the given ID
func (m *Memory) Get(ctx context.Context, id string) (*check.StoredCheck, error) {
	return get(ctx, m, id)
}

// Clear drops the blob
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob = nil
	return nil
}

// Close is a no-op
func (m *Memory) Close() error {
	return nil
}
