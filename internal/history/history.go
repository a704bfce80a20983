// Package history persists completed verifications as one bounded,
// newest-first JSON array stored under a single key.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/zombor/check-verifier/internal/check"
)

const (
	// Key is the name the history blob is stored under in every backend.
	Key = "check-history"

	// Limit is the maximum number of entries kept.
	Limit = 50
)

// Repository defines the interface for history storage
type Repository interface {
	// Save prepends entry and drops everything past Limit
	Save(ctx context.Context, entry check.StoredCheck) error

	// List returns the entries newest first
	List(ctx context.Context) ([]check.StoredCheck, error)

	// Get returns the entry with the given ID
	Get(ctx context.Context, id string) (*check.StoredCheck, error)

	// Clear removes every entry
	Clear(ctx context.Context) error

	// Close releases the backend
	Close() error
}

// decode reads a persisted blob. A missing blob is an empty history; an
// unreadable one is logged and also treated as empty.
func decode(blob []byte) []check.StoredCheck {
	entries := make([]check.StoredCheck, 0)
	if len(blob) == 0 {
		return entries
	}
	if err := json.Unmarshal(blob, &entries); err != nil {
		slog.Warn("Discarding unreadable history", "key", Key, "size", len(blob), "error", err)
		return make([]check.StoredCheck, 0)
	}
	return entries
}

// prepend returns the blob that results from saving entry over blob.
func prepend(blob []byte, entry check.StoredCheck) ([]byte, error) {
	entries := append([]check.StoredCheck{entry}, decode(blob)...)
	if len(entries) > Limit {
		entries = entries[:Limit]
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshaling history: %w", err)
	}
	return data, nil
}

func find(entries []check.StoredCheck, id string) (*check.StoredCheck, error) {
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", check.ErrNotFound, id)
}

func get(ctx context.Context, repo Repository, id string) (*check.StoredCheck, error) {
	entries, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return find(entries, id)
}
