package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/zombor/check-verifier/internal/check"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLite implements the Repository interface on a single-row key/value table
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database at dbPath and applies the embedded migrations
func NewSQLite(ctx context.Context, dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes transactions and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return s, nil
}

// migrate runs the files under migrations/ in name order.
func (s *SQLite) migrate(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		raw, err := migrationFS.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(raw)); err != nil {
			return fmt.Errorf("exec migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Save prepends entry inside a transaction
func (s *SQLite) Save(ctx context.Context, entry check.StoredCheck) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	blob, err := readBlob(ctx, tx)
	if err != nil {
		return err
	}
	data, err := prepend(blob, entry)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		Key, data)
	if err != nil {
		return fmt.Errorf("writing history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// List returns the entries newest first
func (s *SQLite) List(ctx context.Context) ([]check.StoredCheck, error) {
	blob, err := readBlob(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return decode(blob), nil
}

// Get returns the entry with the given ID
func (s *SQLite) Get(ctx context.Context, id string) (*check.StoredCheck, error) {
	return get(ctx, s, id)
}

// Clear deletes the history row
func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, Key); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readBlob(ctx context.Context, q queryer) ([]byte, error) {
	var blob []byte
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, Key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return blob, nil
}
