package watermark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps watermarks in a local SQLite database, one row per
// account. It decouples sync state from the destination ledger's notes field
// at the cost of a second durable store to manage.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS watermarks (
	account_id          TEXT PRIMARY KEY,
	last_transaction_id TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);`

// OpenSQLite opens (and if needed initializes) a watermark database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening watermark database %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing watermark schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Position(ctx context.Context, accountID string) (Position, error) {
	var lastID string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_transaction_id FROM watermarks WHERE account_id = ?`, accountID,
	).Scan(&lastID)
	if errors.Is(err, sql.ErrNoRows) {
		return NeverSynced(), nil
	}
	if err != nil {
		return Position{}, fmt.Errorf("reading watermark for %s: %w", accountID, err)
	}
	return Resuming(lastID), nil
}

func (s *SQLiteStore) Advance(ctx context.Context, accountID, txID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watermarks (account_id, last_transaction_id, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(account_id) DO UPDATE SET
		   last_transaction_id = excluded.last_transaction_id,
		   updated_at = excluded.updated_at`,
		accountID, txID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing watermark for %s: %w", accountID, err)
	}
	return nil
}
