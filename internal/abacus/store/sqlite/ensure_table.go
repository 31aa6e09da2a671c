package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS history (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  expression    TEXT NOT NULL,
  result        TEXT NOT NULL,
  created_at_ms INTEGER NOT NULL DEFAULT 0
);`

// ensureTable creates the history table if it is missing. Every operation
// calls it first, so a database that skipped migrations, or whose table was
// dropped, still works.
func ensureTable(ctx context.Context, db execer) error {
	if _, err := db.ExecContext(ctx, createHistoryTable); err != nil {
		return fmt.Errorf("ensureTable: %w", err)
	}
	return nil
}
