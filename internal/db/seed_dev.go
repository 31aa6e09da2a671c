package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SeedDevOptions struct {
	// Entries are inserted oldest first; nil selects a small default set.
	Entries [][2]string
}

var defaultSeed = [][2]string{
	{"12 + 8", "20"},
	{"20 * 3", "60"},
	{"60 / 4", "15"},
}

// SeedDev fills an empty history table with sample calculations so a dev
// History View has something to render. A non-empty table is left alone.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	entries := opt.Entries
	if entries == nil {
		entries = defaultSeed
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history;`).Scan(&n); err != nil {
		return fmt.Errorf("seed count history: %w", err)
	}
	if n > 0 {
		return nil
	}

	now := time.Now().UTC().UnixMilli()
	for i, e := range entries {
		if _, err := db.ExecContext(ctx, `
INSERT INTO history(expression, result, created_at_ms)
VALUES (?, ?, ?);`, e[0], e[1], now+int64(i)); err != nil {
			return fmt.Errorf("seed history %q: %w", e[0], err)
		}
	}

	return nil
}
