package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
	dbpkg "github.com/BrandonDHaskell/abacus/internal/db"
)

// HistoryStore is the local table backend. Append and Clear return only
// after the transaction has committed.
//
// SQLite cannot push changes, so subscriptions are refreshed on demand:
// Refresh re-queries and delivers the result, and every mutation made
// through this instance triggers one. Writes made by another process are
// seen on the next Refresh.
type HistoryStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
	now    func() time.Time
	feed   *store.Feed

	refreshMu sync.Mutex
}

var _ store.HistoryStore = (*HistoryStore)(nil)

func NewHistoryStore(db *sql.DB, writer *dbpkg.Worker) *HistoryStore {
	return &HistoryStore{
		db:     db,
		writer: writer,
		now:    time.Now,
		feed:   store.NewFeed(),
	}
}

// WithClock replaces the wall clock. Test helper; call before first use.
func (s *HistoryStore) WithClock(now func() time.Time) *HistoryStore {
	s.now = now
	return s
}

func (s *HistoryStore) Append(ctx context.Context, rec store.NewRecord) (store.Record, error) {
	if err := rec.Validate(); err != nil {
		return store.Record{}, store.WriteFailed("append", err)
	}

	// The ordering key is taken when the call is made; the transaction
	// only clamps it so it never falls behind an existing row.
	nowMs := s.now().UTC().UnixMilli()

	var (
		id        int64
		createdMs int64
	)
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureTable(ctx, tx); err != nil {
			return err
		}

		var maxMs int64
		if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(created_at_ms), 0) FROM history;
`).Scan(&maxMs); err != nil {
			return fmt.Errorf("Append read max created_at: %w", err)
		}
		createdMs = max(nowMs, maxMs)

		res, err := tx.ExecContext(ctx, `
INSERT INTO history(expression, result, created_at_ms)
VALUES (?, ?, ?);
`, rec.Expression, rec.Result, createdMs)
		if err != nil {
			return fmt.Errorf("Append insert: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("Append last id: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.Record{}, store.WriteFailed("append", err)
	}

	s.Refresh(ctx)

	return store.Record{
		ID:         strconv.FormatInt(id, 10),
		Expression: rec.Expression,
		Result:     rec.Result,
		CreatedAt:  time.UnixMilli(createdMs).UTC(),
		Seq:        id,
	}, nil
}

func (s *HistoryStore) QueryAll(ctx context.Context) ([]store.Record, error) {
	if err := ensureTable(ctx, s.db); err != nil {
		return nil, store.ReadFailed("query", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, expression, result, created_at_ms
FROM history
ORDER BY created_at_ms DESC, id DESC;
`)
	if err != nil {
		return nil, store.ReadFailed("query", fmt.Errorf("QueryAll: %w", err))
	}
	defer rows.Close()

	out := []store.Record{}
	for rows.Next() {
		var (
			id        int64
			r         store.Record
			createdMs int64
		)
		if err := rows.Scan(&id, &r.Expression, &r.Result, &createdMs); err != nil {
			return nil, store.ReadFailed("query", fmt.Errorf("QueryAll scan: %w", err))
		}
		r.ID = strconv.FormatInt(id, 10)
		r.Seq = id
		r.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.ReadFailed("query", fmt.Errorf("QueryAll rows: %w", err))
	}
	return out, nil
}

// Subscribe delivers the current table immediately and again on every
// Refresh.
func (s *HistoryStore) Subscribe(ctx context.Context, onChange store.SnapshotFunc, onError store.ErrorFunc) (store.Unsubscribe, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	recs, err := s.QueryAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.feed.Subscribe(recs, onChange, onError), nil
}

// Refresh re-reads the table and pushes it to every subscriber. Read
// failures go to the subscribers' error callbacks.
func (s *HistoryStore) Refresh(ctx context.Context) {
	if s.feed.Len() == 0 {
		return
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	recs, err := s.QueryAll(context.WithoutCancel(ctx))
	if err != nil {
		s.feed.PublishError(err)
		return
	}
	s.feed.Publish(recs)
}

func (s *HistoryStore) Clear(ctx context.Context) error {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureTable(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM history;`); err != nil {
			return fmt.Errorf("Clear: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.WriteFailed("clear", err)
	}

	s.Refresh(ctx)
	return nil
}

// Close drops subscribers. The caller owns the *sql.DB and the Worker.
func (s *HistoryStore) Close() error {
	s.feed.Close()
	return nil
}
