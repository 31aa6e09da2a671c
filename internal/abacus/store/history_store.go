package store

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Record is one committed calculation. Once written it is never updated;
// the only way to remove it is Clear.
type Record struct {
	ID         string
	Expression string
	Result     string
	CreatedAt  time.Time
	Seq        int64 // insertion order, breaks CreatedAt ties
}

// NewRecord is a record before the store assigns its ID and ordering keys.
type NewRecord struct {
	Expression string
	Result     string
}

func (n NewRecord) Validate() error {
	if strings.TrimSpace(n.Expression) == "" || strings.TrimSpace(n.Result) == "" {
		return ErrInvalidRecord
	}
	return nil
}

// SnapshotFunc receives the complete, newest-first history every time it
// changes. Each call replaces whatever the previous call delivered.
type SnapshotFunc func(records []Record)

// ErrorFunc receives read failures on a subscription. The subscription stays
// registered; a later snapshot may still arrive.
type ErrorFunc func(err error)

// Unsubscribe releases a subscription. It is safe to call more than once.
type Unsubscribe func()

// HistoryStore is the durable, ordered calculation log.
//
// Append and Clear are serialised per store instance. Every snapshot handed
// out, either by QueryAll or through a subscription, is ordered newest first
// by CreatedAt with Seq breaking ties.
type HistoryStore interface {
	Append(ctx context.Context, rec NewRecord) (Record, error)
	QueryAll(ctx context.Context) ([]Record, error)
	Subscribe(ctx context.Context, onChange SnapshotFunc, onError ErrorFunc) (Unsubscribe, error)
	Clear(ctx context.Context) error
	Close() error
}

// SortNewestFirst orders records by CreatedAt descending, then Seq descending.
func SortNewestFirst(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].Seq > recs[j].Seq
	})
}
