package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
)

// HistoryStore keeps the calculation log in process memory and pushes every
// change to subscribers. It backs tests, dev runs and the collection server
// when no database is configured.
type HistoryStore struct {
	mu       sync.Mutex
	records  []store.Record // insertion order
	clock    *store.Clock
	feed     *store.Feed
	closed   bool
	writeErr error
	readErr  error
}

var _ store.HistoryStore = (*HistoryStore)(nil)

func New() *HistoryStore {
	return NewWithClock(time.Now)
}

// NewWithClock lets tests pin CreatedAt.
func NewWithClock(now func() time.Time) *HistoryStore {
	return &HistoryStore{
		clock: store.NewClock(now),
		feed:  store.NewFeed(),
	}
}

func (s *HistoryStore) Append(_ context.Context, rec store.NewRecord) (store.Record, error) {
	if err := rec.Validate(); err != nil {
		return store.Record{}, store.WriteFailed("append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.Record{}, store.WriteFailed("append", store.ErrClosed)
	}
	if s.writeErr != nil {
		return store.Record{}, store.WriteFailed("append", s.writeErr)
	}

	createdAt, seq := s.clock.Next()
	r := store.Record{
		ID:         uuid.NewString(),
		Expression: rec.Expression,
		Result:     rec.Result,
		CreatedAt:  createdAt,
		Seq:        seq,
	}
	s.records = append(s.records, r)
	s.feed.Publish(s.snapshotLocked())
	return r, nil
}

func (s *HistoryStore) QueryAll(_ context.Context) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readableLocked(); err != nil {
		return nil, err
	}
	return s.snapshotLocked(), nil
}

func (s *HistoryStore) Subscribe(_ context.Context, onChange store.SnapshotFunc, onError store.ErrorFunc) (store.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readableLocked(); err != nil {
		return nil, err
	}
	return s.feed.Subscribe(s.snapshotLocked(), onChange, onError), nil
}

func (s *HistoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.WriteFailed("clear", store.ErrClosed)
	}
	if s.writeErr != nil {
		return store.WriteFailed("clear", s.writeErr)
	}

	s.records = nil
	s.feed.Publish(s.snapshotLocked())
	return nil
}

func (s *HistoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.feed.Close()
	return nil
}

// FailWrites makes every later Append and Clear fail with err until it is
// called again with nil. Test and dev helper.
func (s *HistoryStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// FailReads does the same for QueryAll and Subscribe.
func (s *HistoryStore) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

func (s *HistoryStore) readableLocked() error {
	if s.closed {
		return store.ReadFailed("query", store.ErrClosed)
	}
	if s.readErr != nil {
		return store.ReadFailed("query", s.readErr)
	}
	return nil
}

func (s *HistoryStore) snapshotLocked() []store.Record {
	out := make([]store.Record, len(s.records))
	copy(out, s.records)
	store.SortNewestFirst(out)
	return out
}
