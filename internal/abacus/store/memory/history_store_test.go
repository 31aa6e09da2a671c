package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
	"github.com/BrandonDHaskell/abacus/internal/abacus/store/memory"
	"github.com/BrandonDHaskell/abacus/internal/abacus/store/storetest"
)

func TestHistoryStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.HistoryStore {
		s := memory.New()
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestHistoryStore_SameInstantOrderedByInsertion(t *testing.T) {
	fixed := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	s := memory.NewWithClock(func() time.Time { return fixed })
	defer s.Close()
	ctx := context.Background()

	for _, e := range []string{"a + 0", "b + 0", "c + 0"} {
		_, err := s.Append(ctx, store.NewRecord{Expression: e, Result: "0"})
		require.NoError(t, err)
	}

	all, err := s.QueryAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c + 0", "b + 0", "a + 0"}, storetest.Expressions(all))
	for _, r := range all {
		assert.Equal(t, fixed, r.CreatedAt)
	}
}

func TestHistoryStore_FailWrites(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()
	boom := errors.New("disk full")

	s.FailWrites(boom)
	_, err := s.Append(ctx, store.NewRecord{Expression: "1 + 1", Result: "2"})
	assert.ErrorIs(t, err, store.ErrWriteFailed)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Clear(ctx), store.ErrWriteFailed)

	s.FailWrites(nil)
	_, err = s.Append(ctx, store.NewRecord{Expression: "1 + 1", Result: "2"})
	assert.NoError(t, err)
}

func TestHistoryStore_FailReads(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	s.FailReads(errors.New("offline"))
	_, err := s.QueryAll(ctx)
	assert.ErrorIs(t, err, store.ErrReadFailed)

	_, err = s.Subscribe(ctx, func([]store.Record) {}, nil)
	assert.ErrorIs(t, err, store.ErrReadFailed)
}

func TestHistoryStore_ClosedRejectsWork(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.Close())
	ctx := context.Background()

	_, err := s.Append(ctx, store.NewRecord{Expression: "1 + 1", Result: "2"})
	assert.ErrorIs(t, err, store.ErrClosed)
	_, err = s.QueryAll(ctx)
	assert.ErrorIs(t, err, store.ErrReadFailed)
}
