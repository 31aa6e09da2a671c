package store_test

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
)

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	in := []store.Record{
		{ID: "a", CreatedAt: base, Seq: 1},
		{ID: "c", CreatedAt: base.Add(time.Second), Seq: 3},
		{ID: "b", CreatedAt: base, Seq: 2},
	}

	store.SortNewestFirst(in)

	ids := []string{in[0].ID, in[1].ID, in[2].ID}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestNewRecord_Validate(t *testing.T) {
	assert.NoError(t, store.NewRecord{Expression: "1 + 1", Result: "2"}.Validate())
	assert.ErrorIs(t, store.NewRecord{Expression: " ", Result: "2"}.Validate(), store.ErrInvalidRecord)
	assert.ErrorIs(t, store.NewRecord{Expression: "1 + 1"}.Validate(), store.ErrInvalidRecord)
}

func TestPersistenceError_Is(t *testing.T) {
	err := store.WriteFailed("append", io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, store.ErrWriteFailed))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, errors.Is(err, store.ErrReadFailed))
	assert.Equal(t, "append: history write failed: unexpected EOF", err.Error())

	var pe *store.PersistenceError
	assert.True(t, errors.As(store.ReadFailed("query", nil), &pe))
	assert.Equal(t, "query", pe.Op)
	assert.Equal(t, "query: history read failed", pe.Error())
}

func TestClock_NeverGoesBackwards(t *testing.T) {
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	times := []time.Time{now, now.Add(-time.Minute), now.Add(time.Second)}
	i := 0
	c := store.NewClock(func() time.Time {
		v := times[i]
		i++
		return v
	})

	t1, s1 := c.Next()
	t2, s2 := c.Next()
	t3, s3 := c.Next()

	assert.Equal(t, now, t1)
	assert.Equal(t, now, t2, "clock must clamp to the last issued time")
	assert.Equal(t, now.Add(time.Second), t3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{s1, s2, s3})
}

func TestClock_UniqueUnderConcurrency(t *testing.T) {
	c := store.NewClock(nil)
	const n = 500

	var wg sync.WaitGroup
	seqs := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, s := c.Next()
			seqs <- s
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool)
	for s := range seqs {
		assert.False(t, seen[s], "seq %d issued twice", s)
		seen[s] = true
	}
	assert.Len(t, seen, n)
}
