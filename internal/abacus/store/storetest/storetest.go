// Package storetest holds the behaviour every store.HistoryStore backend
// must share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.HistoryStore

const waitFor = 2 * time.Second

func Run(t *testing.T, newStore Factory) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("NewestFirst", func(t *testing.T) { testNewestFirst(t, newStore(t)) })
	t.Run("ClearThenQuery", func(t *testing.T) { testClearThenQuery(t, newStore(t)) })
	t.Run("ClearEmpty", func(t *testing.T) { testClearEmpty(t, newStore(t)) })
	t.Run("InvalidRecord", func(t *testing.T) { testInvalidRecord(t, newStore(t)) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
	t.Run("SubscribeInitial", func(t *testing.T) { testSubscribeInitial(t, newStore(t)) })
	t.Run("SubscribeChanges", func(t *testing.T) { testSubscribeChanges(t, newStore(t)) })
	t.Run("MultipleSubscribers", func(t *testing.T) { testMultipleSubscribers(t, newStore(t)) })
	t.Run("Unsubscribe", func(t *testing.T) { testUnsubscribe(t, newStore(t)) })
}

// Collector gathers subscription deliveries for assertions.
type Collector struct {
	mu        sync.Mutex
	snapshots [][]store.Record
	errs      []error
}

func (c *Collector) OnChange(recs []store.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, recs)
}

func (c *Collector) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snapshots)
}

func (c *Collector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.errs))
	copy(out, c.errs)
	return out
}

// Lengths returns the size of every snapshot delivered so far.
func (c *Collector) Lengths() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.snapshots))
	for i, s := range c.snapshots {
		out[i] = len(s)
	}
	return out
}

// Last returns the latest snapshot and whether one has arrived.
func (c *Collector) Last() ([]store.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.snapshots) == 0 {
		return nil, false
	}
	return c.snapshots[len(c.snapshots)-1], true
}

// WaitFor blocks until the latest snapshot satisfies ok.
func (c *Collector) WaitFor(t *testing.T, ok func([]store.Record) bool) []store.Record {
	t.Helper()
	require.Eventually(t, func() bool {
		last, got := c.Last()
		return got && ok(last)
	}, waitFor, 5*time.Millisecond)
	last, _ := c.Last()
	return last
}

func HasLen(n int) func([]store.Record) bool {
	return func(recs []store.Record) bool { return len(recs) == n }
}

func Expressions(recs []store.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Expression
	}
	return out
}

func mustAppend(t *testing.T, s store.HistoryStore, expr, result string) store.Record {
	t.Helper()
	r, err := s.Append(context.Background(), store.NewRecord{Expression: expr, Result: result})
	require.NoError(t, err)
	return r
}

func testRoundTrip(t *testing.T, s store.HistoryStore) {
	r := mustAppend(t, s, "5 + 3", "8")
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.CreatedAt.IsZero())
	assert.Equal(t, "5 + 3", r.Expression)
	assert.Equal(t, "8", r.Result)

	all, err := s.QueryAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, r.ID, all[0].ID)
	assert.Equal(t, "5 + 3", all[0].Expression)
	assert.Equal(t, "8", all[0].Result)
}

func testNewestFirst(t *testing.T, s store.HistoryStore) {
	for i := 1; i <= 5; i++ {
		mustAppend(t, s, fmt.Sprintf("%d + 0", i), fmt.Sprint(i))
	}

	all, err := s.QueryAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"5 + 0", "4 + 0", "3 + 0", "2 + 0", "1 + 0"}, Expressions(all))

	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt), "createdAt must not increase down the list")
	}
}

func testClearThenQuery(t *testing.T, s store.HistoryStore) {
	first := mustAppend(t, s, "1 + 1", "2")
	mustAppend(t, s, "2 + 2", "4")

	require.NoError(t, s.Clear(context.Background()))

	all, err := s.QueryAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	next := mustAppend(t, s, "3 + 3", "6")
	assert.NotEqual(t, first.ID, next.ID, "ids are never reused")
}

func testClearEmpty(t *testing.T, s store.HistoryStore) {
	require.NoError(t, s.Clear(context.Background()))
	all, err := s.QueryAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testInvalidRecord(t *testing.T, s store.HistoryStore) {
	_, err := s.Append(context.Background(), store.NewRecord{Expression: "", Result: "8"})
	assert.ErrorIs(t, err, store.ErrWriteFailed)
	assert.ErrorIs(t, err, store.ErrInvalidRecord)

	all, err := s.QueryAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testConcurrentAppends(t *testing.T, s store.HistoryStore) {
	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(context.Background(), store.NewRecord{
				Expression: fmt.Sprintf("%d * 1", i),
				Result:     fmt.Sprint(i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.QueryAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, n)

	ids := make(map[string]bool, n)
	for _, r := range all {
		assert.False(t, ids[r.ID], "duplicate id %s", r.ID)
		ids[r.ID] = true
	}
}

func testSubscribeInitial(t *testing.T, s store.HistoryStore) {
	mustAppend(t, s, "1 + 1", "2")
	mustAppend(t, s, "2 + 2", "4")

	c := &Collector{}
	unsub, err := s.Subscribe(context.Background(), c.OnChange, c.OnError)
	require.NoError(t, err)
	defer unsub()

	last := c.WaitFor(t, HasLen(2))
	assert.Equal(t, []string{"2 + 2", "1 + 1"}, Expressions(last))
}

func testSubscribeChanges(t *testing.T, s store.HistoryStore) {
	c := &Collector{}
	unsub, err := s.Subscribe(context.Background(), c.OnChange, c.OnError)
	require.NoError(t, err)
	defer unsub()

	c.WaitFor(t, HasLen(0))

	mustAppend(t, s, "5 + 3", "8")
	last := c.WaitFor(t, HasLen(1))
	assert.Equal(t, "5 + 3", last[0].Expression)

	mustAppend(t, s, "25 + 2", "27")
	last = c.WaitFor(t, HasLen(2))
	assert.Equal(t, []string{"25 + 2", "5 + 3"}, Expressions(last))

	require.NoError(t, s.Clear(context.Background()))
	c.WaitFor(t, HasLen(0))
}

func testMultipleSubscribers(t *testing.T, s store.HistoryStore) {
	a, b := &Collector{}, &Collector{}

	ua, err := s.Subscribe(context.Background(), a.OnChange, a.OnError)
	require.NoError(t, err)
	defer ua()
	ub, err := s.Subscribe(context.Background(), b.OnChange, b.OnError)
	require.NoError(t, err)
	defer ub()

	mustAppend(t, s, "9 / 3", "3")
	mustAppend(t, s, "3 * 4", "12")

	la := a.WaitFor(t, HasLen(2))
	lb := b.WaitFor(t, HasLen(2))
	assert.Equal(t, Expressions(la), Expressions(lb))
}

func testUnsubscribe(t *testing.T, s store.HistoryStore) {
	c := &Collector{}
	unsub, err := s.Subscribe(context.Background(), c.OnChange, c.OnError)
	require.NoError(t, err)
	c.WaitFor(t, HasLen(0))

	unsub()
	unsub()
	before := c.Count()

	mustAppend(t, s, "1 + 2", "3")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, c.Count())
}
