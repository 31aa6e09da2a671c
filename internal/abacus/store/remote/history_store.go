// Package remote stores history in a shared collection served over gRPC by
// another abacus process. Every client watching the collection converges on
// the same newest-first list.
package remote

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
	"github.com/BrandonDHaskell/abacus/internal/rpcapi"
)

const (
	defaultBackoff    = 500 * time.Millisecond
	defaultMaxBackoff = 10 * time.Second
	writeQueueSize    = 64
)

type Options struct {
	// Backoff is the first delay before a broken watch is reopened. It
	// doubles on each consecutive failure up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	Logger     *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Backoff <= 0 {
		o.Backoff = defaultBackoff
	}
	if o.MaxBackoff < o.Backoff {
		o.MaxBackoff = defaultMaxBackoff
		if o.MaxBackoff < o.Backoff {
			o.MaxBackoff = o.Backoff
		}
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard, "", 0)
	}
	return o
}

type writeJob struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// HistoryStore is a store.HistoryStore backed by the collection service.
//
// Append and Clear run one at a time on a writer goroutine, so mutations from
// one client reach the server in call order. Subscriptions hold their own
// Watch stream and reopen it after transport failures.
type HistoryStore struct {
	client *rpcapi.CollectionClient
	conn   io.Closer // nil when the caller owns the connection
	opts   Options

	jobs       chan writeJob
	closing    chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ store.HistoryStore = (*HistoryStore)(nil)

// Dial connects to the collection service at addr. The returned store owns
// the connection.
func Dial(addr string, opts Options, dialOpts ...grpc.DialOption) (*HistoryStore, error) {
	dialOpts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, dialOpts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "dial collection %s", addr)
	}
	s := New(conn, opts)
	s.conn = conn
	return s, nil
}

// New wraps an existing connection. Close does not close cc.
func New(cc grpc.ClientConnInterface, opts Options) *HistoryStore {
	base, cancel := context.WithCancel(context.Background())
	s := &HistoryStore{
		client:     rpcapi.NewCollectionClient(cc),
		opts:       opts.withDefaults(),
		jobs:       make(chan writeJob, writeQueueSize),
		closing:    make(chan struct{}),
		writerDone: make(chan struct{}),
		base:       base,
		cancel:     cancel,
	}
	s.wg.Add(1)
	go s.writer()
	return s
}

// writer runs queued mutations in order. After Close it drains what is
// already queued and exits.
func (s *HistoryStore) writer() {
	defer s.wg.Done()
	defer close(s.writerDone)
	for {
		select {
		case j := <-s.jobs:
			j.done <- j.fn(j.ctx)
		case <-s.closing:
			for {
				select {
				case j := <-s.jobs:
					j.done <- j.fn(j.ctx)
				default:
					return
				}
			}
		}
	}
}

// submit queues fn behind earlier mutations and waits for it. A cancelled
// ctx stops the wait, including the wait for room in a full queue, but a
// call that was queued still reaches the server in order.
func (s *HistoryStore) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	j := writeJob{ctx: context.WithoutCancel(ctx), fn: fn, done: make(chan error, 1)}

	select {
	case s.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closing:
		return store.ErrClosed
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.writerDone:
		// The job may have been queued after the final drain.
		select {
		case err := <-j.done:
			return err
		default:
			return store.ErrClosed
		}
	}
}

func (s *HistoryStore) Append(ctx context.Context, rec store.NewRecord) (store.Record, error) {
	if err := rec.Validate(); err != nil {
		return store.Record{}, store.WriteFailed("append", err)
	}

	var out store.Record
	err := s.submit(ctx, func(ctx context.Context) error {
		doc, err := s.client.Add(ctx, rpcapi.NewRecordToStruct(rec))
		if err != nil {
			return rpcError(err, "rpc add")
		}
		out, err = rpcapi.RecordFromStruct(doc)
		return errors.Wrap(err, "decode added document")
	})
	if err != nil {
		return store.Record{}, store.WriteFailed("append", err)
	}
	return out, nil
}

func (s *HistoryStore) QueryAll(ctx context.Context) ([]store.Record, error) {
	if s.isClosed() {
		return nil, store.ReadFailed("query", store.ErrClosed)
	}
	list, err := s.client.List(ctx)
	if err != nil {
		return nil, store.ReadFailed("query", rpcError(err, "rpc list"))
	}
	recs, err := rpcapi.SnapshotFromList(list)
	if err != nil {
		return nil, store.ReadFailed("query", errors.Wrap(err, "decode snapshot"))
	}
	return recs, nil
}

func (s *HistoryStore) Clear(ctx context.Context) error {
	err := s.submit(ctx, func(ctx context.Context) error {
		return rpcError(s.client.Clear(ctx), "rpc clear")
	})
	if err != nil {
		return store.WriteFailed("clear", err)
	}
	return nil
}

// Subscribe opens a Watch stream and waits for its first snapshot, so a
// collection that cannot be read fails here rather than later. After that
// the stream is kept open in the background: when it breaks, onError
// receives store.ErrReadFailed and the stream is reopened with backoff. The
// first snapshot after a reconnect replaces everything delivered before.
func (s *HistoryStore) Subscribe(ctx context.Context, onChange store.SnapshotFunc, onError store.ErrorFunc) (store.Unsubscribe, error) {
	if s.isClosed() {
		return nil, store.ReadFailed("subscribe", store.ErrClosed)
	}

	subCtx, cancel := context.WithCancel(s.base)
	stream, first, err := s.openWatch(subCtx, ctx, false)
	if err != nil {
		cancel()
		return nil, store.ReadFailed("subscribe", err)
	}

	feed := store.NewFeed()
	unsubscribe := feed.Subscribe(first, onChange, onError)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer feed.Close()
		s.watch(subCtx, stream, feed)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			unsubscribe()
		})
	}, nil
}

// openWatch starts a stream that lives as long as streamCtx and waits for
// its first snapshot for at most as long as waitCtx.
func (s *HistoryStore) openWatch(streamCtx, waitCtx context.Context, waitForReady bool) (rpcapi.WatchClient, []store.Record, error) {
	stream, err := s.client.Watch(streamCtx, grpc.WaitForReady(waitForReady))
	if err != nil {
		return nil, nil, rpcError(err, "rpc watch")
	}

	type result struct {
		recs []store.Record
		err  error
	}
	got := make(chan result, 1)
	go func() {
		recs, err := recvSnapshot(stream)
		got <- result{recs, err}
	}()

	select {
	case r := <-got:
		if r.err != nil {
			return nil, nil, r.err
		}
		return stream, r.recs, nil
	case <-waitCtx.Done():
		return nil, nil, waitCtx.Err()
	}
}

func (s *HistoryStore) watch(ctx context.Context, stream rpcapi.WatchClient, feed *store.Feed) {
	delay := s.opts.Backoff
	for {
		for {
			recs, err := recvSnapshot(stream)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.opts.Logger.Printf("history watch broken: %v", err)
				feed.PublishError(store.ReadFailed("watch", err))
				break
			}
			delay = s.opts.Backoff
			feed.Publish(recs)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			var (
				recs []store.Record
				err  error
			)
			stream, recs, err = s.openWatch(ctx, ctx, true)
			if err == nil {
				feed.Publish(recs)
				break
			}
			if ctx.Err() != nil {
				return
			}
			s.opts.Logger.Printf("history watch reconnect failed: %v", err)
			feed.PublishError(store.ReadFailed("watch", err))
			delay = min(delay*2, s.opts.MaxBackoff)
		}
	}
}

func recvSnapshot(stream rpcapi.WatchClient) ([]store.Record, error) {
	list, err := stream.Recv()
	if err != nil {
		return nil, rpcError(err, "watch recv")
	}
	recs, err := rpcapi.SnapshotFromList(list)
	if err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	return recs, nil
}

// Close stops every watch, waits for queued writes to finish and closes the
// connection if this store dialed it.
func (s *HistoryStore) Close() error {
	first := false
	s.closeOnce.Do(func() {
		first = true
		close(s.closing)
	})
	if !first {
		return nil
	}

	s.cancel()
	s.wg.Wait()

	if s.conn != nil {
		return errors.Wrap(s.conn.Close(), "close collection connection")
	}
	return nil
}

func (s *HistoryStore) isClosed() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// rpcError wraps a gRPC failure with msg. InvalidArgument is mapped back to
// store.ErrInvalidRecord so callers can tell bad input from a dead link.
func rpcError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.InvalidArgument {
		return errors.Wrap(store.ErrInvalidRecord, msg)
	}
	return errors.Wrap(err, msg)
}
