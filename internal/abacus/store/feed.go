package store

import (
	"sync"
)

type delivery struct {
	records []Record
	err     error
}

type subscriber struct {
	onChange SnapshotFunc
	onError  ErrorFunc
	box      chan delivery
	done     chan struct{}
	stop     sync.Once
}

// Feed fans full snapshots out to subscribers.
//
// Each subscriber has a one-slot mailbox drained by its own goroutine. A
// newer snapshot replaces an undelivered older one, so a slow subscriber may
// skip intermediate states but always ends on the latest, and never sees a
// partial list. Callers must Publish in mutation order.
type Feed struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers fn and queues initial as its first delivery.
// onError may be nil.
func (f *Feed) Subscribe(initial []Record, onChange SnapshotFunc, onError ErrorFunc) Unsubscribe {
	s := &subscriber{
		onChange: onChange,
		onError:  onError,
		box:      make(chan delivery, 1),
		done:     make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = s
	s.offer(delivery{records: cloneRecords(initial)})
	f.mu.Unlock()

	go s.loop()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		s.close()
	}
}

// Publish delivers snapshot to every subscriber.
func (f *Feed) Publish(snapshot []Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		s.offer(delivery{records: cloneRecords(snapshot)})
	}
}

// PublishError reports a read failure to every subscriber.
func (f *Feed) PublishError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.onError != nil {
			s.offerError(err)
		}
	}
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close drops every subscriber. Later Subscribe calls are no-ops.
func (f *Feed) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[uint64]*subscriber)
	f.closed = true
	f.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// offer must be called with the feed lock held; the lock makes it the only
// sender, so the send after the drain cannot block.
func (s *subscriber) offer(d delivery) {
	select {
	case <-s.box:
	default:
	}
	s.box <- d
}

// offerError never displaces a pending snapshot.
func (s *subscriber) offerError(err error) {
	select {
	case s.box <- delivery{err: err}:
	default:
	}
}

func (s *subscriber) loop() {
	for {
		select {
		case <-s.done:
			return
		case d := <-s.box:
			select {
			case <-s.done:
				return
			default:
			}
			if d.err != nil {
				if s.onError != nil {
					s.onError(d.err)
				}
				continue
			}
			s.onChange(d.records)
		}
	}
}

func (s *subscriber) close() {
	s.stop.Do(func() { close(s.done) })
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	copy(out, in)
	return out
}
