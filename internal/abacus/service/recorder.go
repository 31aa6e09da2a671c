package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/BrandonDHaskell/abacus/internal/abacus/calc"
	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
)

var ErrRecorderStopped = errors.New("recorder stopped")

// NoticeWriteFailed marks a commit whose history append failed.
const NoticeWriteFailed = "write_failed"

// Notice is a persistence failure waiting to be shown to the user. The
// calculator display is unaffected by it.
type Notice struct {
	Kind       string
	Expression string
	Err        error
}

func (n Notice) Message() string {
	if n.Expression == "" {
		return fmt.Sprintf("%s: %v", n.Kind, n.Err)
	}
	return fmt.Sprintf("could not save %q to history: %v", n.Expression, n.Err)
}

// RecorderConfig holds the parameters for NewRecorder.
type RecorderConfig struct {
	// Buffer is the backlog at which the recorder logs that the store is
	// falling behind. Record never blocks. Defaults to 64.
	Buffer int
}

type recordJob struct {
	commit  calc.Commit
	flushed chan struct{} // set for flush markers only
}

// Recorder appends commits to the history store in the order they were
// made, off the caller's goroutine. Failed appends are logged and kept as
// notices until DrainNotices collects them.
//
// The queue is unbounded so a stalled store never holds up key handling.
// In-flight writes are never aborted: Stop waits for the queue to drain.
type Recorder struct {
	store   store.HistoryStore
	logger  *log.Logger
	backlog int
	wake    chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	pending []recordJob
	stopped bool

	noticeMu sync.Mutex
	notices  []Notice
}

// NewRecorder creates a recorder and starts its writer goroutine.
func NewRecorder(s store.HistoryStore, cfg RecorderConfig, logger *log.Logger) *Recorder {
	backlog := cfg.Buffer
	if backlog <= 0 {
		backlog = 64
	}

	r := &Recorder{
		store:   s,
		logger:  logger,
		backlog: backlog,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record queues c for appending and returns without waiting for the store.
func (r *Recorder) Record(c calc.Commit) {
	if !r.enqueue(recordJob{commit: c}) {
		r.addNotice(Notice{Kind: NoticeWriteFailed, Expression: c.Expression, Err: ErrRecorderStopped})
	}
}

// Flush waits until every commit recorded before the call has been written
// or has failed.
func (r *Recorder) Flush(ctx context.Context) error {
	marker := make(chan struct{})
	if !r.enqueue(recordJob{flushed: marker}) {
		<-r.done
		return nil
	}

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports how many jobs are waiting for the writer.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Recorder) enqueue(job recordJob) bool {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	r.pending = append(r.pending, job)
	n := len(r.pending)
	r.mu.Unlock()

	if n == r.backlog+1 {
		r.logger.Printf("history backlog pending=%d", n)
	}
	r.signal()
	return true
}

func (r *Recorder) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// DrainNotices returns the pending notices oldest first and forgets them.
func (r *Recorder) DrainNotices() []Notice {
	r.noticeMu.Lock()
	defer r.noticeMu.Unlock()
	out := r.notices
	r.notices = nil
	return out
}

// Stop refuses further commits and waits for queued ones to finish. Safe to
// call more than once.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.signal()
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)

	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			stopped := r.stopped
			r.mu.Unlock()
			if stopped {
				return
			}
			<-r.wake
			continue
		}
		job := r.pending[0]
		r.pending[0] = recordJob{}
		r.pending = r.pending[1:]
		r.mu.Unlock()

		if job.flushed != nil {
			close(job.flushed)
			continue
		}
		r.write(job.commit)
	}
}

func (r *Recorder) write(c calc.Commit) {
	_, err := r.store.Append(context.Background(), store.NewRecord{
		Expression: c.Expression,
		Result:     c.Result,
	})
	if err != nil {
		r.logger.Printf("append failed expr=%q err=%v", c.Expression, err)
		r.addNotice(Notice{Kind: NoticeWriteFailed, Expression: c.Expression, Err: err})
	}
}

func (r *Recorder) addNotice(n Notice) {
	r.noticeMu.Lock()
	defer r.noticeMu.Unlock()
	r.notices = append(r.notices, n)
}
