package service

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/abacus/internal/abacus/calc"
)

// Session is one calculator screen: a machine plus the recorder that logs
// its commits. Key presses on a session are applied one batch at a time.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	machine  *calc.Machine
	recorder *Recorder
}

type PressResult struct {
	Snapshot calc.Snapshot
	Commits  []calc.Commit
}

// Press applies keys in order. Commits are handed to the recorder before
// Press returns, but their history writes complete later.
func (s *Session) Press(keys []calc.Key) PressResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res PressResult
	for _, k := range keys {
		c, ok := s.machine.Press(k)
		if !ok {
			continue
		}
		s.recorder.Record(c)
		res.Commits = append(res.Commits, c)
	}
	res.Snapshot = s.machine.Snapshot()
	return res
}

func (s *Session) Snapshot() calc.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Snapshot()
}

func (s *Session) DrainNotices() []Notice {
	return s.recorder.DrainNotices()
}

// Flush waits for this session's pending history writes.
func (s *Session) Flush(ctx context.Context) error {
	return s.recorder.Flush(ctx)
}

func (s *Session) close() {
	s.recorder.Stop()
}
