package service

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/abacus/internal/abacus/calc"
	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrRegistryClosed = errors.New("session registry closed")
)

type SessionConfig struct {
	Precision      int // significant digits, 0 selects calc.DefaultPrecision
	RecorderBuffer int
}

// SessionRegistry owns the live calculator sessions. All sessions share one
// history store.
type SessionRegistry struct {
	history store.HistoryStore
	cfg     SessionConfig
	logger  *log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewSessionRegistry(h store.HistoryStore, cfg SessionConfig, logger *log.Logger) *SessionRegistry {
	return &SessionRegistry{
		history:  h,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

func (r *SessionRegistry) Create() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		machine:   calc.NewMachine(r.cfg.Precision),
		recorder:  NewRecorder(r.history, RecorderConfig{Buffer: r.cfg.RecorderBuffer}, r.logger),
	}
	r.sessions[s.ID] = s
	return s, nil
}

func (r *SessionRegistry) Get(id string) (*Session, error) {
	id = strings.TrimSpace(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// Delete forgets the session. Its queued history writes still complete
// before Delete returns.
func (r *SessionRegistry) Delete(id string) error {
	id = strings.TrimSpace(id)

	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrUnknownSession
	}
	s.close()
	return nil
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops every session, waiting for their pending writes.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.closed = true
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	if len(sessions) > 0 {
		r.logger.Printf("session registry closed sessions=%d", len(sessions))
	}
}
