package service

import (
	"context"
	"errors"
	"log"

	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
)

var ErrClearNotConfirmed = errors.New("clearing history requires confirmation")

// refresher is implemented by backends whose subscriptions are re-queried on
// demand instead of pushed.
type refresher interface {
	Refresh(ctx context.Context)
}

// HistoryService is the History View's entry point into the store.
type HistoryService struct {
	store  store.HistoryStore
	logger *log.Logger
}

func NewHistoryService(s store.HistoryStore, logger *log.Logger) *HistoryService {
	return &HistoryService{store: s, logger: logger}
}

func (s *HistoryService) List(ctx context.Context) ([]store.Record, error) {
	recs, err := s.store.QueryAll(ctx)
	if err != nil {
		s.logger.Printf("history list failed err=%v", err)
		return nil, err
	}
	return recs, nil
}

func (s *HistoryService) Subscribe(ctx context.Context, onChange store.SnapshotFunc, onError store.ErrorFunc) (store.Unsubscribe, error) {
	return s.store.Subscribe(ctx, onChange, onError)
}

// Refresh re-delivers the current history to subscribers of poll-based
// backends. Push backends ignore it. It returns whether a refresh ran.
func (s *HistoryService) Refresh(ctx context.Context) bool {
	r, ok := s.store.(refresher)
	if !ok {
		return false
	}
	r.Refresh(ctx)
	return true
}

// Clear deletes every record. The caller must have asked the user first and
// pass confirmed=true; otherwise nothing is deleted.
func (s *HistoryService) Clear(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrClearNotConfirmed
	}
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Printf("history clear failed err=%v", err)
		return err
	}
	s.logger.Printf("history cleared")
	return nil
}
