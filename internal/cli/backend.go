package cli

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
	"github.com/BrandonDHaskell/abacus/internal/abacus/store/memory"
	"github.com/BrandonDHaskell/abacus/internal/abacus/store/remote"
	sqlitestore "github.com/BrandonDHaskell/abacus/internal/abacus/store/sqlite"
	"github.com/BrandonDHaskell/abacus/internal/config"
	"github.com/BrandonDHaskell/abacus/internal/db"
)

// backend is an open history store plus whatever must be closed after it.
type backend struct {
	Store store.HistoryStore
	// DB is set for the sqlite backend only.
	DB      *sql.DB
	closers []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, cfg config.Config, logger *log.Logger) (*backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		s := memory.New()
		return &backend{Store: s, closers: []func() error{s.Close}}, nil

	case config.BackendRemote:
		s, err := remote.Dial(cfg.RemoteAddr, remote.Options{
			Backoff: cfg.ReconnectBackoff,
			Logger:  logger,
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "connect history collection", err)
		}
		return &backend{Store: s, closers: []func() error{s.Close}}, nil

	default:
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "open history database", err)
		}
		writer := db.NewWorker(conn)
		s := sqlitestore.NewHistoryStore(conn, writer)

		return &backend{
			Store: s,
			DB:    conn,
			closers: []func() error{
				conn.Close,
				func() error { writer.Close(); return nil },
				s.Close,
			},
		}, nil
	}
}
