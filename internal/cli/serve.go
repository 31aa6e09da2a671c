package cli

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/abacus/internal/abacus/service"
	"github.com/BrandonDHaskell/abacus/internal/config"
	"github.com/BrandonDHaskell/abacus/internal/db"
	"github.com/BrandonDHaskell/abacus/internal/httpapi"
	"github.com/BrandonDHaskell/abacus/internal/rpcapi"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	HTTPAddr string
	GRPCAddr string
	Poll     time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve calculator sessions over HTTP and the history collection over gRPC",
		Long: `Serve calculator sessions and the history log over HTTP, and expose the
same history as a collection that other abacus processes can use with
--backend remote.

With the sqlite backend the history is re-read every --poll interval so
writes made by other processes reach subscribers.

Examples:
  abacus serve
  abacus serve --backend memory --http :8081 --grpc :9091
  abacus serve --db ./data/abacus.db --poll 5s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.HTTPAddr, "http", "", "HTTP listen address (overrides http_addr)")
	cmd.Flags().StringVar(&opts.GRPCAddr, "grpc", "", "gRPC listen address (overrides grpc_addr)")
	cmd.Flags().DurationVar(&opts.Poll, "poll", 2*time.Second, "sqlite refresh interval, 0 disables")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.Backend == config.BackendRemote {
		return NewExitError(ExitCommandError, "serve needs a local backend (sqlite or memory), not remote")
	}
	if opts.HTTPAddr != "" {
		cfg.HTTPAddr = opts.HTTPAddr
	}
	if opts.GRPCAddr != "" {
		cfg.GRPCAddr = opts.GRPCAddr
	}

	logger := log.New(cmd.OutOrStdout(), "abacus ", log.LstdFlags|log.LUTC)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Printf("close history: %v", err)
		}
	}()

	if b.DB != nil && cfg.Env == "dev" {
		if err := db.SeedDev(ctx, b.DB, db.SeedDevOptions{}); err != nil {
			logger.Printf("seed dev history: %v", err)
		}
	}

	// Services
	sessions := service.NewSessionRegistry(b.Store, service.SessionConfig{
		Precision:      cfg.Precision,
		RecorderBuffer: cfg.RecorderBuffer,
	}, logger)
	defer sessions.Close()
	historySvc := service.NewHistoryService(b.Store, logger)

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:         logger,
		Addr:           cfg.HTTPAddr,
		Sessions:       sessions,
		HistoryService: historySvc,
	})

	// gRPC
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return WrapExitError(ExitCommandError, "listen "+cfg.GRPCAddr, err)
	}
	grpcServer, collection := rpcapi.NewGRPCServer(rpcapi.Dependencies{Logger: logger, History: b.Store})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Printf("http listening on %s backend=%s", cfg.HTTPAddr, cfg.Backend)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Printf("grpc listening on %s", lis.Addr())
		return grpcServer.Serve(lis)
	})

	if b.DB != nil && opts.Poll > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(opts.Poll)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					historySvc.Refresh(gctx)
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		collection.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			// Watch streams only end when their clients leave.
			grpcServer.Stop()
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Printf("shutdown complete")
	return nil
}
