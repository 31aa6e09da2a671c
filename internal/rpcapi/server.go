package rpcapi

import (
	"context"
	"errors"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/abacus/internal/abacus/store"
)

type Dependencies struct {
	Logger  *log.Logger
	History store.HistoryStore
}

// Server exposes a local HistoryStore as the shared collection that remote
// clients read and write.
type Server struct {
	logger  *log.Logger
	history store.HistoryStore
	health  *health.Server
}

func NewServer(d Dependencies) *Server {
	return &Server{
		logger:  d.Logger,
		history: d.History,
		health:  health.NewServer(),
	}
}

// NewGRPCServer builds a grpc.Server with the collection and health services
// registered and request logging installed.
func NewGRPCServer(d Dependencies, opts ...grpc.ServerOption) (*grpc.Server, *Server) {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(loggingUnaryInterceptor(d.Logger)),
		grpc.ChainStreamInterceptor(loggingStreamInterceptor(d.Logger)),
	}, opts...)

	g := grpc.NewServer(opts...)
	s := NewServer(d)
	s.Register(g)
	return g, s
}

func (s *Server) Register(r grpc.ServiceRegistrar) {
	RegisterCollectionServer(r, s)
	healthpb.RegisterHealthServer(r, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Shutdown flips health to NOT_SERVING so clients stop routing new calls.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

func (s *Server) Add(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	n, err := NewRecordFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "expression and result are required")
	}
	rec, err := s.history.Append(ctx, n)
	if err != nil {
		return nil, s.statusFor("add", err)
	}
	return RecordToStruct(rec), nil
}

func (s *Server) List(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	recs, err := s.history.QueryAll(ctx)
	if err != nil {
		return nil, s.statusFor("list", err)
	}
	return SnapshotToList(recs), nil
}

func (s *Server) Clear(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.history.Clear(ctx); err != nil {
		return nil, s.statusFor("clear", err)
	}
	return &emptypb.Empty{}, nil
}

// Watch streams the full history once on open and again after every change.
// A read failure on the backing store ends the stream with Unavailable; the
// client is expected to reconnect and receive a fresh snapshot.
func (s *Server) Watch(_ *emptypb.Empty, stream WatchServer) error {
	ctx := stream.Context()

	snapshots := make(chan []store.Record, 1)
	failures := make(chan error, 1)

	unsubscribe, err := s.history.Subscribe(ctx,
		func(recs []store.Record) {
			// Keep only the latest snapshot; older ones are superseded.
			select {
			case <-snapshots:
			default:
			}
			snapshots <- recs
		},
		func(err error) {
			select {
			case failures <- err:
			default:
			}
		},
	)
	if err != nil {
		return s.statusFor("watch", err)
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case recs := <-snapshots:
			if err := stream.Send(SnapshotToList(recs)); err != nil {
				return err
			}
		case err := <-failures:
			return s.statusFor("watch", err)
		}
	}
}

func (s *Server) statusFor(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidRecord):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, store.ErrWriteFailed), errors.Is(err, store.ErrReadFailed), errors.Is(err, store.ErrClosed):
		s.logger.Printf("%s error: %v", op, err)
		return status.Error(codes.Unavailable, err.Error())
	default:
		s.logger.Printf("%s error: %v", op, err)
		return status.Error(codes.Internal, "unexpected server error")
	}
}
