package rpcapi

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func loggingUnaryInterceptor(logger *log.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now().UTC()
		resp, err := handler(ctx, req)
		logger.Printf("%s from=%s code=%s dur=%s", info.FullMethod, peerAddr(ctx), status.Code(err), time.Since(start))
		return resp, err
	}
}

func loggingStreamInterceptor(logger *log.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now().UTC()
		err := handler(srv, ss)
		logger.Printf("%s from=%s code=%s dur=%s", info.FullMethod, peerAddr(ss.Context()), status.Code(err), time.Since(start))
		return err
	}
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
