package rpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service that exposes the history collection.
//
// Messages are protobuf well-known types so no generated code is needed:
//
//	Add(Struct{expression, result}) returns Struct{id, expression, result, created_at_ms, seq}
//	List(Empty) returns ListValue
//	Clear(Empty) returns Empty
//	Watch(Empty) returns stream ListValue
const ServiceName = "abacus.history.v1.Collection"

const (
	addMethod   = "/" + ServiceName + "/Add"
	listMethod  = "/" + ServiceName + "/List"
	clearMethod = "/" + ServiceName + "/Clear"
	watchMethod = "/" + ServiceName + "/Watch"
)

type CollectionServer interface {
	Add(context.Context, *structpb.Struct) (*structpb.Struct, error)
	List(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Clear(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Watch(*emptypb.Empty, WatchServer) error
}

type WatchServer interface {
	Send(*structpb.ListValue) error
	grpc.ServerStream
}

func RegisterCollectionServer(s grpc.ServiceRegistrar, srv CollectionServer) {
	s.RegisterService(&CollectionServiceDesc, srv)
}

var CollectionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CollectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Add", Handler: addHandler},
		{MethodName: "List", Handler: listHandler},
		{MethodName: "Clear", Handler: clearHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "abacus/history/v1/collection.proto",
}

func addHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CollectionServer).Add(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: addMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CollectionServer).Add(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CollectionServer).List(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CollectionServer).List(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func clearHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CollectionServer).Clear(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: clearMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CollectionServer).Clear(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CollectionServer).Watch(in, &watchServer{stream})
}

type watchServer struct {
	grpc.ServerStream
}

func (x *watchServer) Send(m *structpb.ListValue) error {
	return x.ServerStream.SendMsg(m)
}

// ── Client ───────────────────────────────────────────────────────────────────

type CollectionClient struct {
	cc grpc.ClientConnInterface
}

func NewCollectionClient(cc grpc.ClientConnInterface) *CollectionClient {
	return &CollectionClient{cc: cc}
}

func (c *CollectionClient) Add(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, addMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CollectionClient) List(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, listMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CollectionClient) Clear(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, clearMethod, &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

type WatchClient interface {
	Recv() (*structpb.ListValue, error)
	grpc.ClientStream
}

func (c *CollectionClient) Watch(ctx context.Context, opts ...grpc.CallOption) (WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &CollectionServiceDesc.Streams[0], watchMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &watchClient{stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type watchClient struct {
	grpc.ClientStream
}

func (x *watchClient) Recv() (*structpb.ListValue, error) {
	m := new(structpb.ListValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
