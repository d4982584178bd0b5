package grpc

import (
	"context"

	grpclib "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "matching.v1.Matching"

// MatchingServer is the matching gRPC service. Messages are protobuf
// well-known types so clients need no generated stubs.
type MatchingServer interface {
	SubmitOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ModifyOrder(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	CancelOrder(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error)
	GetOrderBook(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	GetLatestPrice(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

func RegisterMatchingServer(s grpclib.ServiceRegistrar, srv MatchingServer) {
	s.RegisterService(&matchingServiceDesc, srv)
}

var matchingServiceDesc = grpclib.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchingServer)(nil),
	Methods: []grpclib.MethodDesc{
		{
			MethodName: "SubmitOrder",
			Handler: unaryHandler("SubmitOrder", func(srv MatchingServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return srv.SubmitOrder(ctx, in)
			}),
		},
		{
			MethodName: "ModifyOrder",
			Handler: unaryHandler("ModifyOrder", func(srv MatchingServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return srv.ModifyOrder(ctx, in)
			}),
		},
		{
			MethodName: "CancelOrder",
			Handler: unaryHandler("CancelOrder", func(srv MatchingServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
				return srv.CancelOrder(ctx, in)
			}),
		},
		{
			MethodName: "GetOrderBook",
			Handler: unaryHandler("GetOrderBook", func(srv MatchingServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
				return srv.GetOrderBook(ctx, in)
			}),
		},
		{
			MethodName: "GetLatestPrice",
			Handler: unaryHandler("GetLatestPrice", func(srv MatchingServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
				return srv.GetLatestPrice(ctx, in)
			}),
		},
	},
	Streams:  []grpclib.StreamDesc{},
	Metadata: "matching/v1/matching.proto",
}

// unaryHandler builds the method handler generated code would contain for
// one request type.
func unaryHandler[Req any, PReq interface {
	*Req
}](method string, call func(MatchingServer, context.Context, PReq) (any, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MatchingServer), ctx, in)
		}
		info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MatchingServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}
