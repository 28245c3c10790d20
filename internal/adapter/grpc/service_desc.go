package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "tldpricing.v1.PricingService"

// PricingServer is the server API for the tldpricing.v1.PricingService service.
// Requests and responses are well-known types so no generated code is needed.
type PricingServer interface {
	Sync(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ImportExtensions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPricing(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPricing(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatistics(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// PricingService_ServiceDesc is the grpc.ServiceDesc for PricingService
var PricingService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PricingServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Sync",
			Handler: unaryHandler("Sync", newStruct, func(srv PricingServer, ctx context.Context, req proto.Message) (proto.Message, error) {
				return srv.Sync(ctx, req.(*structpb.Struct))
			}),
		},
		{
			MethodName: "ImportExtensions",
			Handler: unaryHandler("ImportExtensions", newStruct, func(srv PricingServer, ctx context.Context, req proto.Message) (proto.Message, error) {
				return srv.ImportExtensions(ctx, req.(*structpb.Struct))
			}),
		},
		{
			MethodName: "ListPricing",
			Handler: unaryHandler("ListPricing", newStruct, func(srv PricingServer, ctx context.Context, req proto.Message) (proto.Message, error) {
				return srv.ListPricing(ctx, req.(*structpb.Struct))
			}),
		},
		{
			MethodName: "GetPricing",
			Handler: unaryHandler("GetPricing", newStruct, func(srv PricingServer, ctx context.Context, req proto.Message) (proto.Message, error) {
				return srv.GetPricing(ctx, req.(*structpb.Struct))
			}),
		},
		{
			MethodName: "GetStatistics",
			Handler: unaryHandler("GetStatistics", newEmpty, func(srv PricingServer, ctx context.Context, req proto.Message) (proto.Message, error) {
				return srv.GetStatistics(ctx, req.(*emptypb.Empty))
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tldpricing/v1/pricing.proto",
}

// RegisterPricingServer registers srv on the gRPC server
func RegisterPricingServer(s grpc.ServiceRegistrar, srv PricingServer) {
	s.RegisterService(&PricingService_ServiceDesc, srv)
}

// FullMethod returns the wire name of a PricingService method
func FullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

func newStruct() proto.Message { return new(structpb.Struct) }

func newEmpty() proto.Message { return new(emptypb.Empty) }

type methodCall func(srv PricingServer, ctx context.Context, req proto.Message) (proto.Message, error)

// unaryHandler builds the decode-intercept-dispatch function protoc-gen-go-grpc would generate
func unaryHandler(method string, newReq func() proto.Message, call methodCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PricingServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PricingServer), ctx, req.(proto.Message))
		}
		return interceptor(ctx, in, info, handler)
	}
}
