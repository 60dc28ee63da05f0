package attractor

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var oracleServiceDesc = grpc.ServiceDesc{
	ServiceName: oracleServiceName,
	HandlerType: (*Oracle)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: analyzeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bnsearch/attractor_oracle",
}

// RegisterOracleServer exposes oracle over gRPC so remote searches can share
// one analysis service.
func RegisterOracleServer(s grpc.ServiceRegistrar, oracle Oracle) {
	s.RegisterService(&oracleServiceDesc, oracle)
}

func analyzeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		return serveAnalyze(ctx, srv.(Oracle), req.(*structpb.Struct))
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeMethod}
	return interceptor(ctx, in, info, handle)
}

func serveAnalyze(ctx context.Context, oracle Oracle, req *structpb.Struct) (*structpb.Struct, error) {
	field, ok := req.GetFields()["ebnf"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "missing ebnf field")
	}
	ebnf, ok := field.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "ebnf must be a string")
	}
	res, err := oracle.Analyze(ctx, ebnf.StringValue)
	switch {
	case errors.Is(err, ErrStateSpaceTooLarge):
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return nil, status.Error(codes.DeadlineExceeded, err.Error())
	case err != nil:
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	m, err := res.toMap()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
