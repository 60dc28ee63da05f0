package attractor

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	oracleServiceName = "bnsearch.AttractorOracle"
	analyzeMethod     = "/" + oracleServiceName + "/Analyze"
)

// GRPCOracle calls a remote oracle service. Requests and responses are
// google.protobuf.Struct messages: {"ebnf": ...} in, a Result document out.
type GRPCOracle struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	Timeout time.Duration
}

// DialGRPC connects to the oracle service at addr.
func DialGRPC(addr string, opts ...grpc.DialOption) (*GRPCOracle, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPCOracle{conn: conn, closer: conn.Close}, nil
}

// NewGRPCOracle wraps an existing connection. Close does not close it.
func NewGRPCOracle(conn grpc.ClientConnInterface) *GRPCOracle {
	return &GRPCOracle{conn: conn}
}

func (o *GRPCOracle) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer()
}

func (o *GRPCOracle) Analyze(ctx context.Context, ebnf string) (*Result, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	req, err := structpb.NewStruct(map[string]any{"ebnf": ebnf})
	if err != nil {
		return nil, err
	}
	resp := &structpb.Struct{}
	if err := o.conn.Invoke(ctx, analyzeMethod, req, resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	return resultFromMap(resp.AsMap())
}
