package attractor

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type failingOracle struct{ err error }

func (f failingOracle) Analyze(context.Context, string) (*Result, error) {
	return nil, f.err
}

func startOracle(t *testing.T, oracle Oracle) *GRPCOracle {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterOracleServer(srv, oracle)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := DialGRPC("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGRPCOracleRoundTrip(t *testing.T) {
	builtin := &Builtin{Workers: 2}
	client := startOracle(t, builtin)

	text, err := pair(t, identity, identity.Clone()).EBNF()
	require.NoError(t, err)

	remote, err := client.Analyze(context.Background(), text)
	require.NoError(t, err)
	local, err := builtin.Analyze(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, local, remote)
}

func TestGRPCOracleMapsErrors(t *testing.T) {
	client := startOracle(t, failingOracle{err: ErrStateSpaceTooLarge})
	_, err := client.Analyze(context.Background(), "targets, factors\n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOracleUnavailable))
	assert.Contains(t, err.Error(), codes.ResourceExhausted.String())
}

func TestServeAnalyzeValidatesRequest(t *testing.T) {
	_, err := serveAnalyze(context.Background(), &Builtin{}, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	req, err := structpb.NewStruct(map[string]any{"ebnf": 3.0})
	require.NoError(t, err)
	_, err = serveAnalyze(context.Background(), &Builtin{}, req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	req, err = structpb.NewStruct(map[string]any{"ebnf": "garbage"})
	require.NoError(t, err)
	_, err = serveAnalyze(context.Background(), &Builtin{}, req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
