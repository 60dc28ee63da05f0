package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bnsearch/internal/attractor"
	"bnsearch/internal/config"
	"bnsearch/internal/stats"
	"bnsearch/internal/storage"
	"bnsearch/internal/vns"
)

func newTestRunner(t *testing.T) (*Runner, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	next := 0
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return &Runner{
		Store: store,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
		NewID: func() string {
			next++
			return fmt.Sprintf("id-%d", next)
		},
	}, store
}

func smallConfig(t *testing.T) config.RunConfig {
	cfg := config.Default()
	cfg.Seed = 11
	cfg.Network.Nodes = 4
	cfg.Network.Arity = 2
	cfg.Search.MaxIters = 40
	cfg.Search.MaxFlips = 3
	cfg.Search.MaxStalls = 4
	cfg.Search.MaxStagnation = -1
	cfg.Artifacts.Dir = t.TempDir()
	return cfg
}

func TestRunPersistsRunNetworksAndHistory(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRunner(t)
	cfg := smallConfig(t)

	result, err := r.Run(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, "id-1", result.InitialNetworkID)
	assert.Equal(t, "id-2", result.RunID)
	assert.Equal(t, "id-3", result.BestNetworkID)
	assert.Len(t, result.History, result.Context.Iteration)
	assert.True(t, result.Context.Score >= 0 && result.Context.Score <= 1)
	assert.True(t, result.Context.Terminated || result.Context.Iteration == cfg.Search.MaxIters || result.Context.Reached)

	run, ok, err := store.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, run.Error)
	assert.Equal(t, result.InitialNetworkID, run.InitialNetworkID)
	assert.Equal(t, result.BestNetworkID, run.BestNetworkID)
	assert.Equal(t, Outcome(result.Context), run.Outcome)
	assert.Equal(t, cfg.Seed, run.Seed)
	assert.True(t, run.FinishedAt.After(run.StartedAt))

	history, ok, err := store.GetScoreHistory(ctx, result.RunID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.History, history)

	best, err := FetchNetwork(ctx, store, result.BestNetworkID)
	require.NoError(t, err)
	assert.True(t, best.Equal(result.Best))

	initial, err := FetchNetwork(ctx, store, result.InitialNetworkID)
	require.NoError(t, err)
	assert.Equal(t, 4, initial.Len())
}

func TestRunWritesArtifacts(t *testing.T) {
	r, _ := newTestRunner(t)
	cfg := smallConfig(t)

	result, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, result.ArtifactsDir)

	for _, file := range []string{"config.json", "outcome.json", "score_history.csv", "best_network.json", "best_network.ebnf"} {
		_, err := os.Stat(filepath.Join(result.ArtifactsDir, file))
		assert.NoError(t, err, file)
	}

	entries, err := stats.ListRunIndex(cfg.Artifacts.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, result.RunID, entries[0].RunID)
	assert.Equal(t, result.Context.Score, entries[0].FinalScore)

	history, ok, err := stats.ReadScoreHistory(cfg.Artifacts.Dir, result.RunID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.History, history)
}

func TestRunIsReproducibleForSeed(t *testing.T) {
	first, _ := newTestRunner(t)
	second, _ := newTestRunner(t)
	cfg := smallConfig(t)
	cfg.Artifacts.Dir = ""

	a, err := first.Run(context.Background(), cfg)
	require.NoError(t, err)
	b, err := second.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, a.Context, b.Context)
	assert.Equal(t, a.History, b.History)
	assert.True(t, a.Best.Equal(b.Best))
}

func TestRunFromStoredNetwork(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRunner(t)

	open, err := GenerateNetwork(config.NetworkConfig{Nodes: 3, Arity: 1, Bias: 0.5}, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	record, err := NetworkRecord("seeded", SourceFactory, open, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.SaveNetwork(ctx, record))

	cfg := smallConfig(t)
	cfg.Network.StoredID = "seeded"
	cfg.Artifacts.Dir = ""

	result, err := r.Run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "seeded", result.InitialNetworkID)
	assert.Equal(t, "id-1", result.RunID)
	assert.Equal(t, 3, result.Best.Len())
}

func TestRunFromEBNFFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toggle.ebnf")
	require.NoError(t, os.WriteFile(path, []byte("targets, factors\nnA, (nB)\nnB, (!nA)\n"), 0o644))

	r, _ := newTestRunner(t)
	cfg := smallConfig(t)
	cfg.Network.File = path
	cfg.Objective.Constraints.MinAttractors = 1
	cfg.Objective.Constraints.MaxAttractors = 1

	result, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, result.Best.Labels())
}

func TestRunTargetStateObjective(t *testing.T) {
	r, _ := newTestRunner(t)
	cfg := smallConfig(t)
	cfg.Objective.Kind = "target_state"
	cfg.Objective.Target = map[string]bool{"0": true, "3": false}
	cfg.Objective.Points = 4
	cfg.Objective.Steps = 6
	cfg.Objective.Workers = 2

	result, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Context.Score, 0.0)
	assert.LessOrEqual(t, result.Context.Score, 1.0)
	assert.NotEqual(t, vns.Reason(""), result.Context.Reason)
}

func TestRunRecordsFailedSearch(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRunner(t)
	cfg := smallConfig(t)
	cfg.Oracle.Kind = "exec"
	cfg.Oracle.Command = "false"

	result, err := r.Run(ctx, cfg)
	require.Error(t, err)
	assert.Empty(t, result.BestNetworkID)
	assert.Empty(t, result.ArtifactsDir)

	run, ok, getErr := store.GetRun(ctx, result.RunID)
	require.NoError(t, getErr)
	require.True(t, ok)
	assert.NotEmpty(t, run.Error)
	assert.Empty(t, run.BestNetworkID)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	r, _ := newTestRunner(t)
	cfg := smallConfig(t)
	cfg.Search.MinFlips = 0

	_, err := r.Run(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunRequiresStore(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background(), config.Default())
	assert.Error(t, err)
}

func TestLoadNetworkJSON(t *testing.T) {
	open, err := GenerateNetwork(config.NetworkConfig{Nodes: 3, Arity: 1, Bias: 0.5, Inputs: 1}, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	doc, err := json.Marshal(open)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "net.json")
	require.NoError(t, os.WriteFile(path, doc, 0o644))

	loaded, err := LoadNetwork(path)
	require.NoError(t, err)
	assert.True(t, loaded.Equal(open))
	assert.Equal(t, []string{"0"}, loaded.Inputs())
}

func TestLoadNetworkErrors(t *testing.T) {
	_, err := LoadNetwork(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.ebnf")
	require.NoError(t, os.WriteFile(path, []byte("targets, factors\nA, B\n"), 0o644))
	_, err = LoadNetwork(path)
	assert.Error(t, err)
}

func TestNewOracleKinds(t *testing.T) {
	_, closeFn, err := NewOracle(config.OracleConfig{Kind: "builtin"}, nil)
	require.NoError(t, err)
	assert.NoError(t, closeFn())

	_, _, err = NewOracle(config.OracleConfig{Kind: "carrier-pigeon"}, nil)
	assert.Error(t, err)

	grpcOracle, closeFn, err := NewOracle(config.OracleConfig{Kind: "grpc", Address: "localhost:1"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, grpcOracle)
	assert.NoError(t, closeFn())
}

func TestNewObjectiveRejectsUnknownKind(t *testing.T) {
	_, err := NewObjective(config.ObjectiveConfig{Kind: "vibes"}, 1, nil, nil)
	assert.Error(t, err)
}

type countingOracle struct {
	attractor.Oracle
	calls atomic.Int32
}

func (o *countingOracle) Analyze(ctx context.Context, ebnf string) (*attractor.Result, error) {
	o.calls.Add(1)
	return o.Oracle.Analyze(ctx, ebnf)
}

func TestAttractorObjectiveCallsOracleOncePerCandidate(t *testing.T) {
	oracle := &countingOracle{Oracle: &attractor.Builtin{}}
	cfg := config.Default().Objective
	cfg.Points = 5

	fn, err := NewObjective(cfg, 1, oracle, nil)
	require.NoError(t, err)

	open, err := GenerateNetwork(config.NetworkConfig{Nodes: 4, Arity: 2, Bias: 0.5}, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	_, err = fn(context.Background(), open.Network)
	require.NoError(t, err)
	assert.Equal(t, int32(1), oracle.calls.Load())
}
