package bnsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bnsearch/internal/attractor"
	"bnsearch/internal/config"
	"bnsearch/internal/model"
	"bnsearch/internal/network"
	"bnsearch/internal/runner"
	"bnsearch/internal/stats"
	"bnsearch/internal/storage"
)

const (
	defaultArtifactsDir = "benchmarks"
	defaultExportsDir   = "exports"
	defaultDBPath       = "bnsearch.db"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
}

// Client is the entry point for generating networks, running searches and
// inspecting stored runs.
type Client struct {
	store  storage.Store
	logger *slog.Logger

	artifactsDir string
	exportsDir   string

	initMu      sync.Mutex
	initialized bool
}

type GenerateRequest struct {
	Network config.NetworkConfig
	Seed    int64
	// Save stores the network and fills in GenerateSummary.ID.
	Save bool
}

type GenerateSummary struct {
	ID      string
	Network *network.OpenNetwork
}

// NetworkRequest names a network by store ID or by file; exactly one is set.
type NetworkRequest struct {
	ID   string
	File string
}

type RunSummary struct {
	RunID            string
	InitialNetworkID string
	BestNetworkID    string
	ArtifactsDir     string
	Outcome          model.SearchOutcome
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID       string
	StartedAt   time.Time
	Objective   string
	Seed        int64
	Iterations  int
	Score       float64
	Reason      string
	Reached     bool
	Error       string
	BestNetwork string
}

type ShowRequest struct {
	RunID  string
	Latest bool
	// Limit caps the returned history; zero returns all of it.
	Limit int
}

type RunDetail struct {
	Run     model.RunRecord
	History []model.IterationRecord
}

type AttractorsRequest struct {
	NetworkRequest
	Oracle config.OracleConfig
	// ByInput adds basin counts per input assignment; builtin oracle only.
	ByInput bool
}

type AttractorReport struct {
	Result *attractor.Result
	Basins *attractor.InputBasins
}

// ReportRequest selects runs for a score curve: the listed IDs, or the
// newest Limit runs when none are listed.
type ReportRequest struct {
	RunIDs []string
	Limit  int
	Step   int
	// OutDir receives score_curve.dat when set.
	OutDir string
}

type ReportSummary struct {
	RunIDs []string
	Curve  []stats.CurvePoint
	Path   string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "bnsearch"))
	}

	store, err := storage.Open(config.StoreConfig{Kind: storeKind, Path: dbPath})
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.Close(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Generate builds a random open network and optionally stores it.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateSummary, error) {
	open, err := runner.GenerateNetwork(req.Network, rand.New(rand.NewSource(req.Seed)))
	if err != nil {
		return GenerateSummary{}, err
	}
	summary := GenerateSummary{Network: open}
	if !req.Save {
		return summary, nil
	}

	if err := c.Init(ctx); err != nil {
		return GenerateSummary{}, err
	}
	summary.ID = uuid.NewString()
	record, err := runner.NetworkRecord(summary.ID, runner.SourceFactory, open, time.Now())
	if err != nil {
		return GenerateSummary{}, err
	}
	if err := c.store.SaveNetwork(ctx, record); err != nil {
		return GenerateSummary{}, err
	}
	return summary, nil
}

// Run executes one search. An empty artifacts directory in cfg falls back to
// the client's.
func (c *Client) Run(ctx context.Context, cfg config.RunConfig) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = c.artifactsDir
	}

	r := &runner.Runner{Store: c.store, Logger: c.logger}
	result, err := r.Run(ctx, cfg)
	summary := RunSummary{
		RunID:            result.RunID,
		InitialNetworkID: result.InitialNetworkID,
		BestNetworkID:    result.BestNetworkID,
		ArtifactsDir:     result.ArtifactsDir,
	}
	if result.RunID != "" {
		summary.Outcome = runner.Outcome(result.Context)
	}
	return summary, err
}

// Runs lists stored runs newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}

	out := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunItem{
			RunID:       run.ID,
			StartedAt:   run.StartedAt,
			Objective:   run.Objective,
			Seed:        run.Seed,
			Iterations:  run.Outcome.Iteration,
			Score:       run.Outcome.Score,
			Reason:      run.Outcome.Reason,
			Reached:     run.Outcome.Reached,
			Error:       run.Error,
			BestNetwork: run.BestNetworkID,
		})
	}
	return out, nil
}

func (c *Client) Show(ctx context.Context, req ShowRequest) (RunDetail, error) {
	if req.Limit < 0 {
		return RunDetail{}, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return RunDetail{}, err
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !ok {
		return RunDetail{}, fmt.Errorf("run not found: %s", runID)
	}
	history, _, err := c.store.GetScoreHistory(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return RunDetail{Run: run, History: history}, nil
}

// Network loads a network from the store or from a JSON or ebnf file.
func (c *Client) Network(ctx context.Context, req NetworkRequest) (*network.OpenNetwork, error) {
	switch {
	case req.ID != "" && req.File != "":
		return nil, errors.New("use either network id or file")
	case req.File != "":
		return runner.LoadNetwork(req.File)
	case req.ID != "":
		if err := c.Init(ctx); err != nil {
			return nil, err
		}
		return runner.FetchNetwork(ctx, c.store, req.ID)
	default:
		return nil, errors.New("network id or file is required")
	}
}

func (c *Client) EBNF(ctx context.Context, req NetworkRequest) (string, error) {
	open, err := c.Network(ctx, req)
	if err != nil {
		return "", err
	}
	return open.EBNF()
}

// Attractors analyzes a network with the configured oracle.
func (c *Client) Attractors(ctx context.Context, req AttractorsRequest) (AttractorReport, error) {
	open, err := c.Network(ctx, req.NetworkRequest)
	if err != nil {
		return AttractorReport{}, err
	}

	if req.ByInput {
		if req.Oracle.Kind != "" && req.Oracle.Kind != "builtin" {
			return AttractorReport{}, errors.New("basins by input need the builtin oracle")
		}
		builtin := &attractor.Builtin{MaxNodes: req.Oracle.MaxNodes, Workers: req.Oracle.Workers, Logger: c.logger}
		basins, err := builtin.BasinsByInput(ctx, open)
		if err != nil {
			return AttractorReport{}, err
		}
		return AttractorReport{Result: basins.Result, Basins: basins}, nil
	}

	oracle, closeOracle, err := runner.NewOracle(req.Oracle, c.logger)
	if err != nil {
		return AttractorReport{}, err
	}
	defer func() {
		_ = closeOracle()
	}()

	text, err := open.EBNF()
	if err != nil {
		return AttractorReport{}, err
	}
	res, err := oracle.Analyze(ctx, text)
	if err != nil {
		return AttractorReport{}, err
	}
	return AttractorReport{Result: res}, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Report aggregates the score histories of several runs into one curve.
func (c *Client) Report(ctx context.Context, req ReportRequest) (ReportSummary, error) {
	if err := c.Init(ctx); err != nil {
		return ReportSummary{}, err
	}
	runIDs := req.RunIDs
	if len(runIDs) == 0 {
		items, err := c.Runs(ctx, RunsRequest{Limit: req.Limit})
		if err != nil {
			return ReportSummary{}, err
		}
		for _, item := range items {
			runIDs = append(runIDs, item.RunID)
		}
	}
	if len(runIDs) == 0 {
		return ReportSummary{}, errors.New("no runs available to report")
	}

	histories := make([][]model.IterationRecord, 0, len(runIDs))
	for _, id := range runIDs {
		history, ok, err := c.store.GetScoreHistory(ctx, id)
		if err != nil {
			return ReportSummary{}, err
		}
		if !ok {
			return ReportSummary{}, fmt.Errorf("score history not found: %s", id)
		}
		histories = append(histories, history)
	}

	summary := ReportSummary{RunIDs: runIDs, Curve: stats.BuildScoreCurve(histories, req.Step)}
	if req.OutDir != "" {
		path, err := stats.WriteScoreCurve(req.OutDir, strings.Join(runIDs, ","), summary.Curve)
		if err != nil {
			return ReportSummary{}, err
		}
		summary.Path = path
	}
	return summary, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	if !latest {
		if runID == "" {
			return "", errors.New("run id or latest is required")
		}
		return runID, nil
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[0].ID, nil
}
