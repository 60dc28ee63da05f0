package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"bnsearch/internal/config"
	"bnsearch/internal/flip"
	"bnsearch/internal/model"
	"bnsearch/internal/network"
	"bnsearch/internal/stats"
	"bnsearch/internal/storage"
	"bnsearch/internal/vns"
)

// Runner executes search runs against one store.
type Runner struct {
	Store  storage.Store
	Logger *slog.Logger
	// Now and NewID default to time.Now and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

type Result struct {
	RunID            string
	InitialNetworkID string
	BestNetworkID    string
	// ArtifactsDir is empty when artifact output is disabled.
	ArtifactsDir string
	Best         *network.OpenNetwork
	Context      vns.Context[float64]
	History      []model.IterationRecord
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default().With(slog.String("component", "runner"))
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

// Run resolves the initial network, searches it, and persists the initial
// and best networks, the run record and its score history. A failed search
// is still recorded, with the error, before it is returned.
func (r *Runner) Run(ctx context.Context, cfg config.RunConfig) (Result, error) {
	if r.Store == nil {
		return Result{}, errors.New("store is required")
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	log := r.logger()
	rng := rand.New(rand.NewSource(cfg.Seed))

	open, initialID, source, err := ResolveNetwork(ctx, r.Store, cfg.Network, rng)
	if err != nil {
		return Result{}, fmt.Errorf("initial network: %w", err)
	}
	if initialID == "" {
		initialID = r.newID()
		record, err := NetworkRecord(initialID, source, open, r.now())
		if err != nil {
			return Result{}, err
		}
		if err := r.Store.SaveNetwork(ctx, record); err != nil {
			return Result{}, fmt.Errorf("save initial network: %w", err)
		}
	}
	open.SetRand(rng)

	oracle, closeOracle, err := NewOracle(cfg.Oracle, log)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := closeOracle(); err != nil {
			log.Warn("close oracle", slog.String("error", err.Error()))
		}
	}()
	evaluate, err := NewObjective(cfg.Objective, cfg.Seed, oracle, log)
	if err != nil {
		return Result{}, err
	}

	runID := r.newID()
	scrambler := flip.NewScrambler(rng, open, cfg.Search.Tabu)
	compare, reached := cfg.Search.Comparators()
	var history []model.IterationRecord
	engine := vns.Engine[*network.Network, float64]{
		Evaluate: func(ctx context.Context, net *network.Network, _ vns.Context[float64]) (float64, error) {
			return evaluate(ctx, net)
		},
		Compare:  compare,
		Reached:  reached,
		Scramble: scrambler.Scramble,
		Tidy:     scrambler.Tidy,
		Observe: func(step vns.Step[float64]) {
			history = append(history, model.IterationRecord{
				Iteration: step.Iteration,
				Candidate: step.Candidate,
				Score:     step.Score,
				Accepted:  step.Accepted,
				Flips:     step.NFlips,
			})
		},
		Logger: log,
		RunID:  runID,
	}

	started := r.now()
	log.Info("run_start",
		slog.String("run_id", runID),
		slog.String("initial_network_id", initialID),
		slog.String("objective", cfg.Objective.Kind),
		slog.Int("nodes", open.Len()),
	)
	best, state, searchErr := engine.Search(ctx, open.Network, cfg.Search.Params())
	finished := r.now()

	result := Result{
		RunID:            runID,
		InitialNetworkID: initialID,
		Best:             open,
		Context:          state,
		History:          history,
	}
	if best != nil {
		open.Network = best
	}

	// Persist with a fresh context so a cancelled search still leaves a record.
	persistCtx := context.WithoutCancel(ctx)
	run := model.RunRecord{
		VersionedRecord:  storage.Versioned(),
		ID:               runID,
		InitialNetworkID: initialID,
		Objective:        cfg.Objective.Kind,
		Seed:             cfg.Seed,
		Params:           searchParams(cfg.Search),
		Outcome:          Outcome(state),
		StartedAt:        started.UTC(),
		FinishedAt:       finished.UTC(),
	}
	if searchErr != nil {
		run.Error = searchErr.Error()
	} else {
		result.BestNetworkID = r.newID()
		record, err := NetworkRecord(result.BestNetworkID, SourceSearch, open, finished)
		if err != nil {
			return result, err
		}
		if err := r.Store.SaveNetwork(persistCtx, record); err != nil {
			return result, fmt.Errorf("save best network: %w", err)
		}
		run.BestNetworkID = result.BestNetworkID
	}
	if err := r.Store.SaveRun(persistCtx, run); err != nil {
		return result, fmt.Errorf("save run: %w", err)
	}
	if err := r.Store.SaveScoreHistory(persistCtx, runID, history); err != nil {
		return result, fmt.Errorf("save score history: %w", err)
	}

	if searchErr != nil {
		log.Error("run_failed", slog.String("run_id", runID), slog.String("error", searchErr.Error()))
		return result, searchErr
	}

	if cfg.Artifacts.Dir != "" {
		dir, err := r.writeArtifacts(cfg, run, open, history)
		if err != nil {
			return result, fmt.Errorf("write artifacts: %w", err)
		}
		result.ArtifactsDir = dir
	}

	log.Info("run_finish",
		slog.String("run_id", runID),
		slog.String("best_network_id", result.BestNetworkID),
		slog.Float64("score", state.Score),
		slog.String("reason", string(state.Reason)),
		slog.Bool("reached", state.Reached),
	)
	return result, nil
}

func (r *Runner) writeArtifacts(cfg config.RunConfig, run model.RunRecord, best *network.OpenNetwork, history []model.IterationRecord) (string, error) {
	doc, err := best.MarshalJSON()
	if err != nil {
		return "", err
	}
	// Labels ebnf cannot carry leave the ebnf artifact out.
	text, err := best.EBNF()
	if err != nil {
		r.logger().Warn("skip ebnf artifact", slog.String("run_id", run.ID), slog.String("error", err.Error()))
		text = ""
	}

	dir, err := stats.WriteRunArtifacts(cfg.Artifacts.Dir, stats.RunArtifacts{
		RunID:       run.ID,
		Config:      cfg,
		Outcome:     run.Outcome,
		History:     history,
		BestNetwork: doc,
		BestEBNF:    text,
	})
	if err != nil {
		return "", err
	}
	err = stats.AppendRunIndex(cfg.Artifacts.Dir, stats.RunIndexEntry{
		RunID:        run.ID,
		Objective:    run.Objective,
		Nodes:        best.Len(),
		Seed:         run.Seed,
		Iterations:   run.Outcome.Iteration,
		FinalScore:   run.Outcome.Score,
		Reason:       run.Outcome.Reason,
		Reached:      run.Outcome.Reached,
		CreatedAtUTC: run.FinishedAt.Format(time.RFC3339Nano),
	})
	return dir, err
}

func searchParams(c config.SearchConfig) model.SearchParams {
	return model.SearchParams{
		TargetScore:   c.TargetScore,
		MinFlips:      c.MinFlips,
		MaxFlips:      c.MaxFlips,
		MaxIters:      c.MaxIters,
		MaxStalls:     c.MaxStalls,
		MaxStagnation: c.MaxStagnation,
	}
}

// Outcome flattens a final search context into its persisted form.
func Outcome(c vns.Context[float64]) model.SearchOutcome {
	return model.SearchOutcome{
		Iteration:   c.Iteration,
		Score:       c.Score,
		NFlips:      c.NFlips,
		NStalls:     c.NStalls,
		Stagnation:  c.Stagnation,
		Evaluations: c.Evaluations,
		Accepted:    c.Accepted,
		Terminated:  c.Terminated,
		Reason:      string(c.Reason),
		Reached:     c.Reached,
	}
}
