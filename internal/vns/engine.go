package vns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bnsearch/internal/flip"
)

// Reason names why a search stopped.
type Reason string

const (
	ReasonTargetReached Reason = "target_reached"
	ReasonMaxIters      Reason = "max_iters"
	ReasonMaxStagnation Reason = "max_stagnation"
	ReasonMaxFlips      Reason = "max_flips"
	ReasonNoCandidates  Reason = "no_candidates"
)

// Context is the mutable state of one search. It is created by Search and
// returned to the caller when the search ends.
type Context[V any] struct {
	Iteration   int              `json:"iteration"`
	Score       V                `json:"score"`
	NFlips      int              `json:"n_flips"`
	NStalls     int              `json:"n_stalls"`
	Stagnation  int              `json:"stagnation"`
	Excluded    *flip.Exclusions `json:"-"`
	Terminated  bool             `json:"terminated"`
	Reason      Reason           `json:"reason"`
	Reached     bool             `json:"reached"`
	Evaluations int              `json:"evaluations"`
	Accepted    int              `json:"accepted"`
}

// Step describes one finished iteration.
type Step[V any] struct {
	Iteration int
	Candidate V
	Score     V
	Accepted  bool
	NFlips    int
	Flips     []flip.Flip
}

type (
	EvaluateFunc[S, V any] func(ctx context.Context, solution S, state Context[V]) (V, error)
	ScrambleFunc[S any]    func(solution S, nFlips int, excluded *flip.Exclusions) (S, []flip.Flip, *flip.Exclusions, error)
	TidyFunc[S any]        func(solution S, flips []flip.Flip) (S, error)
)

// Engine runs variable neighborhood search over solutions of type S scored
// with V. Scramble mutates in place; the engine reverts every rejected
// candidate through Tidy before the next scramble.
type Engine[S, V any] struct {
	Evaluate EvaluateFunc[S, V]
	Compare  Comparator[V]
	// Reached checks the target. Nil falls back to Compare(score, target).
	Reached  Comparator[V]
	Scramble ScrambleFunc[S]
	Tidy     TidyFunc[S]
	// Observe, when set, is called after every iteration.
	Observe func(Step[V])
	Logger  *slog.Logger
	// RunID tags spans and log records.
	RunID string
}

func (e *Engine[S, V]) validate() error {
	if e.Evaluate == nil {
		return errors.New("evaluate function is required")
	}
	if e.Compare == nil {
		return errors.New("comparator is required")
	}
	if e.Scramble == nil {
		return errors.New("scramble function is required")
	}
	if e.Tidy == nil {
		return errors.New("tidy function is required")
	}
	return nil
}

func (e *Engine[S, V]) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default().With(slog.String("component", "vns"))
}

func (e *Engine[S, V]) reached(score, target V) bool {
	if e.Reached != nil {
		return e.Reached(score, target)
	}
	return e.Compare(score, target)
}

func (e *Engine[S, V]) evaluate(ctx context.Context, solution S, state Context[V]) (V, error) {
	ctx, span := tracer.Start(ctx, "vns.Evaluate", trace.WithAttributes(
		attribute.Int("iteration", state.Iteration),
		attribute.Int("n_flips", state.NFlips),
	))
	defer span.End()
	start := time.Now()
	score, err := e.Evaluate(ctx, solution, state)
	evaluationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
	}
	return score, err
}

// Search improves initial until the target is reached or a budget runs out.
//
// Running out of budget is not an error: the returned Context says why the
// search stopped and whether the target was reached. An error is returned only
// for invalid arguments, cancellation, or a failing evaluate, scramble or tidy
// call. In that case the candidate has been reverted and the Context reflects
// the last completed iteration.
func (e *Engine[S, V]) Search(ctx context.Context, initial S, params Params[V]) (S, Context[V], error) {
	state := Context[V]{NFlips: params.MinFlips}
	if err := e.validate(); err != nil {
		return initial, state, err
	}
	if err := params.Validate(); err != nil {
		return initial, state, err
	}

	ctx, span := tracer.Start(ctx, "vns.Search", trace.WithAttributes(
		attribute.String("run_id", e.RunID),
		attribute.Int("max_iters", params.MaxIters),
		attribute.Int("min_flips", params.MinFlips),
		attribute.Int("max_flips", params.MaxFlips),
	))
	defer span.End()
	log := e.logger()
	if e.RunID != "" {
		log = log.With(slog.String("run_id", e.RunID))
	}

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	score, err := e.evaluate(ctx, initial, state)
	if err != nil {
		return initial, state, fail(fmt.Errorf("evaluate initial solution: %w", err))
	}
	state.Score = score
	state.Evaluations = 1
	log.Info("vns_start",
		slog.Any("score", score),
		slog.Int("max_iters", params.MaxIters),
		slog.Int("min_flips", params.MinFlips),
		slog.Int("max_flips", params.MaxFlips),
	)

	solution := initial
	for state.Iteration < params.MaxIters && !state.Terminated && !e.reached(state.Score, params.TargetScore) {
		if err := ctx.Err(); err != nil {
			return solution, state, fail(err)
		}

		candidate, flips, excluded, err := e.Scramble(solution, state.NFlips, state.Excluded)
		if errors.Is(err, flip.ErrNoCandidates) {
			state.Terminated = true
			state.Reason = ReasonNoCandidates
			break
		}
		if err != nil {
			return solution, state, fail(fmt.Errorf("iteration %d: scramble: %w", state.Iteration, err))
		}

		newScore, err := e.evaluate(ctx, candidate, state)
		if err != nil {
			restored, tidyErr := e.Tidy(candidate, flips)
			if tidyErr != nil {
				return restored, state, fail(errors.Join(err, fmt.Errorf("tidy: %w", tidyErr)))
			}
			return restored, state, fail(fmt.Errorf("iteration %d: evaluate: %w", state.Iteration, err))
		}
		state.Evaluations++

		accepted := e.Compare(newScore, state.Score)
		if accepted {
			solution = candidate
			state.Score = newScore
			state.NFlips = params.MinFlips
			state.NStalls = 0
			state.Stagnation = 0
			state.Excluded = nil
			state.Accepted++
			candidatesTotal.WithLabelValues("accepted").Inc()
			log.Debug("vns_accept",
				slog.Int("iteration", state.Iteration),
				slog.Any("score", newScore),
				slog.Int("flips", len(flips)),
			)
		} else {
			solution, err = e.Tidy(candidate, flips)
			if err != nil {
				return solution, state, fail(fmt.Errorf("iteration %d: tidy: %w", state.Iteration, err))
			}
			candidatesTotal.WithLabelValues("rejected").Inc()
			state.Excluded = excluded
			state.NStalls++
			state.Stagnation++
			if params.MaxStalls >= 0 && state.NStalls >= params.MaxStalls {
				state.NStalls = 0
				state.NFlips++
				neighborhoodGrowthTotal.Inc()
				log.Debug("vns_grow",
					slog.Int("iteration", state.Iteration),
					slog.Int("n_flips", state.NFlips),
				)
			}
			switch {
			case params.MaxStagnation >= 0 && state.Stagnation >= params.MaxStagnation:
				state.Terminated = true
				state.Reason = ReasonMaxStagnation
			case params.MaxFlips >= 0 && state.NFlips > params.MaxFlips:
				state.Terminated = true
				state.Reason = ReasonMaxFlips
			}
		}
		iterationsTotal.Inc()
		if e.Observe != nil {
			e.Observe(Step[V]{
				Iteration: state.Iteration,
				Candidate: newScore,
				Score:     state.Score,
				Accepted:  accepted,
				NFlips:    len(flips),
				Flips:     flips,
			})
		}
		state.Iteration++
	}

	state.Reached = e.reached(state.Score, params.TargetScore)
	if state.Reason == "" {
		if state.Reached {
			state.Reason = ReasonTargetReached
		} else {
			state.Reason = ReasonMaxIters
		}
	}
	terminationsTotal.WithLabelValues(string(state.Reason)).Inc()
	span.SetAttributes(
		attribute.Int("iterations", state.Iteration),
		attribute.String("reason", string(state.Reason)),
		attribute.Bool("reached", state.Reached),
	)
	span.SetStatus(codes.Ok, "search complete")
	log.Info("vns_finish",
		slog.Any("score", state.Score),
		slog.Int("iterations", state.Iteration),
		slog.Int("evaluations", state.Evaluations),
		slog.String("reason", string(state.Reason)),
		slog.Bool("reached", state.Reached),
	)
	return solution, state, nil
}

// Search runs a one-off engine built from the given functions.
func Search[S, V any](ctx context.Context, initial S, evaluate EvaluateFunc[S, V], compare Comparator[V], scramble ScrambleFunc[S], tidy TidyFunc[S], params Params[V]) (S, Context[V], error) {
	e := &Engine[S, V]{Evaluate: evaluate, Compare: compare, Scramble: scramble, Tidy: tidy}
	return e.Search(ctx, initial, params)
}
