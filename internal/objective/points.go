package objective

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"bnsearch/internal/network"
)

// Summary aggregates independent evaluations of one network.
type Summary struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	N        int     `json:"n"`
}

// PointFunc scores net at one evaluation point, e.g. an initial condition.
// Each call receives its own copy of the network.
type PointFunc func(ctx context.Context, net *network.Network, point int) (float64, error)

// EvaluatePoints scores net at points 0..n-1 concurrently. Every point runs
// on its own clone, so net itself is never touched. Workers <= 0 uses
// GOMAXPROCS.
func EvaluatePoints(ctx context.Context, net *network.Network, n, workers int, fn PointFunc) (Summary, error) {
	if n <= 0 {
		return Summary{}, errors.New("points must be > 0")
	}
	if fn == nil {
		return Summary{}, errors.New("point function is required")
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ctx, span := tracer.Start(ctx, "objective.EvaluatePoints", trace.WithAttributes(
		attribute.Int("points", n),
		attribute.Int("workers", workers),
	))
	defer span.End()

	scores := make([]float64, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for p := 0; p < n; p++ {
		snapshot := net.Clone()
		g.Go(func() error {
			s, err := fn(gctx, snapshot, p)
			if err != nil {
				return fmt.Errorf("point %d: %w", p, err)
			}
			scores[p] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "point evaluation failed")
		return Summary{}, err
	}
	return summarize(scores), nil
}

func summarize(scores []float64) Summary {
	out := Summary{N: len(scores)}
	for _, s := range scores {
		out.Mean += s
	}
	out.Mean /= float64(len(scores))
	for _, s := range scores {
		d := s - out.Mean
		out.Variance += d * d
	}
	out.Variance /= float64(len(scores))
	return out
}

// MultiPoint scores a network by the mean over n points.
func MultiPoint(n, workers int, fn PointFunc) Func {
	return func(ctx context.Context, net *network.Network) (float64, error) {
		s, err := EvaluatePoints(ctx, net, n, workers, fn)
		if err != nil {
			return 0, err
		}
		return s.Mean, nil
	}
}

// TargetStatePoint starts each point from a random state seeded by seed and
// the point index, runs steps updates, and scores the fraction of target
// nodes whose final state matches.
func TargetStatePoint(target network.State, steps int, seed int64) PointFunc {
	return func(ctx context.Context, net *network.Network, point int) (float64, error) {
		if len(target) == 0 {
			return 0, errors.New("target state is empty")
		}
		for label := range target {
			if _, ok := net.Node(label); !ok {
				return 0, fmt.Errorf("%w: %s", network.ErrUnknownNode, label)
			}
		}
		rng := rand.New(rand.NewSource(seed + int64(point)))
		start := make([]bool, net.Len())
		for i := range start {
			start[i] = rng.Intn(2) == 1
		}
		if err := net.SetStateVector(start); err != nil {
			return 0, err
		}
		net.SetRand(rng)
		for i := 0; i < steps; i++ {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			net.Update()
		}
		state := net.State()
		matched := 0
		for label, want := range target {
			if state[label] == want {
				matched++
			}
		}
		return float64(matched) / float64(len(target)), nil
	}
}
