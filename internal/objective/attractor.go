package objective

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bnsearch/internal/attractor"
	"bnsearch/internal/network"
)

// AttractorConstraints describe the attractor landscape a search aims for.
type AttractorConstraints struct {
	// MinAttractors and MaxAttractors bound the attractor count; a zero
	// MaxAttractors leaves the count unbounded above.
	MinAttractors int `json:"min_attractors" yaml:"min_attractors" validate:"gte=0"`
	MaxAttractors int `json:"max_attractors" yaml:"max_attractors" validate:"gte=0"`
	// Tau is the minimum self-transition probability of every attractor.
	Tau float64 `json:"tau" yaml:"tau" validate:"gte=0,lte=1"`
	// MaxCross is the maximum allowed transition probability between two
	// different attractors.
	MaxCross float64 `json:"max_cross" yaml:"max_cross" validate:"gte=0,lte=1"`
}

// AttractorObjective scores a network in [0, 1] by how well the oracle's
// attractors satisfy the constraints. A score of 1 satisfies all of them.
type AttractorObjective struct {
	Oracle      attractor.Oracle
	Constraints AttractorConstraints
	Logger      *slog.Logger
}

func (o *AttractorObjective) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default().With(slog.String("component", "objective"))
}

// Evaluate calls the oracle exactly once.
func (o *AttractorObjective) Evaluate(ctx context.Context, net *network.Network) (float64, error) {
	if o.Oracle == nil {
		return 0, errors.New("attractor oracle is required")
	}
	ctx, span := tracer.Start(ctx, "objective.Attractor", trace.WithAttributes(
		attribute.Int("nodes", net.Len()),
	))
	defer span.End()

	text, err := net.EBNF()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ebnf export failed")
		return 0, err
	}
	res, err := o.Oracle.Analyze(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "oracle failed")
		return 0, fmt.Errorf("attractor oracle: %w", err)
	}
	score := o.Constraints.Score(res)
	span.SetAttributes(
		attribute.Int("attractors", len(res.Attractors)),
		attribute.Float64("score", score),
	)
	o.logger().Debug("attractor_score",
		slog.Int("attractors", len(res.Attractors)),
		slog.Float64("score", score),
	)
	return score, nil
}

// Func adapts the objective to the generic evaluator signature.
func (o *AttractorObjective) Func() Func {
	return o.Evaluate
}

// Score averages three satisfaction terms, each in [0, 1]: the attractor
// count, the fraction of attractors whose self-transition reaches Tau, and
// the fraction of cross transitions not above MaxCross.
func (c AttractorConstraints) Score(res *attractor.Result) float64 {
	return (c.countTerm(len(res.Attractors)) + c.tauTerm(res) + c.crossTerm(res)) / 3
}

func (c AttractorConstraints) countTerm(count int) float64 {
	distance := 0
	switch {
	case count < c.MinAttractors:
		distance = c.MinAttractors - count
	case c.MaxAttractors > 0 && count > c.MaxAttractors:
		distance = count - c.MaxAttractors
	}
	return 1 / (1 + float64(distance))
}

func (c AttractorConstraints) tauTerm(res *attractor.Result) float64 {
	if len(res.ATM) == 0 {
		return 0
	}
	ok := 0
	for i, row := range res.ATM {
		if row[i] >= c.Tau {
			ok++
		}
	}
	return float64(ok) / float64(len(res.ATM))
}

func (c AttractorConstraints) crossTerm(res *attractor.Result) float64 {
	total, ok := 0, 0
	for i, row := range res.ATM {
		for j, p := range row {
			if i == j {
				continue
			}
			total++
			if p <= c.MaxCross+1e-12 {
				ok++
			}
		}
	}
	if total == 0 {
		return 1
	}
	return float64(ok) / float64(total)
}
