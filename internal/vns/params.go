package vns

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidParams = errors.New("invalid search parameters")

var validate = validator.New()

// Params bound one search run. A value of -1 for MaxFlips, MaxStalls or
// MaxStagnation disables that limit.
type Params[V any] struct {
	TargetScore   V   `json:"target_score"`
	MinFlips      int `json:"min_flips" validate:"gte=1"`
	MaxFlips      int `json:"max_flips" validate:"gte=-1"`
	MaxIters      int `json:"max_iters" validate:"gte=0"`
	MaxStalls     int `json:"max_stalls" validate:"gte=-1"`
	MaxStagnation int `json:"max_stagnation" validate:"gte=-1"`
}

// AdaptiveWalk is the single-flip special case: a fixed neighborhood of one
// flip that never grows.
func AdaptiveWalk[V any](target V, maxIters, maxStagnation int) Params[V] {
	return Params[V]{
		TargetScore:   target,
		MinFlips:      1,
		MaxFlips:      1,
		MaxIters:      maxIters,
		MaxStalls:     -1,
		MaxStagnation: maxStagnation,
	}
}

func (p Params[V]) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if p.MaxFlips >= 0 && p.MinFlips > p.MaxFlips {
		return fmt.Errorf("%w: min_flips %d > max_flips %d", ErrInvalidParams, p.MinFlips, p.MaxFlips)
	}
	return nil
}
