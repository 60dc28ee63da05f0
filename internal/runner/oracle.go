package runner

import (
	"fmt"
	"log/slog"

	"bnsearch/internal/attractor"
	"bnsearch/internal/config"
	"bnsearch/internal/network"
	"bnsearch/internal/objective"
)

// NewOracle builds the configured oracle. The returned close function
// releases connections and is never nil.
func NewOracle(cfg config.OracleConfig, logger *slog.Logger) (attractor.Oracle, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case "", "builtin":
		return &attractor.Builtin{MaxNodes: cfg.MaxNodes, Workers: cfg.Workers, Logger: logger}, noop, nil
	case "exec":
		return &attractor.ExecOracle{Command: cfg.Command, Args: cfg.Args, Timeout: cfg.Timeout}, noop, nil
	case "grpc":
		oracle, err := attractor.DialGRPC(cfg.Address)
		if err != nil {
			return nil, noop, err
		}
		oracle.Timeout = cfg.Timeout
		return oracle, oracle.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported oracle: %s", cfg.Kind)
	}
}

// NewObjective builds the configured evaluator. The oracle is only used by
// the attractors objective.
func NewObjective(cfg config.ObjectiveConfig, seed int64, oracle attractor.Oracle, logger *slog.Logger) (objective.Func, error) {
	var fn objective.Func
	switch cfg.Kind {
	case "", "attractors":
		// One oracle call per candidate; the analysis does not depend on a
		// starting point.
		attractors := &objective.AttractorObjective{Oracle: oracle, Constraints: cfg.Constraints, Logger: logger}
		fn = attractors.Func()
	case "target_state":
		fn = objective.MultiPoint(cfg.Points, cfg.Workers, objective.TargetStatePoint(network.State(cfg.Target), cfg.Steps, seed))
	default:
		return nil, fmt.Errorf("unsupported objective: %s", cfg.Kind)
	}
	if cfg.Timeout > 0 {
		fn = objective.WithTimeout(fn, cfg.Timeout)
	}
	return fn, nil
}
