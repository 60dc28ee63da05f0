package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"bnsearch/internal/network"
	"bnsearch/internal/objective"
	"bnsearch/internal/vns"
)

var ErrInvalidConfig = errors.New("invalid config")

const envPrefix = "BNSEARCH_"

var validate = validator.New()

// RunConfig describes one search run end to end.
type RunConfig struct {
	// Seed drives network generation and the scrambler.
	Seed      int64           `json:"seed" yaml:"seed"`
	Network   NetworkConfig   `json:"network" yaml:"network"`
	Search    SearchConfig    `json:"search" yaml:"search"`
	Objective ObjectiveConfig `json:"objective" yaml:"objective"`
	Oracle    OracleConfig    `json:"oracle" yaml:"oracle"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Artifacts ArtifactsConfig `json:"artifacts" yaml:"artifacts"`
}

// NetworkConfig selects the initial network. File and StoredID take
// precedence over generation, in that order.
type NetworkConfig struct {
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	StoredID string `json:"stored_id,omitempty" yaml:"stored_id,omitempty"`

	Nodes              int            `json:"nodes" yaml:"nodes" validate:"gte=0"`
	Labels             []string       `json:"labels,omitempty" yaml:"labels,omitempty"`
	Arity              int            `json:"arity" yaml:"arity" validate:"gte=0"`
	PerNodeArity       map[string]int `json:"per_node_arity,omitempty" yaml:"per_node_arity,omitempty"`
	Bias               float64        `json:"bias" yaml:"bias" validate:"gte=0,lte=1"`
	Probabilistic      bool           `json:"probabilistic" yaml:"probabilistic"`
	SelfLoops          bool           `json:"self_loops" yaml:"self_loops"`
	RandomInitialState bool           `json:"random_initial_state" yaml:"random_initial_state"`
	Inputs             int            `json:"inputs" yaml:"inputs" validate:"gte=0"`
	Outputs            int            `json:"outputs" yaml:"outputs" validate:"gte=0"`
	InputLabels        []string       `json:"input_labels,omitempty" yaml:"input_labels,omitempty"`
	OutputLabels       []string       `json:"output_labels,omitempty" yaml:"output_labels,omitempty"`
}

type SearchConfig struct {
	TargetScore   float64 `json:"target_score" yaml:"target_score"`
	MinFlips      int     `json:"min_flips" yaml:"min_flips" validate:"gte=1"`
	MaxFlips      int     `json:"max_flips" yaml:"max_flips" validate:"gte=-1"`
	MaxIters      int     `json:"max_iters" yaml:"max_iters" validate:"gte=0"`
	MaxStalls     int     `json:"max_stalls" yaml:"max_stalls" validate:"gte=-1"`
	MaxStagnation int     `json:"max_stagnation" yaml:"max_stagnation" validate:"gte=-1"`
	Direction     string  `json:"direction" yaml:"direction" validate:"oneof=maximize minimize"`
	// TiePolicy "reject" keeps the incumbent on equal scores; "accept" moves.
	TiePolicy string `json:"tie_policy" yaml:"tie_policy" validate:"oneof=reject accept"`
	Tabu      bool   `json:"tabu" yaml:"tabu"`
}

type ObjectiveConfig struct {
	Kind        string                         `json:"kind" yaml:"kind" validate:"oneof=attractors target_state"`
	Constraints objective.AttractorConstraints `json:"constraints" yaml:"constraints"`
	// Target, Points and Steps configure the target_state objective.
	Target  map[string]bool `json:"target,omitempty" yaml:"target,omitempty"`
	Points  int             `json:"points" yaml:"points" validate:"gte=1"`
	Steps   int             `json:"steps" yaml:"steps" validate:"gte=0"`
	Workers int             `json:"workers" yaml:"workers" validate:"gte=0"`
	Timeout time.Duration   `json:"timeout" yaml:"timeout" validate:"gte=0"`
}

type OracleConfig struct {
	Kind     string        `json:"kind" yaml:"kind" validate:"oneof=builtin exec grpc"`
	Command  string        `json:"command,omitempty" yaml:"command,omitempty"`
	Args     []string      `json:"args,omitempty" yaml:"args,omitempty"`
	Address  string        `json:"address,omitempty" yaml:"address,omitempty"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`
	Workers  int           `json:"workers" yaml:"workers" validate:"gte=0"`
	MaxNodes int           `json:"max_nodes" yaml:"max_nodes" validate:"gte=0"`
}

type StoreConfig struct {
	Kind string `json:"kind" yaml:"kind" validate:"oneof=memory sqlite"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

type ArtifactsConfig struct {
	// Dir is the artifact root; empty disables artifact output.
	Dir string `json:"dir" yaml:"dir"`
}

// Default returns an Adaptive Walk over a small random network scored by the
// builtin attractor oracle.
func Default() RunConfig {
	return RunConfig{
		Seed: 1,
		Network: NetworkConfig{
			Nodes: 8,
			Arity: 2,
			Bias:  0.5,
		},
		Search: SearchConfig{
			TargetScore:   1,
			MinFlips:      1,
			MaxFlips:      1,
			MaxIters:      1000,
			MaxStalls:     -1,
			MaxStagnation: 250,
			Direction:     "maximize",
			TiePolicy:     "reject",
		},
		Objective: ObjectiveConfig{
			Kind: "attractors",
			Constraints: objective.AttractorConstraints{
				MinAttractors: 2,
				MaxAttractors: 4,
				Tau:           0.5,
				MaxCross:      0.5,
			},
			Points: 1,
			Steps:  16,
		},
		Oracle: OracleConfig{
			Kind:     "builtin",
			Timeout:  30 * time.Second,
			MaxNodes: 20,
		},
		Store: StoreConfig{
			Kind: "memory",
		},
		Artifacts: ArtifactsConfig{
			Dir: "benchmarks",
		},
	}
}

// Load applies defaults, then the file at path (YAML, or JSON as a
// fallback), then BNSEARCH_* environment overrides, and validates the result.
// An empty path skips the file.
func Load(path string) (RunConfig, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *RunConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

// applyEnv overrides fields from the environment. The first value that fails
// to parse is reported as ErrInvalidConfig.
func applyEnv(cfg *RunConfig, getenv func(string) string) error {
	var firstErr error
	get := func(name string) (string, bool) {
		v := strings.TrimSpace(getenv(envPrefix + name))
		return v, v != ""
	}
	fail := func(name, v string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidConfig, envPrefix, name, v, err)
		}
	}
	setInt := func(name string, dst *int) {
		if v, ok := get(name); ok {
			i, err := strconv.Atoi(v)
			if err != nil {
				fail(name, v, err)
				return
			}
			*dst = i
		}
	}
	setFloat := func(name string, dst *float64) {
		if v, ok := get(name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				fail(name, v, err)
				return
			}
			*dst = f
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				fail(name, v, err)
				return
			}
			*dst = d
		}
	}
	setString := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	if v, ok := get("SEED"); ok {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fail("SEED", v, err)
		} else {
			cfg.Seed = i
		}
	}

	setString("NETWORK_FILE", &cfg.Network.File)
	setString("NETWORK_ID", &cfg.Network.StoredID)
	setInt("NODES", &cfg.Network.Nodes)
	setInt("ARITY", &cfg.Network.Arity)
	setFloat("BIAS", &cfg.Network.Bias)
	setInt("INPUTS", &cfg.Network.Inputs)
	setInt("OUTPUTS", &cfg.Network.Outputs)

	setFloat("TARGET_SCORE", &cfg.Search.TargetScore)
	setInt("MIN_FLIPS", &cfg.Search.MinFlips)
	setInt("MAX_FLIPS", &cfg.Search.MaxFlips)
	setInt("MAX_ITERS", &cfg.Search.MaxIters)
	setInt("MAX_STALLS", &cfg.Search.MaxStalls)
	setInt("MAX_STAGNATION", &cfg.Search.MaxStagnation)
	setString("DIRECTION", &cfg.Search.Direction)
	setString("TIE_POLICY", &cfg.Search.TiePolicy)

	setString("OBJECTIVE", &cfg.Objective.Kind)
	setInt("POINTS", &cfg.Objective.Points)
	setDuration("OBJECTIVE_TIMEOUT", &cfg.Objective.Timeout)

	setString("ORACLE", &cfg.Oracle.Kind)
	setString("ORACLE_COMMAND", &cfg.Oracle.Command)
	setString("ORACLE_ADDRESS", &cfg.Oracle.Address)
	setDuration("ORACLE_TIMEOUT", &cfg.Oracle.Timeout)
	setInt("ORACLE_WORKERS", &cfg.Oracle.Workers)

	setString("STORE", &cfg.Store.Kind)
	setString("DB_PATH", &cfg.Store.Path)
	setString("ARTIFACTS_DIR", &cfg.Artifacts.Dir)
	return firstErr
}

// Validate checks field ranges and the rules that span fields.
func (c RunConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Network.File == "" && c.Network.StoredID == "" && c.Network.Nodes == 0 && len(c.Network.Labels) == 0 {
		return fmt.Errorf("%w: network needs nodes, labels, a file or a stored id", ErrInvalidConfig)
	}
	if c.Search.MaxFlips >= 0 && c.Search.MinFlips > c.Search.MaxFlips {
		return fmt.Errorf("%w: min_flips %d > max_flips %d", ErrInvalidConfig, c.Search.MinFlips, c.Search.MaxFlips)
	}

	switch c.Objective.Kind {
	case "attractors":
		k := c.Objective.Constraints
		if k.MaxAttractors > 0 && k.MinAttractors > k.MaxAttractors {
			return fmt.Errorf("%w: min_attractors %d > max_attractors %d", ErrInvalidConfig, k.MinAttractors, k.MaxAttractors)
		}
		if c.Objective.Points > 1 {
			return fmt.Errorf("%w: attractors objective analyzes each candidate once; points must be 1", ErrInvalidConfig)
		}
	case "target_state":
		if len(c.Objective.Target) == 0 {
			return fmt.Errorf("%w: target_state objective needs a target", ErrInvalidConfig)
		}
	}

	switch c.Oracle.Kind {
	case "exec":
		if c.Oracle.Command == "" {
			return fmt.Errorf("%w: exec oracle needs a command", ErrInvalidConfig)
		}
	case "grpc":
		if c.Oracle.Address == "" {
			return fmt.Errorf("%w: grpc oracle needs an address", ErrInvalidConfig)
		}
	}

	if c.Store.Kind == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("%w: sqlite store needs a path", ErrInvalidConfig)
	}
	return nil
}

// Factory translates the network section into a factory configuration.
func (c NetworkConfig) Factory() network.FactoryConfig {
	cfg := network.FactoryConfig{
		Size:               network.Count(c.Nodes),
		Arity:              network.Uniform(c.Arity),
		Bias:               c.Bias,
		Probabilistic:      c.Probabilistic,
		AllowSelfLoops:     c.SelfLoops,
		RandomInitialState: c.RandomInitialState,
		Inputs:             network.Count(c.Inputs),
		Outputs:            network.Count(c.Outputs),
	}
	if len(c.Labels) > 0 {
		cfg.Size = network.Labels(c.Labels...)
	}
	if len(c.PerNodeArity) > 0 {
		cfg.Arity = network.PerNode(c.PerNodeArity)
	}
	if len(c.InputLabels) > 0 {
		cfg.Inputs = network.Labels(c.InputLabels...)
	}
	if len(c.OutputLabels) > 0 {
		cfg.Outputs = network.Labels(c.OutputLabels...)
	}
	return cfg
}

func (c SearchConfig) Params() vns.Params[float64] {
	return vns.Params[float64]{
		TargetScore:   c.TargetScore,
		MinFlips:      c.MinFlips,
		MaxFlips:      c.MaxFlips,
		MaxIters:      c.MaxIters,
		MaxStalls:     c.MaxStalls,
		MaxStagnation: c.MaxStagnation,
	}
}

// Comparators returns the acceptance comparator and the target check for
// the configured direction and tie policy.
func (c SearchConfig) Comparators() (compare, reached vns.Comparator[float64]) {
	weak := c.TiePolicy == "accept"
	if c.Direction == "minimize" {
		if weak {
			return vns.MinimizeWeak[float64](), vns.AtMost[float64]()
		}
		return vns.Minimize[float64](), vns.AtMost[float64]()
	}
	if weak {
		return vns.MaximizeWeak[float64](), vns.AtLeast[float64]()
	}
	return vns.Maximize[float64](), vns.AtLeast[float64]()
}
