package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"laplace-forge/internal/posterior"
	"laplace-forge/internal/task"

	"gopkg.in/yaml.v3"
)

// Method names a pushforward strategy.
const (
	MethodMC  = "mc"
	MethodLin = "lin"
)

// Config captures the runtime knobs for an evaluation run.
type Config struct {
	Task           string   `yaml:"task"`
	Seed           int64    `yaml:"seed"`
	Method         string   `yaml:"method"`
	Curvature      string   `yaml:"curvature"`
	PriorPrec      float64  `yaml:"prior_prec"`
	SigmaSquared   float64  `yaml:"sigma_squared"`
	MaxIter        int      `yaml:"maxiter"`
	Rank           int      `yaml:"rank"`
	NWeightSamples int      `yaml:"n_weight_samples"`
	NSamples       int      `yaml:"n_samples"`
	BatchSize      int      `yaml:"batch_size"`
	EvalBatchSize  int      `yaml:"eval_batch_size"`
	EvalRoots      []string `yaml:"eval_roots"`
	NumWorkers     int      `yaml:"num_workers"`
	TrainSteps     int      `yaml:"train_steps"`
	LearningRate   float64  `yaml:"learning_rate"`
	LogEvery       int      `yaml:"log_every"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	Task           string
	Seed           int64
	Method         string
	Curvature      string
	PriorPrec      float64
	NWeightSamples int
	NSamples       int
	BatchSize      int
	NumWorkers     int
	TrainSteps     int
	LogEvery       int
	EvalRoots      []string
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Task:           "regression",
		Method:         MethodLin,
		Curvature:      string(posterior.Full),
		PriorPrec:      1,
		SigmaSquared:   1,
		MaxIter:        20,
		NWeightSamples: 1000,
		NSamples:       5,
		BatchSize:      20,
		EvalBatchSize:  20,
		NumWorkers:     4,
		TrainSteps:     500,
		LearningRate:   0.05,
		LogEvery:       50,
	}
}

// Load reads a Config from YAML on top of Default and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := parseYAML(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Task != "" {
		c.Task = o.Task
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.Method != "" {
		c.Method = o.Method
	}
	if o.Curvature != "" {
		c.Curvature = o.Curvature
	}
	if o.PriorPrec > 0 {
		c.PriorPrec = o.PriorPrec
	}
	if o.NWeightSamples > 0 {
		c.NWeightSamples = o.NWeightSamples
	}
	if o.NSamples > 0 {
		c.NSamples = o.NSamples
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.TrainSteps > 0 {
		c.TrainSteps = o.TrainSteps
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if len(o.EvalRoots) > 0 {
		c.EvalRoots = append([]string(nil), o.EvalRoots...)
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if !slices.Contains(task.Names(), c.Task) {
		return fmt.Errorf("%w: %q", task.ErrUnknownTask, c.Task)
	}
	if c.Method != MethodMC && c.Method != MethodLin {
		return fmt.Errorf("method must be %q or %q (got %q)", MethodMC, MethodLin, c.Method)
	}
	if _, err := posterior.ParseKind(c.Curvature); err != nil {
		return err
	}
	if !(c.PriorPrec > 0) {
		return fmt.Errorf("prior_prec must be > 0 (got %g)", c.PriorPrec)
	}
	if c.SigmaSquared < 0 {
		return fmt.Errorf("sigma_squared must be >= 0 (got %g)", c.SigmaSquared)
	}
	if c.MaxIter <= 0 {
		return fmt.Errorf("maxiter must be > 0 (got %d)", c.MaxIter)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.NSamples <= 0 {
		return fmt.Errorf("n_samples must be > 0 (got %d)", c.NSamples)
	}
	if c.Method == MethodMC && c.NWeightSamples < c.NSamples {
		return fmt.Errorf("n_weight_samples must be >= n_samples (got %d < %d)", c.NWeightSamples, c.NSamples)
	}
	if c.EvalBatchSize <= 0 && len(c.EvalRoots) == 0 {
		return errors.New("either eval_batch_size or eval_roots must be set")
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("num_workers must be > 0 (got %d)", c.NumWorkers)
	}
	if c.TrainSteps < 0 {
		return fmt.Errorf("train_steps must be >= 0 (got %d)", c.TrainSteps)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	return nil
}

func parseYAML(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}
