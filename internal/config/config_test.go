package config

import (
	"os"
	"path/filepath"
	"testing"

	"laplace-forge/internal/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
task: classification
method: mc
curvature: low_rank
prior_prec: 3.5
n_weight_samples: 200
eval_roots: ["/data/a", "/data/b"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "classification", cfg.Task)
	assert.Equal(t, MethodMC, cfg.Method)
	assert.Equal(t, "low_rank", cfg.Curvature)
	assert.Equal(t, 3.5, cfg.PriorPrec)
	assert.Equal(t, 200, cfg.NWeightSamples)
	assert.Equal(t, []string{"/data/a", "/data/b"}, cfg.EvalRoots)
	assert.Equal(t, Default().MaxIter, cfg.MaxIter)
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "prior_precision: 1\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides(Overrides{
		Curvature: "diagonal",
		PriorPrec: 10,
		EvalRoots: []string{"/shards"},
	})
	assert.Equal(t, "diagonal", cfg.Curvature)
	assert.Equal(t, 10.0, cfg.PriorPrec)
	assert.Equal(t, []string{"/shards"}, cfg.EvalRoots)
	assert.Equal(t, Default().Method, cfg.Method, "zero overrides are ignored")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown task":         func(c *Config) { c.Task = "segmentation" },
		"unknown method":       func(c *Config) { c.Method = "laplace" },
		"unknown kind":         func(c *Config) { c.Curvature = "kfac" },
		"zero prior":           func(c *Config) { c.PriorPrec = 0 },
		"too few weights":      func(c *Config) { c.Method = MethodMC; c.NWeightSamples = 2 },
		"no eval data":         func(c *Config) { c.EvalBatchSize = 0 },
		"no workers":           func(c *Config) { c.NumWorkers = 0 },
		"negative sigma":       func(c *Config) { c.SigmaSquared = -1 },
		"non-positive maxiter": func(c *Config) { c.MaxIter = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Task = "segmentation"
	assert.ErrorIs(t, cfg.Validate(), task.ErrUnknownTask)

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())

	cfg = Default()
	cfg.LogEvery = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.LogEvery)
}
