package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"laplace-forge/internal/config"
	"laplace-forge/internal/dataset"
	"laplace-forge/internal/evaluate"
	"laplace-forge/internal/metrics"
	"laplace-forge/internal/rng"
	"laplace-forge/internal/task"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

var (
	cfgPath   string
	verbose   bool
	overrides config.Overrides

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "laplace-forge",
	Short: "Laplace posteriors and predictive pushforwards for small networks",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fit a task, build the posterior and report predictive uncertainty",
	RunE:  runEvaluation,
}

var (
	generateOut     string
	generateShards  int
	generatePerFile int
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write held-out task data as evaluation shards",
	RunE:  generateShardsCmd,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config (defaults are used when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&overrides.Task, "task", "", "Task name ("+fmt.Sprint(task.Names())+")")
	rootCmd.PersistentFlags().Int64Var(&overrides.Seed, "seed", 0, "PRNG seed")

	f := runCmd.Flags()
	f.StringVar(&overrides.Method, "method", "", "Pushforward method (mc|lin)")
	f.StringVar(&overrides.Curvature, "curvature", "", "Curvature representation (full|diagonal|low_rank)")
	f.Float64Var(&overrides.PriorPrec, "prior-prec", 0, "Prior precision")
	f.IntVar(&overrides.NWeightSamples, "n-weight-samples", 0, "Weight samples for the MC pushforward")
	f.IntVar(&overrides.NSamples, "n-samples", 0, "Predictive samples returned per input")
	f.IntVar(&overrides.BatchSize, "batch-size", 0, "Training batch size")
	f.IntVar(&overrides.NumWorkers, "num-workers", 0, "Concurrent pushforward workers")
	f.IntVar(&overrides.TrainSteps, "train-steps", 0, "MAP gradient steps")
	f.IntVar(&overrides.LogEvery, "log-every", 0, "Log every N training steps")
	f.StringSliceVar(&overrides.EvalRoots, "eval-root", nil, "Directory of evaluation shards (repeatable)")

	g := generateCmd.Flags()
	g.StringVar(&generateOut, "out", "shards", "Output directory")
	g.IntVar(&generateShards, "shards", 1, "Number of shards")
	g.IntVar(&generatePerFile, "per-shard", 64, "Examples per shard")

	rootCmd.AddCommand(runCmd, generateCmd)
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return nil, err
		}
	}
	cfg.ApplyOverrides(overrides)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runEvaluation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	report, err := evaluate.Run(cmd.Context(), evaluate.Options{
		Config:   cfg,
		Logger:   logger,
		Recorder: metrics.NewRecorder(reg),
	})
	if err != nil {
		return err
	}

	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, fam := range families {
		logger.Debug("metric", zap.String("name", fam.GetName()), zap.Int("series", len(fam.GetMetric())))
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	return enc.Encode(report)
}

func generateShardsCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if generateShards <= 0 || generatePerFile <= 0 {
		return fmt.Errorf("shards and per-shard must be > 0")
	}
	tk, err := task.Lookup(cfg.Task, rng.NewKey(uint64(cfg.Seed)))
	if err != nil {
		return err
	}
	all := tk.HeldOutBatch(generateShards * generatePerFile)
	for i := 0; i < generateShards; i++ {
		lo, hi := i*generatePerFile, (i+1)*generatePerFile
		shard := all
		shard.Inputs = all.Inputs[lo:hi]
		shard.Targets = all.Targets[lo:hi]
		path := filepath.Join(generateOut, dataset.ShardName(i))
		if err := dataset.WriteShard(path, shard); err != nil {
			return err
		}
		logger.Info("wrote shard", zap.String("path", path), zap.Int("examples", shard.Len()))
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
