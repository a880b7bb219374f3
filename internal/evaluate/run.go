// Package evaluate wires a task, MAP fitting, curvature, posterior and
// pushforward into one evaluation run.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"laplace-forge/internal/config"
	"laplace-forge/internal/curv"
	"laplace-forge/internal/dataset"
	"laplace-forge/internal/loss"
	"laplace-forge/internal/metrics"
	"laplace-forge/internal/model"
	"laplace-forge/internal/posterior"
	"laplace-forge/internal/pushforward"
	"laplace-forge/internal/rng"
	"laplace-forge/internal/task"
	"laplace-forge/internal/trainer"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Options configures Run.
type Options struct {
	Config   *config.Config
	Logger   *zap.Logger
	Recorder *metrics.Recorder
}

// Report summarizes an evaluation run.
type Report struct {
	Task          string  `yaml:"task"`
	Method        string  `yaml:"method"`
	Curvature     string  `yaml:"curvature"`
	PriorPrec     float64 `yaml:"prior_prec"`
	NumParams     int     `yaml:"num_params"`
	Inputs        int     `yaml:"inputs"`
	NSamples      int     `yaml:"n_samples"`
	OutChannels   int     `yaml:"out_channels"`
	MeanStd       float64 `yaml:"mean_pred_std"`
	RMSE          float64 `yaml:"rmse,omitempty"`
	NLL           float64 `yaml:"nll,omitempty"`
	ChiSquared    float64 `yaml:"chi_squared,omitempty"`
	Coverage95    float64 `yaml:"coverage_95,omitempty"`
	Accuracy      float64 `yaml:"accuracy,omitempty"`
	ElapsedMillis int64   `yaml:"elapsed_ms"`

	Results pushforward.Stacked `yaml:"-"`
}

// Run executes one evaluation.
func Run(ctx context.Context, opts Options) (*Report, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("evaluate: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	started := time.Now()

	keys := rng.NewKey(uint64(cfg.Seed)).Split(3)
	taskKey, postKey, pfKey := keys[0], keys[1], keys[2]

	tk, err := task.Lookup(cfg.Task, taskKey)
	if err != nil {
		return nil, err
	}
	fn := tk.ModelFn()
	train := tk.DataBatch(cfg.BatchSize)

	mean := tk.Parameters()
	if cfg.TrainSteps > 0 {
		mean, err = trainer.Fit(ctx, trainer.FitConfig{
			Model:        fn,
			Init:         mean,
			Batch:        train,
			Loss:         tk.LossFnType,
			Steps:        cfg.TrainSteps,
			LearningRate: cfg.LearningRate,
			WeightDecay:  cfg.PriorPrec / float64(train.Len()),
			LogEvery:     cfg.LogEvery,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("evaluate: fit: %w", err)
		}
	}

	ggn, err := curv.CreateGGNMV(fn, mean, train, tk.LossFnType)
	if err != nil {
		return nil, fmt.Errorf("evaluate: curvature: %w", err)
	}
	kind, err := posterior.ParseKind(cfg.Curvature)
	if err != nil {
		return nil, err
	}
	getPosterior, err := posterior.CreatePosteriorFunction(kind, ggn, fn.Layout(),
		posterior.WithKey(postKey),
		posterior.WithMaxIter(cfg.MaxIter),
		posterior.WithRank(cfg.Rank),
	)
	if err != nil {
		return nil, fmt.Errorf("evaluate: posterior: %w", err)
	}
	args := posterior.PriorArguments{PriorPrec: cfg.PriorPrec, SigmaSquared: cfg.SigmaSquared}

	pf, err := buildPushforward(cfg, fn, mean, getPosterior, args, pfKey, logger)
	if err != nil {
		return nil, err
	}

	eval, err := evalBatch(ctx, cfg, tk)
	if err != nil {
		return nil, err
	}
	logger.Info("pushforward start",
		zap.String("task", tk.Name),
		zap.String("method", cfg.Method),
		zap.String("curvature", string(kind)),
		zap.Int("inputs", eval.Len()),
		zap.Int("params", fn.Layout().Size()),
	)

	instrumented := instrument(pf, opts.Recorder, cfg.Method, string(kind))
	results, err := pushforward.Apply(ctx, instrumented, eval.Inputs, cfg.NumWorkers)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	stacked := pushforward.Stack(results)

	report := &Report{
		Task:        tk.Name,
		Method:      cfg.Method,
		Curvature:   string(kind),
		PriorPrec:   cfg.PriorPrec,
		NumParams:   fn.Layout().Size(),
		Inputs:      eval.Len(),
		OutChannels: tk.OutChannels,
		Results:     stacked,
	}
	report.NSamples, _ = stacked.SampleShape()
	if err := score(report, tk.LossFnType, stacked, eval.Targets); err != nil {
		return nil, err
	}
	opts.Recorder.SetMeanStd(cfg.Method, string(kind), report.MeanStd)
	report.ElapsedMillis = time.Since(started).Milliseconds()

	logger.Info("pushforward done",
		zap.Float64("mean_pred_std", report.MeanStd),
		zap.Float64("rmse", report.RMSE),
		zap.Float64("nll", report.NLL),
		zap.Float64("accuracy", report.Accuracy),
		zap.Int64("elapsed_ms", report.ElapsedMillis),
	)
	return report, nil
}

func buildPushforward(cfg *config.Config, fn model.Fn, mean []float64, get posterior.Func, args posterior.PriorArguments, key rng.Key, logger *zap.Logger) (pushforward.Func, error) {
	switch cfg.Method {
	case config.MethodMC:
		return pushforward.SetMCPushforward(pushforward.MCConfig{
			Key:            key,
			Model:          fn,
			Mean:           mean,
			Posterior:      get,
			PriorArguments: args,
			NWeightSamples: cfg.NWeightSamples,
			NSamples:       cfg.NSamples,
			Logger:         logger,
		})
	case config.MethodLin:
		return pushforward.SetLinPushforward(pushforward.LinConfig{
			Key:            key,
			Model:          fn,
			Mean:           mean,
			Posterior:      get,
			PriorArguments: args,
			NSamples:       cfg.NSamples,
			Logger:         logger,
		})
	}
	return nil, fmt.Errorf("evaluate: unknown method %q", cfg.Method)
}

// evalBatch prefers shards when roots are configured.
func evalBatch(ctx context.Context, cfg *config.Config, tk *task.Task) (model.Batch, error) {
	if len(cfg.EvalRoots) == 0 {
		return tk.HeldOutBatch(cfg.EvalBatchSize), nil
	}
	paths, err := dataset.DiscoverAll(cfg.EvalRoots)
	if err != nil {
		return model.Batch{}, err
	}
	if len(paths) == 0 {
		return model.Batch{}, fmt.Errorf("evaluate: no shards under %v", cfg.EvalRoots)
	}
	batch, err := dataset.LoadBatch(ctx, paths)
	if err != nil {
		return model.Batch{}, err
	}
	if batch.Len() == 0 {
		return model.Batch{}, errors.New("evaluate: shards hold no samples")
	}
	return batch, nil
}

func instrument(pf pushforward.Func, rec *metrics.Recorder, method, curvature string) pushforward.Func {
	if rec == nil {
		return pf
	}
	return func(x []float64) (pushforward.Results, error) {
		start := time.Now()
		res, err := pf(x)
		rec.Observe(method, curvature, time.Since(start), err)
		return res, err
	}
}

func score(r *Report, kind loss.Kind, s pushforward.Stacked, targets [][]float64) error {
	var stds []float64
	for _, row := range s.PredStd {
		stds = append(stds, row...)
	}
	r.MeanStd = stat.Mean(stds, nil)

	var err error
	switch kind {
	case loss.CrossEntropy:
		r.Accuracy, err = metrics.Accuracy(s.PredMean, targets)
		return err
	default:
		if r.RMSE, err = metrics.RMSE(s.PredMean, targets); err != nil {
			return err
		}
		if r.NLL, err = metrics.GaussianNLL(s.PredMean, s.PredStd, targets); err != nil {
			return err
		}
		if r.ChiSquared, err = metrics.ChiSquared(s.PredMean, s.PredStd, targets); err != nil {
			return err
		}
		r.Coverage95, err = metrics.Coverage(s.PredMean, s.PredStd, targets, 1.96)
		return err
	}
}
