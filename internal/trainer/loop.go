package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"laplace-forge/internal/loss"
	"laplace-forge/internal/metrics"
	"laplace-forge/internal/model"
	"laplace-forge/internal/params"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// FitConfig captures the knobs required by the training loop.
type FitConfig struct {
	Model        model.Fn
	Init         []float64
	Batch        model.Batch
	Loss         loss.Kind
	Steps        int
	LearningRate float64
	// WeightDecay adds (WeightDecay/2)*|theta|^2 to the objective.
	WeightDecay float64
	LogEvery    int
	Logger      *zap.Logger
}

// Fit runs full-batch gradient descent from cfg.Init and returns the MAP
// estimate. Init is not modified.
func Fit(ctx context.Context, cfg FitConfig) ([]float64, error) {
	if cfg.Model == nil {
		return nil, errors.New("trainer: nil model")
	}
	if cfg.Steps <= 0 {
		return nil, errors.New("trainer: steps must be > 0")
	}
	if cfg.Batch.Len() == 0 {
		return nil, errors.New("trainer: empty batch")
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.01
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 50
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Model.Layout().Check(cfg.Init); err != nil {
		return nil, fmt.Errorf("trainer: init: %w", err)
	}

	theta := params.Clone(cfg.Init)
	var window metrics.Window

	for step := 1; step <= cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		lossValue, grad, err := objective(cfg, theta)
		if err != nil {
			return nil, err
		}
		for i := range theta {
			theta[i] -= cfg.LearningRate * grad[i]
		}
		window.Record(cfg.Batch.Len(), time.Since(start), lossValue)

		if step%cfg.LogEvery == 0 {
			snap := window.Snapshot()
			logger.Info("fit progress",
				zap.Int("step", step),
				zap.Float64("examples_per_sec", snap.ExamplesPerSec),
				zap.Float64("step_ms", snap.AvgStepMS),
				zap.Float64("avg_loss", snap.AvgLoss),
				zap.Float64("loss", snap.LastLoss),
			)
		}
	}

	return theta, nil
}

// objective returns the mean loss over the batch and its gradient.
func objective(cfg FitConfig, theta []float64) (float64, []float64, error) {
	dim := len(theta)
	grad := mat.NewVecDense(dim, nil)
	tmp := mat.NewVecDense(dim, nil)
	total := 0.0
	for n, x := range cfg.Batch.Inputs {
		pred, err := cfg.Model.Apply(theta, x)
		if err != nil {
			return 0, nil, fmt.Errorf("trainer: example %d: %w", n, err)
		}
		jac, err := cfg.Model.Jacobian(theta, x)
		if err != nil {
			return 0, nil, fmt.Errorf("trainer: example %d: %w", n, err)
		}
		target := cfg.Batch.Targets[n]
		total += cfg.Loss.Value(pred, target)
		g := cfg.Loss.Grad(pred, target)
		tmp.MulVec(jac.T(), mat.NewVecDense(len(g), g))
		grad.AddVec(grad, tmp)
	}
	count := float64(cfg.Batch.Len())
	grad.ScaleVec(1/count, grad)
	mean := total / count
	if cfg.WeightDecay > 0 {
		grad.AddScaledVec(grad, cfg.WeightDecay, mat.NewVecDense(dim, theta))
		sq := 0.0
		for _, v := range theta {
			sq += v * v
		}
		mean += 0.5 * cfg.WeightDecay * sq
	}
	return mean, grad.RawVector().Data, nil
}
