// Package pushforward maps a point-estimate model and a Laplace posterior
// into per-input predictive distributions, either by sampling weights
// (Monte-Carlo) or by linearizing the model around the mean (delta method).
package pushforward

import (
	"errors"
	"fmt"

	"laplace-forge/internal/model"
	"laplace-forge/internal/posterior"
	"laplace-forge/internal/rng"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// DefaultNSamples is the number of predictive samples returned per input.
const DefaultNSamples = 5

// Results is the predictive distribution for one input.
type Results struct {
	// Pred is the model evaluated at the posterior mean.
	Pred     []float64
	PredMean []float64
	PredVar  []float64
	PredStd  []float64
	// PredCov is only populated when requested.
	PredCov *mat.SymDense
	// Samples has one row per predictive sample.
	Samples [][]float64
}

// Func computes the predictive distribution of a single input.
// Implementations are deterministic and safe for concurrent use.
type Func func(x []float64) (Results, error)

// MCConfig configures SetMCPushforward.
type MCConfig struct {
	Key            rng.Key
	Model          model.Fn
	Mean           []float64
	Posterior      posterior.Func
	PriorArguments posterior.PriorArguments
	NWeightSamples int
	NSamples       int
	PredCov        bool
	Logger         *zap.Logger
}

// LinConfig configures SetLinPushforward.
type LinConfig struct {
	Key            rng.Key
	Model          model.Fn
	Mean           []float64
	Posterior      posterior.Func
	PriorArguments posterior.PriorArguments
	NSamples       int
	PredCov        bool
	Logger         *zap.Logger
}

func setup(fn model.Fn, mean []float64, get posterior.Func, args posterior.PriorArguments) (*posterior.Posterior, error) {
	if fn == nil {
		return nil, errors.New("pushforward: nil model")
	}
	if get == nil {
		return nil, errors.New("pushforward: nil posterior function")
	}
	if err := fn.Layout().Check(mean); err != nil {
		return nil, fmt.Errorf("pushforward: mean: %w", err)
	}
	post, err := get(args)
	if err != nil {
		return nil, fmt.Errorf("pushforward: posterior: %w", err)
	}
	if post.Dim() != len(mean) {
		return nil, fmt.Errorf("pushforward: posterior has dimension %d, mean has %d", post.Dim(), len(mean))
	}
	return post, nil
}

// drawPerturbations samples n perturbations with independent child keys.
func drawPerturbations(post *posterior.Posterior, key rng.Key, n int) [][]float64 {
	out := make([][]float64, n)
	for i, k := range key.Split(n) {
		out[i] = post.Sample(k)
	}
	return out
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
