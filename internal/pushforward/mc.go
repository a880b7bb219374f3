package pushforward

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// SetMCPushforward draws NWeightSamples parameter samples from the posterior
// once and returns a function that evaluates the model at each of them.
// PredMean and PredStd are sample statistics; Samples holds the first
// NSamples outputs.
func SetMCPushforward(cfg MCConfig) (Func, error) {
	post, err := setup(cfg.Model, cfg.Mean, cfg.Posterior, cfg.PriorArguments)
	if err != nil {
		return nil, err
	}
	if cfg.NWeightSamples <= 0 {
		return nil, fmt.Errorf("pushforward: n_weight_samples must be > 0 (got %d)", cfg.NWeightSamples)
	}
	if cfg.NSamples <= 0 {
		cfg.NSamples = DefaultNSamples
	}
	if cfg.NSamples > cfg.NWeightSamples {
		return nil, fmt.Errorf("pushforward: n_samples (%d) exceeds n_weight_samples (%d)", cfg.NSamples, cfg.NWeightSamples)
	}

	weights := drawPerturbations(post, cfg.Key, cfg.NWeightSamples)
	for _, w := range weights {
		for j := range w {
			w[j] += cfg.Mean[j]
		}
	}
	orNop(cfg.Logger).Debug("mc pushforward ready",
		zap.String("curvature", string(post.Kind())),
		zap.Int("weight_samples", len(weights)),
		zap.Int("params", post.Dim()),
	)

	fn := cfg.Model
	mean := append([]float64(nil), cfg.Mean...)
	nSamples := cfg.NSamples
	withCov := cfg.PredCov
	return func(x []float64) (Results, error) {
		pred, err := fn.Apply(mean, x)
		if err != nil {
			return Results{}, err
		}
		out := len(pred)
		runMean := make([]float64, out)
		m2 := make([]float64, out)
		var outer *mat.SymDense
		if withCov {
			outer = mat.NewSymDense(out, nil)
		}
		samples := make([][]float64, 0, nSamples)
		for i, w := range weights {
			y, err := fn.Apply(w, x)
			if err != nil {
				return Results{}, err
			}
			if i < nSamples {
				samples = append(samples, y)
			}
			// Welford update
			n := float64(i + 1)
			delta := make([]float64, out)
			for k := range y {
				delta[k] = y[k] - runMean[k]
				runMean[k] += delta[k] / n
				m2[k] += delta[k] * (y[k] - runMean[k])
			}
			if withCov {
				for a := 0; a < out; a++ {
					for b := a; b < out; b++ {
						outer.SetSym(a, b, outer.At(a, b)+delta[a]*(y[b]-runMean[b]))
					}
				}
			}
		}
		count := float64(len(weights))
		res := Results{
			Pred:     pred,
			PredMean: runMean,
			PredVar:  make([]float64, out),
			PredStd:  make([]float64, out),
			Samples:  samples,
		}
		for k := range m2 {
			v := math.Max(m2[k]/count, 0)
			res.PredVar[k] = v
			res.PredStd[k] = math.Sqrt(v)
		}
		if withCov {
			outer.ScaleSym(1/count, outer)
			res.PredCov = outer
		}
		return res, nil
	}, nil
}
