package pushforward

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SetLinPushforward linearizes the model around the posterior mean:
//
//	f(theta) ~ f(mean) + J (theta - mean)
//
// so the predictive covariance is J Sigma J^T. NSamples perturbations are
// drawn once from Key and shared by every input.
func SetLinPushforward(cfg LinConfig) (Func, error) {
	post, err := setup(cfg.Model, cfg.Mean, cfg.Posterior, cfg.PriorArguments)
	if err != nil {
		return nil, err
	}
	if cfg.NSamples <= 0 {
		cfg.NSamples = DefaultNSamples
	}
	perturbations := drawPerturbations(post, cfg.Key, cfg.NSamples)
	orNop(cfg.Logger).Debug("linearized pushforward ready",
		zap.String("curvature", string(post.Kind())),
		zap.Int("samples", len(perturbations)),
		zap.Int("params", post.Dim()),
	)

	fn := cfg.Model
	mean := append([]float64(nil), cfg.Mean...)
	withCov := cfg.PredCov
	return func(x []float64) (Results, error) {
		pred, err := fn.Apply(mean, x)
		if err != nil {
			return Results{}, err
		}
		jac, err := fn.Jacobian(mean, x)
		if err != nil {
			return Results{}, err
		}
		out := len(pred)

		// J Sigma J^T with one covariance product per output row
		sigmaRows := make([][]float64, out)
		for a := range sigmaRows {
			sigmaRows[a] = post.CovMV(jac.RawRowView(a))
		}
		cov := mat.NewSymDense(out, nil)
		for a := 0; a < out; a++ {
			for b := a; b < out; b++ {
				v := 0.5 * (floats.Dot(jac.RawRowView(a), sigmaRows[b]) + floats.Dot(jac.RawRowView(b), sigmaRows[a]))
				cov.SetSym(a, b, v)
			}
		}

		res := Results{
			Pred:     pred,
			PredMean: append([]float64(nil), pred...),
			PredVar:  make([]float64, out),
			PredStd:  make([]float64, out),
			Samples:  make([][]float64, len(perturbations)),
		}
		for k := 0; k < out; k++ {
			v := math.Max(cov.At(k, k), 0)
			res.PredVar[k] = v
			res.PredStd[k] = math.Sqrt(v)
		}
		if withCov {
			res.PredCov = cov
		}
		jd := mat.NewVecDense(out, nil)
		for i, delta := range perturbations {
			jd.MulVec(jac, mat.NewVecDense(len(delta), delta))
			s := make([]float64, out)
			for k := range s {
				s[k] = pred[k] + jd.AtVec(k)
			}
			res.Samples[i] = s
		}
		return res, nil
	}, nil
}
