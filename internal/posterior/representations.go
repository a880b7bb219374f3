package posterior

import (
	"fmt"
	"math"

	"laplace-forge/internal/curv"

	"gonum.org/v1/gonum/mat"
)

// fullPosterior uses Sigma = (H/s2 + lambda I)^-1 and its Cholesky factor as scale.
func fullPosterior(h *mat.SymDense) Func {
	dim := h.SymmetricDim()
	return func(args PriorArguments) (*Posterior, error) {
		args, err := args.normalize()
		if err != nil {
			return nil, err
		}
		prec := mat.NewSymDense(dim, nil)
		prec.ScaleSym(1/args.SigmaSquared, h)
		for i := 0; i < dim; i++ {
			prec.SetSym(i, i, prec.At(i, i)+args.PriorPrec)
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(prec); !ok {
			return nil, ErrNotPositiveDefinite
		}
		cov := mat.NewSymDense(dim, nil)
		if err := chol.InverseTo(cov); err != nil {
			return nil, fmt.Errorf("posterior: invert precision: %w", err)
		}
		var covChol mat.Cholesky
		if ok := covChol.Factorize(cov); !ok {
			return nil, ErrNotPositiveDefinite
		}
		scale := mat.NewTriDense(dim, mat.Lower, nil)
		covChol.LTo(scale)

		variance := make([]float64, dim)
		for i := range variance {
			variance[i] = cov.At(i, i)
		}
		return &Posterior{
			kind: Full,
			dim:  dim,
			args: args,
			covMV: func(v []float64) []float64 {
				out := mat.NewVecDense(dim, nil)
				out.MulVec(cov, mat.NewVecDense(dim, v))
				return out.RawVector().Data
			},
			scaleMV: func(z []float64) []float64 {
				out := mat.NewVecDense(dim, nil)
				out.MulVec(scale, mat.NewVecDense(dim, z))
				return out.RawVector().Data
			},
			variance: variance,
		}, nil
	}
}

// diagonalPosterior keeps only the curvature diagonal.
func diagonalPosterior(diag []float64) Func {
	dim := len(diag)
	return func(args PriorArguments) (*Posterior, error) {
		args, err := args.normalize()
		if err != nil {
			return nil, err
		}
		variance := make([]float64, dim)
		stddev := make([]float64, dim)
		for i, h := range diag {
			prec := h/args.SigmaSquared + args.PriorPrec
			if !(prec > 0) {
				return nil, fmt.Errorf("%w: entry %d has precision %g", ErrNotPositiveDefinite, i, prec)
			}
			variance[i] = 1 / prec
			stddev[i] = math.Sqrt(variance[i])
		}
		return &Posterior{
			kind:     Diagonal,
			dim:      dim,
			args:     args,
			covMV:    func(v []float64) []float64 { return hadamard(variance, v) },
			scaleMV:  func(z []float64) []float64 { return hadamard(stddev, z) },
			variance: variance,
		}, nil
	}
}

// lowRankPosterior uses
//
//	Sigma = U diag(1/(s/s2 + lambda)) U^T + (I - U U^T) / lambda
//
// which is the exact inverse of U diag(s/s2) U^T + lambda I for orthonormal U.
func lowRankPosterior(terms curv.LowRankTerms, dim int) Func {
	u := terms.U
	rank := terms.Rank()
	return func(args PriorArguments) (*Posterior, error) {
		args, err := args.normalize()
		if err != nil {
			return nil, err
		}
		lambda := args.PriorPrec
		// corrections relative to the isotropic prior part
		covCorr := make([]float64, rank)
		scaleCorr := make([]float64, rank)
		for i, s := range terms.S {
			prec := s/args.SigmaSquared + lambda
			covCorr[i] = 1/prec - 1/lambda
			scaleCorr[i] = 1/math.Sqrt(prec) - 1/math.Sqrt(lambda)
		}
		variance := make([]float64, dim)
		for r := 0; r < dim; r++ {
			v := 1 / lambda
			for c := 0; c < rank; c++ {
				x := u.At(r, c)
				v += covCorr[c] * x * x
			}
			variance[r] = v
		}
		apply := func(base float64, corr []float64, v []float64) []float64 {
			vec := mat.NewVecDense(dim, v)
			proj := mat.NewVecDense(rank, nil)
			proj.MulVec(u.T(), vec)
			for i := 0; i < rank; i++ {
				proj.SetVec(i, proj.AtVec(i)*corr[i])
			}
			out := mat.NewVecDense(dim, nil)
			out.MulVec(u, proj)
			out.AddScaledVec(out, base, vec)
			return out.RawVector().Data
		}
		return &Posterior{
			kind:     LowRank,
			dim:      dim,
			args:     args,
			covMV:    func(v []float64) []float64 { return apply(1/lambda, covCorr, v) },
			scaleMV:  func(z []float64) []float64 { return apply(1/math.Sqrt(lambda), scaleCorr, z) },
			variance: variance,
		}, nil
	}
}

func hadamard(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}
