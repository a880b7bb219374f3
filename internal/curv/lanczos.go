package curv

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"laplace-forge/internal/rng"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrNoConvergence is returned when the Ritz decomposition fails.
var ErrNoConvergence = errors.New("curv: eigendecomposition did not converge")

const breakdownTol = 1e-10

// LowRankTerms holds an approximate eigendecomposition U diag(S) U^T with
// orthonormal columns in U and eigenvalues in S, largest first.
type LowRankTerms struct {
	U *mat.Dense
	S []float64
}

// Rank returns the number of retained eigenpairs.
func (t LowRankTerms) Rank() int { return len(t.S) }

// LowRank approximates the leading eigenpairs of mv with maxiter Lanczos
// steps. The start vector is drawn from key. Iteration stops early when the
// Krylov space becomes invariant. Negative Ritz values are clipped to zero.
// rank <= 0 keeps every Ritz pair.
func LowRank(mv MV, dim int, key rng.Key, maxiter, rank int) (LowRankTerms, error) {
	if dim <= 0 {
		return LowRankTerms{}, fmt.Errorf("curv: invalid dimension %d", dim)
	}
	if maxiter <= 0 {
		return LowRankTerms{}, fmt.Errorf("curv: maxiter must be > 0 (got %d)", maxiter)
	}
	steps := min(maxiter, dim)

	q := key.Normal(dim)
	floats.Scale(1/floats.Norm(q, 2), q)

	basis := make([][]float64, 0, steps)
	alphas := make([]float64, 0, steps)
	betas := make([]float64, 0, steps)
	for j := 0; j < steps; j++ {
		basis = append(basis, q)
		w := append([]float64(nil), mv(q)...)
		alpha := floats.Dot(w, q)
		alphas = append(alphas, alpha)
		// two passes of Gram-Schmidt keep the basis orthonormal
		for pass := 0; pass < 2; pass++ {
			for _, b := range basis {
				floats.AddScaled(w, -floats.Dot(w, b), b)
			}
		}
		beta := floats.Norm(w, 2)
		if j == steps-1 || beta < breakdownTol*math.Max(1, math.Abs(alpha)) {
			break
		}
		betas = append(betas, beta)
		floats.Scale(1/beta, w)
		q = w
	}

	k := len(alphas)
	tri := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		tri.SetSym(i, i, alphas[i])
		if i+1 < k {
			tri.SetSym(i, i+1, betas[i])
		}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(tri, true); !ok {
		return LowRankTerms{}, ErrNoConvergence
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return vals[order[a]] > vals[order[b]] })
	if rank <= 0 || rank > k {
		rank = k
	}
	order = order[:rank]

	qmat := mat.NewDense(dim, k, nil)
	for j, b := range basis {
		qmat.SetCol(j, b)
	}
	sel := mat.NewDense(k, rank, nil)
	s := make([]float64, rank)
	for c, idx := range order {
		for r := 0; r < k; r++ {
			sel.Set(r, c, vecs.At(r, idx))
		}
		s[c] = math.Max(vals[idx], 0)
	}
	u := mat.NewDense(dim, rank, nil)
	u.Mul(qmat, sel)
	return LowRankTerms{U: u, S: s}, nil
}
