package posterior

import (
	"testing"

	"laplace-forge/internal/curv"
	"laplace-forge/internal/params"
	"laplace-forge/internal/rng"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const dim = 6

// spdOperator returns A = B B^T with a rank-4 B, so the curvature is singular.
func spdOperator() (curv.MV, *mat.SymDense) {
	b := mat.NewDense(dim, 4, rng.NewKey(5).Normal(dim*4))
	a := mat.NewSymDense(dim, nil)
	a.SymOuterK(1, b)
	mv := func(v []float64) []float64 {
		out := mat.NewVecDense(dim, nil)
		out.MulVec(a, mat.NewVecDense(dim, v))
		return out.RawVector().Data
	}
	return mv, a
}

func layout(t *testing.T) params.Layout {
	t.Helper()
	l, err := params.NewLayout([]string{"w"}, [][]int{{dim}})
	require.NoError(t, err)
	return l
}

func columns(f func([]float64) []float64) *mat.Dense {
	out := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		e := make([]float64, dim)
		e[i] = 1
		out.SetCol(i, f(e))
	}
	return out
}

func assertMatrixNear(t *testing.T, want, got mat.Matrix, tol float64) {
	t.Helper()
	r, c := want.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.InDelta(t, want.At(i, j), got.At(i, j), tol, "[%d,%d]", i, j)
		}
	}
}

func TestFullPosteriorInvertsPrecision(t *testing.T) {
	mv, a := spdOperator()
	get, err := CreatePosteriorFunction(Full, mv, layout(t))
	require.NoError(t, err)
	post, err := get(PriorArguments{PriorPrec: 0.5, SigmaSquared: 2})
	require.NoError(t, err)
	assert.Equal(t, Full, post.Kind())
	assert.Equal(t, dim, post.Dim())

	prec := mat.NewDense(dim, dim, nil)
	prec.Scale(0.5, a)
	for i := 0; i < dim; i++ {
		prec.Set(i, i, prec.At(i, i)+0.5)
	}
	var ident mat.Dense
	ident.Mul(columns(post.CovMV), prec)
	assertMatrixNear(t, eye(), &ident, 1e-8)
}

func TestScaleReproducesCovariance(t *testing.T) {
	mv, _ := spdOperator()
	for _, kind := range Kinds() {
		get, err := CreatePosteriorFunction(kind, mv, layout(t), WithMaxIter(dim), WithKey(rng.NewKey(20)))
		require.NoError(t, err)
		post, err := get(PriorArguments{PriorPrec: 1.5})
		require.NoError(t, err, kind)

		scale := columns(post.ScaleMV)
		var sst mat.Dense
		sst.Mul(scale, scale.T())
		cov := columns(post.CovMV)
		assertMatrixNear(t, cov, &sst, 1e-8)

		variance := post.Variance()
		for i := 0; i < dim; i++ {
			assert.InDelta(t, cov.At(i, i), variance[i], 1e-10, "%s variance[%d]", kind, i)
			assert.Greater(t, variance[i], 0.0)
		}
	}
}

func TestDiagonalPosteriorUsesCurvatureDiagonal(t *testing.T) {
	mv, a := spdOperator()
	get, err := CreatePosteriorFunction(Diagonal, mv, layout(t))
	require.NoError(t, err)
	post, err := get(PriorArguments{PriorPrec: 2})
	require.NoError(t, err)
	for i, v := range post.Variance() {
		assert.InDelta(t, 1/(a.At(i, i)+2), v, 1e-12)
	}
}

func TestLowRankWithFullKrylovMatchesFull(t *testing.T) {
	mv, _ := spdOperator()
	args := PriorArguments{PriorPrec: 0.7}

	getFull, err := CreatePosteriorFunction(Full, mv, layout(t))
	require.NoError(t, err)
	full, err := getFull(args)
	require.NoError(t, err)

	getLR, err := CreatePosteriorFunction(LowRank, mv, layout(t), WithMaxIter(dim), WithKey(rng.NewKey(1)))
	require.NoError(t, err)
	lr, err := getLR(args)
	require.NoError(t, err)

	assertMatrixNear(t, columns(full.CovMV), columns(lr.CovMV), 1e-7)
}

func TestPriorDominatesAtHugePrecision(t *testing.T) {
	mv, _ := spdOperator()
	for _, kind := range Kinds() {
		get, err := CreatePosteriorFunction(kind, mv, layout(t))
		require.NoError(t, err)
		post, err := get(PriorArguments{PriorPrec: 99999999999.0})
		require.NoError(t, err, kind)
		for _, v := range post.Sample(rng.NewKey(0)) {
			assert.Less(t, v*v, 1e-8, kind)
		}
	}
}

func TestPosteriorErrors(t *testing.T) {
	mv, _ := spdOperator()
	_, err := CreatePosteriorFunction(Kind("kfac"), mv, layout(t))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = CreatePosteriorFunction(Full, nil, layout(t))
	assert.Error(t, err)

	get, err := CreatePosteriorFunction(Diagonal, mv, layout(t))
	require.NoError(t, err)
	_, err = get(PriorArguments{PriorPrec: 0})
	assert.Error(t, err)
	_, err = get(PriorArguments{PriorPrec: 1, SigmaSquared: -1})
	assert.Error(t, err)

	k, err := ParseKind("diag")
	require.NoError(t, err)
	assert.Equal(t, Diagonal, k)
	_, err = ParseKind("dense")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func eye() *mat.Dense {
	out := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		out.Set(i, i, 1)
	}
	return out
}
