package curv

import "gonum.org/v1/gonum/mat"

// ToDense materializes mv by probing every unit vector. The result is
// symmetrized to absorb round-off.
func ToDense(mv MV, dim int) *mat.SymDense {
	cols := make([][]float64, dim)
	e := make([]float64, dim)
	for i := 0; i < dim; i++ {
		e[i] = 1
		cols[i] = mv(e)
		e[i] = 0
	}
	out := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			out.SetSym(i, j, 0.5*(cols[j][i]+cols[i][j]))
		}
	}
	return out
}

// Diagonal extracts the diagonal of mv.
func Diagonal(mv MV, dim int) []float64 {
	diag := make([]float64, dim)
	e := make([]float64, dim)
	for i := 0; i < dim; i++ {
		e[i] = 1
		diag[i] = mv(e)[i]
		e[i] = 0
	}
	return diag
}
