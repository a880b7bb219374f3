package params

// Clone copies a parameter vector.
func Clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

// Axpy returns alpha*x + y as a new vector.
func Axpy(alpha float64, x, y []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = alpha*x[i] + y[i]
	}
	return out
}
