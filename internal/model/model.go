package model

import (
	"laplace-forge/internal/params"

	"gonum.org/v1/gonum/mat"
)

// Batch represents a labeled minibatch. Classification targets are one-hot.
type Batch struct {
	Inputs  [][]float64
	Targets [][]float64
}

// Len returns the number of examples.
func (b Batch) Len() int { return len(b.Inputs) }

// Fn is a model function evaluated at an explicit parameter vector.
type Fn interface {
	InDim() int
	OutDim() int
	Layout() params.Layout
	// Apply evaluates the model at theta on a single input.
	Apply(theta, x []float64) ([]float64, error)
	// Jacobian returns d Apply(theta, x) / d theta as an OutDim x P matrix.
	Jacobian(theta, x []float64) (*mat.Dense, error)
}
