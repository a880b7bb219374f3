// Package curv builds matrix-free curvature operators over a model's
// parameters and the routines that turn them into dense, diagonal or
// low-rank representations.
package curv

import (
	"errors"
	"fmt"

	"laplace-forge/internal/loss"
	"laplace-forge/internal/model"

	"gonum.org/v1/gonum/mat"
)

// MV is the action of a symmetric operator on a parameter-shaped vector.
// It panics if v does not have the operator's dimension.
type MV func(v []float64) []float64

type ggnOptions struct {
	factor float64
}

// GGNOption customizes CreateGGNMV.
type GGNOption func(*ggnOptions)

// WithFactor scales the summed curvature, e.g. by the dataset size over the
// batch size.
func WithFactor(f float64) GGNOption {
	return func(o *ggnOptions) { o.factor = f }
}

// CreateGGNMV returns the generalized Gauss-Newton product
//
//	v -> factor * sum_n J_n^T H_n J_n v
//
// where J_n is the model Jacobian at theta on input n and H_n is the loss
// Hessian with respect to the model output. Jacobians and Hessians are
// computed once; the returned function only performs products.
func CreateGGNMV(fn model.Fn, theta []float64, batch model.Batch, kind loss.Kind, opts ...GGNOption) (MV, error) {
	o := ggnOptions{factor: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if batch.Len() == 0 {
		return nil, errors.New("curv: empty data batch")
	}
	if err := fn.Layout().Check(theta); err != nil {
		return nil, err
	}
	if _, err := loss.ParseKind(string(kind)); err != nil {
		return nil, err
	}

	jacs := make([]*mat.Dense, batch.Len())
	hess := make([]*mat.SymDense, batch.Len())
	for n, x := range batch.Inputs {
		pred, err := fn.Apply(theta, x)
		if err != nil {
			return nil, fmt.Errorf("curv: example %d: %w", n, err)
		}
		jac, err := fn.Jacobian(theta, x)
		if err != nil {
			return nil, fmt.Errorf("curv: example %d: %w", n, err)
		}
		jacs[n] = jac
		hess[n] = kind.Hessian(pred)
	}

	dim := fn.Layout().Size()
	out := fn.OutDim()
	factor := o.factor
	return func(v []float64) []float64 {
		if len(v) != dim {
			panic(fmt.Sprintf("curv: probe has length %d, want %d", len(v), dim))
		}
		vec := mat.NewVecDense(dim, v)
		acc := mat.NewVecDense(dim, nil)
		jv := mat.NewVecDense(out, nil)
		hjv := mat.NewVecDense(out, nil)
		tmp := mat.NewVecDense(dim, nil)
		for n := range jacs {
			jv.MulVec(jacs[n], vec)
			hjv.MulVec(hess[n], jv)
			tmp.MulVec(jacs[n].T(), hjv)
			acc.AddVec(acc, tmp)
		}
		acc.ScaleVec(factor, acc)
		return acc.RawVector().Data
	}, nil
}
