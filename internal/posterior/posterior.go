// Package posterior turns a curvature operator into a Laplace posterior
// over parameters. The curvature is estimated once per factory; prior
// arguments are applied when the posterior is requested.
package posterior

import (
	"errors"
	"fmt"
	"math"

	"laplace-forge/internal/curv"
	"laplace-forge/internal/params"
	"laplace-forge/internal/rng"
)

// Kind selects the curvature representation.
type Kind string

const (
	Full     Kind = "full"
	Diagonal Kind = "diagonal"
	LowRank  Kind = "low_rank"
)

var (
	// ErrUnknownKind is returned for unsupported curvature representations.
	ErrUnknownKind = errors.New("posterior: unknown curvature kind")
	// ErrNotPositiveDefinite is returned when the posterior precision cannot be factorized.
	ErrNotPositiveDefinite = errors.New("posterior: precision is not positive definite")
)

// Kinds lists every supported representation.
func Kinds() []Kind { return []Kind{Full, Diagonal, LowRank} }

// ParseKind maps a config string onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Full, Diagonal, LowRank:
		return Kind(s), nil
	case "diag":
		return Diagonal, nil
	case "lowrank", "low-rank":
		return LowRank, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// PriorArguments parameterize the isotropic Gaussian prior and the
// likelihood scale.
type PriorArguments struct {
	PriorPrec    float64 `yaml:"prior_prec"`
	SigmaSquared float64 `yaml:"sigma_squared"`
}

func (a PriorArguments) normalize() (PriorArguments, error) {
	if !(a.PriorPrec > 0) || math.IsInf(a.PriorPrec, 0) {
		return a, fmt.Errorf("posterior: prior_prec must be finite and > 0 (got %g)", a.PriorPrec)
	}
	if a.SigmaSquared == 0 {
		a.SigmaSquared = 1
	}
	if a.SigmaSquared < 0 {
		return a, fmt.Errorf("posterior: sigma_squared must be > 0 (got %g)", a.SigmaSquared)
	}
	return a, nil
}

// Posterior is a Gaussian over parameter perturbations with covariance Sigma.
// It is immutable and safe for concurrent use.
type Posterior struct {
	kind     Kind
	dim      int
	args     PriorArguments
	covMV    func(v []float64) []float64
	scaleMV  func(z []float64) []float64
	variance []float64
}

func (p *Posterior) Kind() Kind { return p.kind }
func (p *Posterior) Dim() int { return p.dim }
func (p *Posterior) Arguments() PriorArguments { return p.args }

// CovMV returns Sigma v.
func (p *Posterior) CovMV(v []float64) []float64 {
	p.mustFit(v)
	return p.covMV(v)
}

// ScaleMV returns S z where S S^T = Sigma.
func (p *Posterior) ScaleMV(z []float64) []float64 {
	p.mustFit(z)
	return p.scaleMV(z)
}

// Sample draws a parameter perturbation from N(0, Sigma).
func (p *Posterior) Sample(key rng.Key) []float64 {
	return p.scaleMV(key.Normal(p.dim))
}

// Variance returns the marginal variances, the diagonal of Sigma.
func (p *Posterior) Variance() []float64 {
	return append([]float64(nil), p.variance...)
}

func (p *Posterior) mustFit(v []float64) {
	if len(v) != p.dim {
		panic(fmt.Sprintf("posterior: vector has length %d, want %d", len(v), p.dim))
	}
}

// Func builds a posterior for a choice of prior arguments.
type Func func(args PriorArguments) (*Posterior, error)

type options struct {
	key     rng.Key
	maxIter int
	rank    int
}

// Option customizes CreatePosteriorFunction.
type Option func(*options)

// WithKey sets the key used by randomized estimators (the low-rank start vector).
func WithKey(k rng.Key) Option { return func(o *options) { o.key = k } }

// WithMaxIter bounds the iterations of the low-rank estimator.
func WithMaxIter(n int) Option { return func(o *options) { o.maxIter = n } }

// WithRank caps the number of eigenpairs kept by the low-rank estimator.
func WithRank(r int) Option { return func(o *options) { o.rank = r } }

// CreatePosteriorFunction estimates the curvature mv in the requested
// representation and returns a factory over prior arguments. The layout
// fixes the parameter dimension.
func CreatePosteriorFunction(kind Kind, mv curv.MV, layout params.Layout, opts ...Option) (Func, error) {
	o := options{key: rng.NewKey(0), maxIter: 20}
	for _, opt := range opts {
		opt(&o)
	}
	dim := layout.Size()
	if dim == 0 {
		return nil, errors.New("posterior: empty parameter layout")
	}
	if mv == nil {
		return nil, errors.New("posterior: nil curvature operator")
	}
	switch kind {
	case Full:
		return fullPosterior(curv.ToDense(mv, dim)), nil
	case Diagonal:
		return diagonalPosterior(curv.Diagonal(mv, dim)), nil
	case LowRank:
		terms, err := curv.LowRank(mv, dim, o.key, o.maxIter, o.rank)
		if err != nil {
			return nil, err
		}
		return lowRankPosterior(terms, dim), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
