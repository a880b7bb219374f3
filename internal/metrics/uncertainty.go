package metrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrShapeMismatch is returned when predictions and targets disagree in shape.
var ErrShapeMismatch = errors.New("metrics: shape mismatch")

// minStd keeps the likelihood finite for degenerate predictive spreads.
const minStd = 1e-12

func checkShapes(a, b [][]float64) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d predictions, %d targets", ErrShapeMismatch, len(a), len(b))
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return fmt.Errorf("%w: row %d has %d outputs, target has %d", ErrShapeMismatch, i, len(a[i]), len(b[i]))
		}
	}
	if len(a) == 0 {
		return fmt.Errorf("%w: empty batch", ErrShapeMismatch)
	}
	return nil
}

// perElement flattens f over every (row, output) pair and averages it.
func perElement(mean, std, target [][]float64, f func(mu, sigma, y float64) float64) float64 {
	vals := make([]float64, 0, len(mean)*len(mean[0]))
	for i := range mean {
		for k := range mean[i] {
			sigma := 0.0
			if std != nil {
				sigma = math.Max(std[i][k], minStd)
			}
			vals = append(vals, f(mean[i][k], sigma, target[i][k]))
		}
	}
	return stat.Mean(vals, nil)
}

// RMSE is the root mean squared error over every output.
func RMSE(pred, target [][]float64) (float64, error) {
	if err := checkShapes(pred, target); err != nil {
		return 0, err
	}
	mse := perElement(pred, nil, target, func(mu, _, y float64) float64 {
		return (mu - y) * (mu - y)
	})
	return math.Sqrt(mse), nil
}

// GaussianNLL is the average negative log-likelihood of target under
// independent normals N(mean, std^2).
func GaussianNLL(mean, std, target [][]float64) (float64, error) {
	if err := checkShapes(mean, target); err != nil {
		return 0, err
	}
	if err := checkShapes(std, target); err != nil {
		return 0, err
	}
	return perElement(mean, std, target, func(mu, sigma, y float64) float64 {
		z := (y - mu) / sigma
		return 0.5*z*z + math.Log(sigma) + 0.5*math.Log(2*math.Pi)
	}), nil
}

// ChiSquared is the average squared standardized residual. A calibrated
// model scores close to 1.
func ChiSquared(mean, std, target [][]float64) (float64, error) {
	if err := checkShapes(mean, target); err != nil {
		return 0, err
	}
	if err := checkShapes(std, target); err != nil {
		return 0, err
	}
	return perElement(mean, std, target, func(mu, sigma, y float64) float64 {
		z := (y - mu) / sigma
		return z * z
	}), nil
}

// Coverage is the fraction of targets within z predictive standard
// deviations of the mean.
func Coverage(mean, std, target [][]float64, z float64) (float64, error) {
	if err := checkShapes(mean, target); err != nil {
		return 0, err
	}
	if err := checkShapes(std, target); err != nil {
		return 0, err
	}
	return perElement(mean, std, target, func(mu, sigma, y float64) float64 {
		if math.Abs(y-mu) <= z*sigma {
			return 1
		}
		return 0
	}), nil
}

// Accuracy compares the argmax of each prediction with the argmax of its
// one-hot target.
func Accuracy(pred, target [][]float64) (float64, error) {
	if err := checkShapes(pred, target); err != nil {
		return 0, err
	}
	hits := make([]float64, len(pred))
	for i := range pred {
		if floats.MaxIdx(pred[i]) == floats.MaxIdx(target[i]) {
			hits[i] = 1
		}
	}
	return stat.Mean(hits, nil), nil
}
