package loss

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Kind names a supported loss function.
type Kind string

const (
	MSE          Kind = "mse"
	CrossEntropy Kind = "cross_entropy"
)

// ErrUnknownKind is returned for unsupported loss names.
var ErrUnknownKind = errors.New("loss: unknown kind")

// ParseKind maps a config string onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case MSE, CrossEntropy:
		return Kind(s), nil
	case "cross-entropy", "ce":
		return CrossEntropy, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Value computes the loss of a single prediction. Cross-entropy expects
// logits and a one-hot (or soft) target.
func (k Kind) Value(pred, target []float64) float64 {
	switch k {
	case MSE:
		sum := 0.0
		for i := range pred {
			d := pred[i] - target[i]
			sum += d * d
		}
		return sum
	case CrossEntropy:
		probs := Softmax(pred)
		sum := 0.0
		for i, y := range target {
			if y == 0 {
				continue
			}
			sum -= y * math.Log(math.Max(probs[i], 1e-12))
		}
		return sum
	}
	return math.NaN()
}

// Grad returns the derivative of the loss with respect to pred.
func (k Kind) Grad(pred, target []float64) []float64 {
	out := make([]float64, len(pred))
	switch k {
	case MSE:
		for i := range pred {
			out[i] = 2 * (pred[i] - target[i])
		}
	case CrossEntropy:
		probs := Softmax(pred)
		mass := 0.0
		for _, y := range target {
			mass += y
		}
		for i := range pred {
			out[i] = mass*probs[i] - target[i]
		}
	}
	return out
}

// Hessian returns the second derivative of the loss with respect to pred.
// It does not depend on the target for either kind.
func (k Kind) Hessian(pred []float64) *mat.SymDense {
	n := len(pred)
	h := mat.NewSymDense(n, nil)
	switch k {
	case MSE:
		for i := 0; i < n; i++ {
			h.SetSym(i, i, 2)
		}
	case CrossEntropy:
		probs := Softmax(pred)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := -probs[i] * probs[j]
				if i == j {
					v += probs[i]
				}
				h.SetSym(i, j, v)
			}
		}
	}
	return h
}

// Softmax is the numerically stable softmax of logits.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		e := math.Exp(v - maxLogit)
		out[i] = e
		sum += e
	}
	inv := 1.0 / sum
	for i := range out {
		out[i] *= inv
	}
	return out
}
