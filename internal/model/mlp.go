package model

import (
	"errors"
	"fmt"
	"math"

	"laplace-forge/internal/params"
	"laplace-forge/internal/rng"

	"gonum.org/v1/gonum/mat"
)

// MLP is a fully connected network with tanh hidden units and a linear head.
type MLP struct {
	sizes  []int
	layout params.Layout
	kernel []int
	bias   []int
}

// NewMLP builds an MLP with the given layer widths, input first.
func NewMLP(sizes ...int) (*MLP, error) {
	if len(sizes) < 2 {
		return nil, errors.New("model: mlp needs at least input and output sizes")
	}
	names := make([]string, 0, 2*(len(sizes)-1))
	shapes := make([][]int, 0, 2*(len(sizes)-1))
	for l := 0; l+1 < len(sizes); l++ {
		if sizes[l] <= 0 || sizes[l+1] <= 0 {
			return nil, fmt.Errorf("model: layer %d has non-positive width", l)
		}
		names = append(names, fmt.Sprintf("dense_%d/kernel", l), fmt.Sprintf("dense_%d/bias", l))
		shapes = append(shapes, []int{sizes[l+1], sizes[l]}, []int{sizes[l+1]})
	}
	layout, err := params.NewLayout(names, shapes)
	if err != nil {
		return nil, err
	}
	m := &MLP{sizes: append([]int(nil), sizes...), layout: layout}
	for l := 0; l+1 < len(sizes); l++ {
		k, _ := layout.Block(names[2*l])
		b, _ := layout.Block(names[2*l+1])
		m.kernel = append(m.kernel, k.Offset)
		m.bias = append(m.bias, b.Offset)
	}
	return m, nil
}

func (m *MLP) InDim() int { return m.sizes[0] }
func (m *MLP) OutDim() int { return m.sizes[len(m.sizes)-1] }
func (m *MLP) Layout() params.Layout { return m.layout }
func (m *MLP) numLayers() int { return len(m.sizes) - 1 }
func (m *MLP) width(l int) (int, int) { return m.sizes[l], m.sizes[l+1] }

// Init draws kernels from U(-1/sqrt(fan_in), 1/sqrt(fan_in)); biases start at zero.
func (m *MLP) Init(key rng.Key) []float64 {
	theta := m.layout.Zeros()
	keys := key.Split(m.numLayers())
	for l := 0; l < m.numLayers(); l++ {
		in, out := m.width(l)
		scale := 1 / math.Sqrt(float64(in))
		w := keys[l].Uniform(in*out, -scale, scale)
		copy(theta[m.kernel[l]:], w)
	}
	return theta
}

// Apply evaluates the network on x.
func (m *MLP) Apply(theta, x []float64) ([]float64, error) {
	acts, err := m.forward(theta, x)
	if err != nil {
		return nil, err
	}
	return acts[len(acts)-1], nil
}

// Jacobian runs one reverse pass per output unit.
func (m *MLP) Jacobian(theta, x []float64) (*mat.Dense, error) {
	acts, err := m.forward(theta, x)
	if err != nil {
		return nil, err
	}
	out := m.OutDim()
	jac := mat.NewDense(out, m.layout.Size(), nil)
	for k := 0; k < out; k++ {
		row := jac.RawRowView(k)
		delta := make([]float64, out)
		delta[k] = 1
		for l := m.numLayers() - 1; l >= 0; l-- {
			in, width := m.width(l)
			a := acts[l]
			wOff, bOff := m.kernel[l], m.bias[l]
			for i := 0; i < width; i++ {
				d := delta[i]
				if d == 0 {
					continue
				}
				row[bOff+i] = d
				base := wOff + i*in
				for j := 0; j < in; j++ {
					row[base+j] = d * a[j]
				}
			}
			if l == 0 {
				break
			}
			prev := make([]float64, in)
			for j := 0; j < in; j++ {
				sum := 0.0
				for i := 0; i < width; i++ {
					sum += theta[wOff+i*in+j] * delta[i]
				}
				prev[j] = sum * (1 - a[j]*a[j])
			}
			delta = prev
		}
	}
	return jac, nil
}

// forward returns the input followed by every layer's output.
func (m *MLP) forward(theta, x []float64) ([][]float64, error) {
	if err := m.layout.Check(theta); err != nil {
		return nil, err
	}
	if len(x) != m.InDim() {
		return nil, fmt.Errorf("model: input has %d features, want %d", len(x), m.InDim())
	}
	acts := make([][]float64, 0, len(m.sizes))
	acts = append(acts, x)
	cur := x
	for l := 0; l < m.numLayers(); l++ {
		in, width := m.width(l)
		next := make([]float64, width)
		wOff, bOff := m.kernel[l], m.bias[l]
		for i := 0; i < width; i++ {
			sum := theta[bOff+i]
			base := wOff + i*in
			for j := 0; j < in; j++ {
				sum += theta[base+j] * cur[j]
			}
			if l+1 < m.numLayers() {
				sum = math.Tanh(sum)
			}
			next[i] = sum
		}
		acts = append(acts, next)
		cur = next
	}
	return acts, nil
}
