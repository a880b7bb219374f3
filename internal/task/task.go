// Package task provides ready-made model, parameter and data fixtures used
// to exercise the curvature, posterior and pushforward machinery.
package task

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"laplace-forge/internal/loss"
	"laplace-forge/internal/model"
	"laplace-forge/internal/rng"
)

// ErrUnknownTask is returned by Lookup for unregistered names.
var ErrUnknownTask = errors.New("task: unknown task")

// Task bundles a model, its initial parameters and a data generator. It is
// immutable once constructed.
type Task struct {
	Name        string
	LossFnType  loss.Kind
	OutChannels int

	model    model.Fn
	params   []float64
	dataKey  rng.Key
	generate func(key rng.Key, n int) model.Batch
}

// ModelFn returns the model function.
func (t *Task) ModelFn() model.Fn { return t.model }

// Parameters returns a copy of the initial parameters.
func (t *Task) Parameters() []float64 { return append([]float64(nil), t.params...) }

// DataBatch returns batchSize labeled examples. The same size always yields
// the same batch.
func (t *Task) DataBatch(batchSize int) model.Batch {
	if batchSize <= 0 {
		return model.Batch{}
	}
	return t.generate(t.dataKey.Fold(uint64(batchSize)), batchSize)
}

// HeldOutBatch returns batchSize examples drawn independently of DataBatch.
func (t *Task) HeldOutBatch(batchSize int) model.Batch {
	if batchSize <= 0 {
		return model.Batch{}
	}
	return t.generate(t.dataKey.Fold(heldOutSalt).Fold(uint64(batchSize)), batchSize)
}

const heldOutSalt = 1 << 32

// Regression is a 1-in/1-out tanh MLP on noisy sinusoid data with MSE loss.
func Regression(key rng.Key) (*Task, error) {
	m, err := model.NewMLP(1, 16, 1)
	if err != nil {
		return nil, err
	}
	keys := key.Split(2)
	return &Task{
		Name:        "regression",
		LossFnType:  loss.MSE,
		OutChannels: 1,
		model:       m,
		params:      m.Init(keys[0]),
		dataKey:     keys[1],
		generate:    sinusoid,
	}, nil
}

func sinusoid(key rng.Key, n int) model.Batch {
	keys := key.Split(2)
	xs := keys[0].Uniform(n, -2, 2)
	noise := keys[1].Normal(n)
	b := model.Batch{Inputs: make([][]float64, n), Targets: make([][]float64, n)}
	for i, x := range xs {
		b.Inputs[i] = []float64{x}
		b.Targets[i] = []float64{math.Sin(2*x) + 0.1*noise[i]}
	}
	return b
}

const numBlobs = 3

// Classification is a 2-in/3-class MLP on Gaussian blobs with cross-entropy loss.
func Classification(key rng.Key) (*Task, error) {
	m, err := model.NewMLP(2, 8, numBlobs)
	if err != nil {
		return nil, err
	}
	keys := key.Split(2)
	return &Task{
		Name:        "classification",
		LossFnType:  loss.CrossEntropy,
		OutChannels: numBlobs,
		model:       m,
		params:      m.Init(keys[0]),
		dataKey:     keys[1],
		generate:    blobs,
	}, nil
}

func blobs(key rng.Key, n int) model.Batch {
	keys := key.Split(2)
	labels := keys[0].Uniform(n, 0, numBlobs)
	noise := keys[1].Normal(2 * n)
	b := model.Batch{Inputs: make([][]float64, n), Targets: make([][]float64, n)}
	for i := range b.Inputs {
		c := int(labels[i])
		angle := 2 * math.Pi * float64(c) / numBlobs
		b.Inputs[i] = []float64{
			2*math.Cos(angle) + 0.5*noise[2*i],
			2*math.Sin(angle) + 0.5*noise[2*i+1],
		}
		target := make([]float64, numBlobs)
		target[c] = 1
		b.Targets[i] = target
	}
	return b
}

var registry = map[string]func(rng.Key) (*Task, error){
	"regression":     Regression,
	"classification": Classification,
}

// Names lists registered tasks in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup builds the named task.
func Lookup(name string, key rng.Key) (*Task, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	return build(key)
}
