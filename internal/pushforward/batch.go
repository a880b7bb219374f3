package pushforward

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Apply evaluates fn on every input, at most workers at a time, and returns
// results in input order. workers <= 0 means no limit.
func Apply(ctx context.Context, fn Func, inputs [][]float64, workers int) ([]Results, error) {
	out := make([]Results, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, x := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := fn(x)
			if err != nil {
				return fmt.Errorf("pushforward: input %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Stacked holds batched results with the batch as the leading axis.
type Stacked struct {
	Pred     [][]float64
	PredMean [][]float64
	PredVar  [][]float64
	PredStd  [][]float64
	// Samples is indexed [input][sample][output].
	Samples [][][]float64
}

// Stack gathers per-input results field by field.
func Stack(results []Results) Stacked {
	s := Stacked{
		Pred:     make([][]float64, len(results)),
		PredMean: make([][]float64, len(results)),
		PredVar:  make([][]float64, len(results)),
		PredStd:  make([][]float64, len(results)),
		Samples:  make([][][]float64, len(results)),
	}
	for i, r := range results {
		s.Pred[i] = r.Pred
		s.PredMean[i] = r.PredMean
		s.PredVar[i] = r.PredVar
		s.PredStd[i] = r.PredStd
		s.Samples[i] = r.Samples
	}
	return s
}

// SampleShape returns (n_samples, out_channels) of the stacked samples, or
// (0, 0) for an empty batch.
func (s Stacked) SampleShape() (int, int) {
	if len(s.Samples) == 0 || len(s.Samples[0]) == 0 {
		return 0, 0
	}
	return len(s.Samples[0]), len(s.Samples[0][0])
}
