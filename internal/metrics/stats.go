package metrics

import "time"

// Window accumulates throughput and loss across multiple steps.
type Window struct {
	examples int
	elapsed  time.Duration
	steps    int
	lossSum  float64
	lastLoss float64
}

// Record adds a new measurement to the window.
func (w *Window) Record(examples int, elapsed time.Duration, loss float64) {
	w.examples += examples
	w.elapsed += elapsed
	w.steps++
	w.lossSum += loss
	w.lastLoss = loss
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{LastLoss: w.lastLoss}
	if w.elapsed > 0 {
		snap.ExamplesPerSec = float64(w.examples) / w.elapsed.Seconds()
	}
	if w.steps > 0 {
		snap.AvgStepMS = (w.elapsed.Seconds() * 1000) / float64(w.steps)
		snap.AvgLoss = w.lossSum / float64(w.steps)
	}

	w.examples = 0
	w.elapsed = 0
	w.steps = 0
	w.lossSum = 0
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	ExamplesPerSec float64
	AvgStepMS      float64
	AvgLoss        float64
	LastLoss       float64
}
