package metrics

import (
	"math"
	"testing"
	"time"
)

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(20, 20*time.Millisecond, 1.2)
	w.Record(20, 10*time.Millisecond, 0.8)
	snap := w.Snapshot()
	if math.Abs(snap.ExamplesPerSec-1333.3333) > 1 {
		t.Fatalf("unexpected throughput %.2f", snap.ExamplesPerSec)
	}
	if math.Abs(snap.AvgStepMS-15) > 1e-9 {
		t.Fatalf("unexpected step time %.4f", snap.AvgStepMS)
	}
	if math.Abs(snap.AvgLoss-1.0) > 1e-12 {
		t.Fatalf("expected average loss 1.0, got %.4f", snap.AvgLoss)
	}
	if w.examples != 0 || w.steps != 0 {
		t.Fatalf("window was not reset")
	}
	if snap.LastLoss != 0.8 {
		t.Fatalf("expected last loss 0.8, got %.2f", snap.LastLoss)
	}
}

func TestEmptyWindow(t *testing.T) {
	var w Window
	snap := w.Snapshot()
	if snap != (Snapshot{}) {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}
}
