package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.Observe("lin", "full", 2*time.Millisecond, nil)
	rec.Observe("lin", "full", 3*time.Millisecond, nil)
	rec.Observe("lin", "full", time.Millisecond, errors.New("boom"))
	rec.SetMeanStd("lin", "full", 0.25)

	assert.Equal(t, 3.0, testutil.ToFloat64(rec.inputs.WithLabelValues("lin", "full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.failed.WithLabelValues("lin", "full")))
	assert.Equal(t, 0.25, testutil.ToFloat64(rec.meanStd.WithLabelValues("lin", "full")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.latency))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	rec.Observe("mc", "diagonal", time.Second, nil)
	rec.SetMeanStd("mc", "diagonal", 1)
}
