package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "laplace_forge"

// Recorder exports pushforward evaluation metrics to prometheus.
type Recorder struct {
	latency *prometheus.HistogramVec
	inputs  *prometheus.CounterVec
	failed  *prometheus.CounterVec
	meanStd *prometheus.GaugeVec
}

// NewRecorder registers the collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	labels := []string{"method", "curvature"}
	return &Recorder{
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pushforward_seconds",
			Help:      "Time to compute the predictive distribution of one input.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}, labels),
		inputs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushforward_inputs_total",
			Help:      "Inputs pushed through the posterior.",
		}, labels),
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushforward_failures_total",
			Help:      "Inputs whose pushforward returned an error.",
		}, labels),
		meanStd: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "predictive_std_mean",
			Help:      "Mean predictive standard deviation of the last evaluated batch.",
		}, labels),
	}
}

// Observe records one pushforward call.
func (r *Recorder) Observe(method, curvature string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.inputs.WithLabelValues(method, curvature).Inc()
	if err != nil {
		r.failed.WithLabelValues(method, curvature).Inc()
		return
	}
	r.latency.WithLabelValues(method, curvature).Observe(elapsed.Seconds())
}

// SetMeanStd publishes the batch-average predictive standard deviation.
func (r *Recorder) SetMeanStd(method, curvature string, v float64) {
	if r == nil {
		return
	}
	r.meanStd.WithLabelValues(method, curvature).Set(v)
}
