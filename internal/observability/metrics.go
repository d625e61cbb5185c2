package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recomputeCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "goalprogress",
		Subsystem: "calculator",
		Name:      "recomputes_total",
		Help:      "Number of goal progress recomputations persisted.",
	})
	recomputeFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "goalprogress",
		Subsystem: "calculator",
		Name:      "recompute_failures_total",
		Help:      "Number of recomputations that failed and were swallowed by the triggering mutation.",
	})
	recomputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "goalprogress",
		Subsystem: "calculator",
		Name:      "recompute_duration_seconds",
		Help:      "Time spent loading inputs, blending, and persisting a progress value.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	lastRecomputeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "goalprogress",
		Subsystem: "calculator",
		Name:      "last_recompute_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful recomputation.",
	})
)

func init() {
	prometheus.MustRegister(recomputeCounter, recomputeFailureCounter, recomputeDuration, lastRecomputeGauge)
}

// RecordRecompute updates the success counters after a persisted recompute.
func RecordRecompute(ts time.Time, elapsed time.Duration) {
	recomputeCounter.Inc()
	recomputeDuration.Observe(elapsed.Seconds())
	if !ts.IsZero() {
		lastRecomputeGauge.Set(float64(ts.Unix()))
	}
}

// RecordRecomputeFailure counts a recompute that produced no value.
func RecordRecomputeFailure() {
	recomputeFailureCounter.Inc()
}
