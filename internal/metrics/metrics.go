// Package metrics exposes the Consumer's Prometheus instrumentation:
// chunk throughput, sequencer drops, inference latency, and active
// session count.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Consumer holds the Prometheus collectors registered for the consumer
// process. A nil *Consumer is safe to call methods on; they become no-ops,
// so callers do not need to special-case metrics being disabled.
type Consumer struct {
	chunksProcessed  *prometheus.CounterVec
	sequencerDrops   prometheus.Counter
	inferenceLatency prometheus.Histogram
	activeSessions   prometheus.Gauge
}

// NewConsumer registers the consumer's collectors against reg. Pass
// prometheus.DefaultRegisterer for normal operation, or a fresh
// prometheus.NewRegistry() in tests to avoid global collisions.
func NewConsumer(reg prometheus.Registerer) *Consumer {
	factory := promauto.With(reg)
	return &Consumer{
		chunksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whisperboard",
			Subsystem: "consumer",
			Name:      "chunks_processed_total",
			Help:      "Audio chunk metadata files handled by the consumer monitor, by outcome.",
		}, []string{"outcome"}),
		sequencerDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "whisperboard",
			Subsystem: "consumer",
			Name:      "sequencer_drops_total",
			Help:      "Chunks evicted from the sequencer due to buffer overflow.",
		}),
		inferenceLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "whisperboard",
			Subsystem: "consumer",
			Name:      "inference_latency_seconds",
			Help:      "Time spent inside a single inference call.",
			Buckets:   prometheus.DefBuckets,
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "whisperboard",
			Subsystem: "consumer",
			Name:      "active_sessions",
			Help:      "1 if a session is currently being processed, else 0.",
		}),
	}
}

// ChunkProcessed records one chunk handled by the consumer monitor, tagged
// with its outcome ("ok", "stale_session", "duplicate" or "invalid").
func (c *Consumer) ChunkProcessed(outcome string) {
	if c == nil {
		return
	}
	c.chunksProcessed.WithLabelValues(outcome).Inc()
}

// SequencerDrop records one sequencer buffer-overflow eviction.
func (c *Consumer) SequencerDrop() {
	if c == nil {
		return
	}
	c.sequencerDrops.Inc()
}

// ObserveInferenceLatency records the duration of one inference call, in
// seconds.
func (c *Consumer) ObserveInferenceLatency(seconds float64) {
	if c == nil {
		return
	}
	c.inferenceLatency.Observe(seconds)
}

// SetActiveSessions reports whether a session is currently processing.
func (c *Consumer) SetActiveSessions(active bool) {
	if c == nil {
		return
	}
	if active {
		c.activeSessions.Set(1)
	} else {
		c.activeSessions.Set(0)
	}
}
