package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNilConsumerMethodsAreNoops(t *testing.T) {
	t.Parallel()
	var c *Consumer
	c.ChunkProcessed("ok")
	c.SequencerDrop()
	c.ObserveInferenceLatency(0.01)
	c.SetActiveSessions(true)
}

func TestConsumerRecordsSequencerDrops(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := NewConsumer(reg)

	c.SequencerDrop()
	c.SequencerDrop()

	require.Equal(t, 2.0, counterValue(t, c.sequencerDrops))
}

func TestConsumerTracksActiveSessionGauge(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := NewConsumer(reg)

	c.SetActiveSessions(true)
	var m dto.Metric
	require.NoError(t, c.activeSessions.Write(&m))
	require.Equal(t, 1.0, m.GetGauge().GetValue())

	c.SetActiveSessions(false)
	require.NoError(t, c.activeSessions.Write(&m))
	require.Equal(t, 0.0, m.GetGauge().GetValue())
}
