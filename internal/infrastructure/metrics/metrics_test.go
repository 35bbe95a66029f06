package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	// Replace global default registry to allow test inspection.
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry

	m := New()

	if m.QueueDepth == nil || m.EntriesAcked == nil || m.RecomputeRuns == nil || m.PullsTotal == nil {
		t.Fatalf("expected key metrics to be initialized: %+v", m)
	}

	// Touch a couple of metrics so they show up in the gather.
	m.QueueDepth.WithLabelValues("PENDING").Set(3)
	m.EntriesNacked.Inc()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Fatalf("expected registered metrics, got none")
	}
}
