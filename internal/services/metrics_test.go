package services

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func counterWithLabel(f *dto.MetricFamily, label, value string) float64 {
	for _, m := range f.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == label && l.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMetrics_ObserveBuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveBuild(time.Second, nil)
	m.ObserveBuild(time.Second, nil)
	m.ObserveBuild(time.Second, errors.New("boom"))

	builds := gather(t, reg, "marketrec_model_builds_total")
	assert.Equal(t, 2.0, counterWithLabel(builds, "status", "success"))
	assert.Equal(t, 1.0, counterWithLabel(builds, "status", "error"))

	duration := gather(t, reg, "marketrec_model_build_duration_seconds")
	assert.Equal(t, uint64(3), duration.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestMetrics_ObserveSearch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveSearch("fuzzy", time.Now())
	m.ObserveSearch("indexed", time.Now())
	m.ObserveSearch("fuzzy", time.Now())

	searches := gather(t, reg, "marketrec_search_requests_total")
	assert.Equal(t, 2.0, counterWithLabel(searches, "strategy", "fuzzy"))
	assert.Equal(t, 1.0, counterWithLabel(searches, "strategy", "indexed"))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBuild(time.Second, nil)
		m.ObserveRecommendation("similar", time.Now(), nil)
		m.ObserveCache(true)
		m.ObserveSearch("fuzzy", time.Now())
		m.SetModelVersion(2)
		m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
	})
}
