package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/soniam4/carbonfootprint-tracker/internal/domain"
)

type stubSource struct {
	mu      sync.Mutex
	version string
	factors []domain.EmissionFactor
	err     error
	calls   int
}

func (s *stubSource) CatalogVersion(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.version, s.err
}

func (s *stubSource) ListEmissionFactors(ctx context.Context) ([]domain.EmissionFactor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.factors, s.err
}

func (s *stubSource) set(version string, factors []domain.EmissionFactor, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version, s.factors, s.err = version, factors, err
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestRefresherSwapsTable(t *testing.T) {
	source := &stubSource{}
	r := NewRefresher(source, time.Minute)

	_, ok := r.LookupFactor("Поездка на авто", 1, "км")
	require.False(t, ok)

	source.set("v1", []domain.EmissionFactor{
		{ID: 1, ActivityType: "Поездка на авто", CategoryID: 1, Unit: "км", CO2PerUnit: 0.12},
	}, nil)
	require.NoError(t, r.Refresh(context.Background()))
	factor, ok := r.LookupFactor("Поездка на авто", 1, "км")
	require.True(t, ok)
	require.Equal(t, 0.12, factor.CO2PerUnit)
	require.Equal(t, "v1", r.Table().Version())
	require.Equal(t, 1.0, catalogGauge(t, "v1"))

	source.set("v2", nil, errors.New("db down"))
	require.Error(t, r.Refresh(context.Background()))
	require.Equal(t, "v1", r.Table().Version())
	_, ok = r.LookupFactor("Поездка на авто", 1, "км")
	require.True(t, ok)
}

func TestRefresherStartStopsOnCancel(t *testing.T) {
	source := &stubSource{version: "v1"}
	r := NewRefresher(source, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Start(ctx)
	require.Eventually(t, func() bool { return source.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	r.Wait()
}

func catalogGauge(t *testing.T, version string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "carbon_tracker_catalog_loaded_info" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue(m, "version") == version {
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("catalog gauge for %s not found", version)
	return 0
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
