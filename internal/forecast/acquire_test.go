package forecast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-flood-risk/internal/models"
	"github.com/mr1hm/go-flood-risk/internal/observability"
)

type mockResolver struct {
	calls  int
	coords models.Coordinates
	found  bool
	err    error
}

func (m *mockResolver) Resolve(context.Context, string) (models.Coordinates, bool, error) {
	m.calls++
	return m.coords, m.found, m.err
}

type mockPrimary struct {
	calls int
	obs   []models.WeatherObservation
	err   error
	block bool
}

func (m *mockPrimary) Fetch(ctx context.Context, _, _ float64) ([]models.WeatherObservation, error) {
	m.calls++
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.obs, m.err
}

type mockSecondary struct {
	calls     int
	lastCount int
	obs       []models.WeatherObservation
}

func (m *mockSecondary) FetchRecent(_ context.Context, _ string, count int) []models.WeatherObservation {
	m.calls++
	m.lastCount = count
	if len(m.obs) > count {
		return m.obs[:count]
	}
	return m.obs
}

func series(n int, provenance models.Provenance, mm float64) []models.WeatherObservation {
	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.WeatherObservation, n)
	for i := range out {
		v := mm
		out[i] = models.WeatherObservation{
			Timestamp:  base.Add(time.Duration(i*3) * time.Hour),
			RainfallMM: &v,
			Provenance: provenance,
		}
	}
	return out
}

func newOrchestrator(r CoordinateResolver, p PrimarySource, s SecondarySource) *Orchestrator {
	return NewOrchestrator(r, p, s, 50*time.Millisecond, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAcquire_PrimarySucceeds(t *testing.T) {
	resolver := &mockResolver{found: true, coords: models.Coordinates{Latitude: 19.3, Longitude: -99.2}}
	primary := &mockPrimary{obs: series(40, models.ProvenanceLive, 1)}
	secondary := &mockSecondary{obs: series(16, models.ProvenanceArchived, 9)}

	res, err := newOrchestrator(resolver, primary, secondary).Acquire(context.Background(), "Tlalpan", models.Horizon48h, models.Horizon24h)
	require.NoError(t, err)

	assert.Equal(t, models.ProvenanceLive, res.Source)
	assert.Equal(t, 0, secondary.calls, "archive must not be touched when live succeeds")
	require.Len(t, res.Windows, 2)
	assert.Equal(t, models.Horizon24h, res.Windows[0].Horizon)
	assert.Len(t, res.Windows[0].Observations, 8)
	assert.Equal(t, models.Horizon48h, res.Windows[1].Horizon)
	assert.Len(t, res.Windows[1].Observations, 16)

	for _, w := range res.Windows {
		assert.Equal(t, models.ProvenanceLive, w.Source)
		for _, o := range w.Observations {
			assert.Equal(t, "Tlalpan", o.Locality)
			assert.Equal(t, models.ProvenanceLive, o.Provenance)
		}
	}
}

func TestAcquire_24hWindowIsPrefixOf48h(t *testing.T) {
	resolver := &mockResolver{found: true}
	primary := &mockPrimary{obs: series(16, models.ProvenanceLive, 2)}

	res, err := newOrchestrator(resolver, primary, &mockSecondary{}).Acquire(context.Background(), "Iztapalapa", models.Horizon24h, models.Horizon48h)
	require.NoError(t, err)

	w24, ok := res.Window(models.Horizon24h)
	require.True(t, ok)
	w48, ok := res.Window(models.Horizon48h)
	require.True(t, ok)

	assert.Equal(t, w48.Observations[:8], w24.Observations)
	assert.InDelta(t, 16.0, w24.TotalRainfall(), 1e-9)
	assert.InDelta(t, 32.0, w48.TotalRainfall(), 1e-9)
}

func TestAcquire_NoCoordinatesSkipsPrimary(t *testing.T) {
	resolver := &mockResolver{found: false}
	primary := &mockPrimary{obs: series(16, models.ProvenanceLive, 1)}
	secondary := &mockSecondary{obs: series(16, models.ProvenanceArchived, 1)}

	res, err := newOrchestrator(resolver, primary, secondary).Acquire(context.Background(), "Milpa Alta", models.Horizon24h)
	require.NoError(t, err)

	assert.Equal(t, 0, primary.calls, "primary must not be queried without coordinates")
	assert.Equal(t, 1, secondary.calls)
	assert.Equal(t, 8, secondary.lastCount)
	assert.Equal(t, models.ProvenanceArchived, res.Source)
}

func TestAcquire_ResolverErrorFallsBack(t *testing.T) {
	resolver := &mockResolver{err: errors.New("dns failure")}
	primary := &mockPrimary{}
	secondary := &mockSecondary{obs: series(3, models.ProvenanceArchived, 1)}

	res, err := newOrchestrator(resolver, primary, secondary).Acquire(context.Background(), "Milpa Alta", models.Horizon24h)
	require.NoError(t, err)
	assert.Equal(t, 0, primary.calls)
	assert.Equal(t, models.ProvenanceArchived, res.Source)
}

func TestAcquire_PrimaryFailureIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name    string
		primary *mockPrimary
	}{
		{"error", &mockPrimary{err: errors.New("502 bad gateway")}},
		{"empty payload", &mockPrimary{obs: nil}},
		{"timeout", &mockPrimary{block: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &mockResolver{found: true}
			secondary := &mockSecondary{obs: series(16, models.ProvenanceArchived, 3)}

			res, err := newOrchestrator(resolver, tt.primary, secondary).Acquire(context.Background(), "Coyoacán", models.Horizon24h, models.Horizon48h)
			require.NoError(t, err)

			assert.Equal(t, 1, tt.primary.calls)
			assert.Equal(t, 16, secondary.lastCount, "archive is asked for the largest horizon")
			assert.Equal(t, models.ProvenanceArchived, res.Source)
			for _, w := range res.Windows {
				assert.Equal(t, models.ProvenanceArchived, w.Source)
				for _, o := range w.Observations {
					assert.Equal(t, models.ProvenanceArchived, o.Provenance)
				}
			}
		})
	}
}

func TestAcquire_ProvenanceStampedFromSourceUsed(t *testing.T) {
	// A misbehaving archive that tags its rows live must still surface as archived.
	resolver := &mockResolver{found: false}
	secondary := &mockSecondary{obs: series(4, models.ProvenanceLive, 1)}

	res, err := newOrchestrator(resolver, &mockPrimary{}, secondary).Acquire(context.Background(), "Tláhuac", models.Horizon24h)
	require.NoError(t, err)
	for _, o := range res.Windows[0].Observations {
		assert.Equal(t, models.ProvenanceArchived, o.Provenance)
	}
}

func TestAcquire_PartialWindowIsScoredOnAvailable(t *testing.T) {
	resolver := &mockResolver{found: true}
	primary := &mockPrimary{obs: series(5, models.ProvenanceLive, 1)}

	res, err := newOrchestrator(resolver, primary, &mockSecondary{}).Acquire(context.Background(), "Tlalpan", models.Horizon24h, models.Horizon48h)
	require.NoError(t, err)

	w24, _ := res.Window(models.Horizon24h)
	w48, _ := res.Window(models.Horizon48h)
	assert.Len(t, w24.Observations, 5)
	assert.Len(t, w48.Observations, 5)
}

func TestAcquire_BothSourcesEmpty(t *testing.T) {
	resolver := &mockResolver{found: true}
	primary := &mockPrimary{err: errors.New("down")}
	secondary := &mockSecondary{}

	_, err := newOrchestrator(resolver, primary, secondary).Acquire(context.Background(), "Benito Juárez", models.Horizon24h)
	assert.ErrorIs(t, err, ErrAcquisitionFailed)
}

func TestAcquire_UnsupportedHorizonRejectedBeforeIO(t *testing.T) {
	resolver := &mockResolver{found: true}
	primary := &mockPrimary{}
	secondary := &mockSecondary{}

	_, err := newOrchestrator(resolver, primary, secondary).Acquire(context.Background(), "Tlalpan", models.Horizon(72))
	assert.ErrorIs(t, err, models.ErrUnsupportedHorizon)
	assert.Equal(t, 0, resolver.calls)
	assert.Equal(t, 0, primary.calls)
	assert.Equal(t, 0, secondary.calls)

	_, err = newOrchestrator(resolver, primary, secondary).Acquire(context.Background(), "Tlalpan")
	assert.ErrorIs(t, err, models.ErrUnsupportedHorizon)
}

type failingStore struct{}

func (failingStore) RecentObservations(context.Context, string, int) ([]models.WeatherObservation, error) {
	return nil, errors.New("database is locked")
}

type fixedStore struct{ obs []models.WeatherObservation }

func (s fixedStore) RecentObservations(context.Context, string, int) ([]models.WeatherObservation, error) {
	return s.obs, nil
}

func TestArchiveSource_NeverFails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	assert.Empty(t, NewArchiveSource(failingStore{}, logger).FetchRecent(context.Background(), "Tlalpan", 8))

	got := NewArchiveSource(fixedStore{obs: series(20, models.ProvenanceArchived, 1)}, logger).FetchRecent(context.Background(), "Tlalpan", 8)
	assert.Len(t, got, 8)
}
