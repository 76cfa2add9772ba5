package predict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-flood-risk/internal/apperrors"
	"github.com/mr1hm/go-flood-risk/internal/explain"
	"github.com/mr1hm/go-flood-risk/internal/models"
	"github.com/mr1hm/go-flood-risk/internal/observability"
)

func TestPredictBatch_IsolatesFailuresAndKeepsOrder(t *testing.T) {
	// The first locality is slowest so completion order differs from input order.
	svc := newService(defaultHazards(), &mockAcquirer{delay: 20 * time.Millisecond}, nil, nil)

	items := svc.PredictBatch(context.Background(), []string{"Iztapalapa", "Atlantis", "Tlalpan"}, models.Horizon24h)

	require.Len(t, items, 3)
	assert.Equal(t, "Iztapalapa", items[0].Locality)
	require.NotNil(t, items[0].Result)
	assert.Nil(t, items[0].Error)

	assert.Equal(t, "Atlantis", items[1].Locality)
	assert.Nil(t, items[1].Result)
	require.NotNil(t, items[1].Error)
	assert.True(t, items[1].Error.Error)
	assert.Equal(t, apperrors.CodeNoHazardData, items[1].Error.Code)

	assert.Equal(t, "Tlalpan", items[2].Locality)
	require.NotNil(t, items[2].Result)
	assert.Equal(t, "Tlalpan", items[2].Result.Locality)

	assert.Equal(t, 2, Succeeded(items))
}

func TestPredictBatch_BoundsConcurrency(t *testing.T) {
	acquirer := &mockAcquirer{delay: 15 * time.Millisecond}
	hazards := defaultHazards()
	svc := newService(hazards, acquirer, nil, nil)

	localities := []string{"Iztapalapa", "Tlalpan", "Iztapalapa", "Tlalpan", "Iztapalapa", "Tlalpan"}
	items := svc.PredictBatch(context.Background(), localities, models.Horizon24h)

	assert.Equal(t, 6, Succeeded(items))
	assert.LessOrEqual(t, acquirer.maxSeen.Load(), int64(2))
}

func TestPredictBatch_PausesBetweenDispatches(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	svc := NewService(defaultHazards(), &mockAcquirer{}, explain.NewExplainer(nil, time.Second, metrics, discardLogger()), Options{
		HazardTimeout:    time.Second,
		BatchConcurrency: 4,
		BatchPause:       25 * time.Millisecond,
	}, nil, metrics, discardLogger())

	start := time.Now()
	items := svc.PredictBatch(context.Background(), []string{"Tlalpan", "Iztapalapa", "Tlalpan"}, models.Horizon24h)

	assert.Equal(t, 3, Succeeded(items))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "two pauses for three dispatches")
}

func TestPredictBatch_CancelledDuringPause(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	svc := NewService(defaultHazards(), &mockAcquirer{}, explain.NewExplainer(nil, time.Second, metrics, discardLogger()), Options{
		HazardTimeout:    time.Second,
		BatchConcurrency: 1,
		BatchPause:       time.Hour,
	}, nil, metrics, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	items := svc.PredictBatch(ctx, []string{"Tlalpan", "Iztapalapa", "Tlalpan"}, models.Horizon24h)

	require.Len(t, items, 3)
	assert.NotNil(t, items[0].Result)
	for _, it := range items[1:] {
		require.NotNil(t, it.Error)
		assert.Equal(t, apperrors.CodeInternal, it.Error.Code)
	}
}

func TestPredictBatch_Empty(t *testing.T) {
	svc := newService(defaultHazards(), &mockAcquirer{}, nil, nil)
	assert.Empty(t, svc.PredictBatch(context.Background(), nil, models.Horizon24h))
}
