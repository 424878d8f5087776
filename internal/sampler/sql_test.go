package sampler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/socialeye/internal/database"
	"github.com/socialeye/internal/logging"
	"github.com/socialeye/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "samples.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestSQLSampler_Aggregations(t *testing.T) {
	ctx := context.Background()
	s := NewSQLSampler(newTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, v := range []float64{1000, 2000, 3000} {
		require.NoError(t, s.Record(ctx, "response_time", v, base.Add(time.Duration(i)*time.Minute)))
	}
	// outside the window
	require.NoError(t, s.Record(ctx, "response_time", 99999, base.Add(-time.Hour)))
	// other metric
	require.NoError(t, s.Record(ctx, "queue_depth", 7, base))

	start, end := base.Add(-time.Minute), base.Add(5*time.Minute)
	cases := map[models.Aggregation]float64{
		models.AggregationSum:   6000,
		models.AggregationAvg:   2000,
		models.AggregationCount: 3,
		models.AggregationMax:   3000,
		models.AggregationMin:   1000,
	}
	for agg, want := range cases {
		got, err := s.Sample(ctx, "response_time", start, end, agg)
		require.NoError(t, err, agg)
		assert.InDelta(t, want, got, 1e-9, agg)
	}
}

func TestSQLSampler_EmptyWindowIsZero(t *testing.T) {
	ctx := context.Background()
	s := NewSQLSampler(newTestDB(t))
	now := time.Now()

	for _, agg := range []models.Aggregation{models.AggregationSum, models.AggregationAvg, models.AggregationCount} {
		got, err := s.Sample(ctx, "missing", now.Add(-time.Minute), now, agg)
		require.NoError(t, err)
		assert.Zero(t, got)
	}
}

func TestSQLSampler_UnknownAggregation(t *testing.T) {
	s := NewSQLSampler(newTestDB(t))
	_, err := s.Sample(context.Background(), "m", time.Now(), time.Now(), "p99")
	assert.Error(t, err)
}

func TestSQLSampler_Prune(t *testing.T) {
	ctx := context.Background()
	s := NewSQLSampler(newTestDB(t))
	now := time.Now()

	require.NoError(t, s.RecordBatch(ctx, []models.MetricSample{
		{Metric: "m", Value: 1, Timestamp: now.Add(-48 * time.Hour)},
		{Metric: "m", Value: 2, Timestamp: now.Add(-time.Minute)},
	}))

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := s.Sample(ctx, "m", now.Add(-72*time.Hour), now, models.AggregationCount)
	require.NoError(t, err)
	assert.Equal(t, float64(1), count)
}
