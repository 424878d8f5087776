package sampler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/socialeye/internal/models"
)

// SQLSampler aggregates the metric_samples table. It is both the default
// production sampler and the sink for the container collector.
type SQLSampler struct {
	db *gorm.DB
}

func NewSQLSampler(db *gorm.DB) *SQLSampler {
	return &SQLSampler{db: db}
}

func aggregateExpr(agg models.Aggregation) (string, error) {
	switch agg {
	case models.AggregationSum:
		return "SUM(value)", nil
	case models.AggregationAvg:
		return "AVG(value)", nil
	case models.AggregationCount:
		return "COUNT(value)", nil
	case models.AggregationMax:
		return "MAX(value)", nil
	case models.AggregationMin:
		return "MIN(value)", nil
	default:
		return "", fmt.Errorf("unsupported aggregation %q", agg)
	}
}

// Sample returns 0 for an empty window.
func (s *SQLSampler) Sample(ctx context.Context, metric string, start, end time.Time, agg models.Aggregation) (float64, error) {
	expr, err := aggregateExpr(agg)
	if err != nil {
		return 0, err
	}

	var result sql.NullFloat64
	err = s.db.WithContext(ctx).
		Model(&models.MetricSample{}).
		Select(expr).
		Where("metric = ? AND timestamp >= ? AND timestamp <= ?", metric, start.UTC(), end.UTC()).
		Scan(&result).Error
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate %s: %w", metric, err)
	}
	if !result.Valid {
		return 0, nil
	}
	return result.Float64, nil
}

// Record appends one sample.
func (s *SQLSampler) Record(ctx context.Context, metric string, value float64, at time.Time) error {
	return s.RecordBatch(ctx, []models.MetricSample{{Metric: metric, Value: value, Timestamp: at}})
}

// RecordBatch appends samples in a single transaction.
func (s *SQLSampler) RecordBatch(ctx context.Context, samples []models.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}
	// Timestamps are compared as text by SQLite; keep them in one zone.
	for i := range samples {
		samples[i].Timestamp = samples[i].Timestamp.UTC()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&samples).Error; err != nil {
			return fmt.Errorf("failed to insert samples: %w", err)
		}
		return nil
	})
}

// Prune deletes samples older than before and reports how many were removed.
func (s *SQLSampler) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", before.UTC()).Delete(&models.MetricSample{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune samples: %w", res.Error)
	}
	return res.RowsAffected, nil
}
