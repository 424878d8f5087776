package sampler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"

	"github.com/socialeye/internal/models"
)

// PrometheusSampler evaluates <agg>_over_time instant queries against a
// Prometheus server at the window's end.
type PrometheusSampler struct {
	api v1.API
	log logrus.FieldLogger
}

func NewPrometheusSampler(address string, log logrus.FieldLogger) (*PrometheusSampler, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	return &PrometheusSampler{api: v1.NewAPI(client), log: log}, nil
}

// buildQuery selects by __name__ so metric names with dots stay legal.
func buildQuery(metric string, window time.Duration, agg models.Aggregation) (string, error) {
	if window <= 0 {
		return "", fmt.Errorf("window must be positive, got %s", window)
	}
	selector := fmt.Sprintf("{__name__=%s}[%s]", strconv.Quote(metric), model.Duration(window))

	switch agg {
	case models.AggregationSum:
		return "sum(sum_over_time(" + selector + "))", nil
	case models.AggregationAvg:
		return "avg(avg_over_time(" + selector + "))", nil
	case models.AggregationCount:
		return "sum(count_over_time(" + selector + "))", nil
	case models.AggregationMax:
		return "max(max_over_time(" + selector + "))", nil
	case models.AggregationMin:
		return "min(min_over_time(" + selector + "))", nil
	default:
		return "", fmt.Errorf("unsupported aggregation %q", agg)
	}
}

func (p *PrometheusSampler) Sample(ctx context.Context, metric string, start, end time.Time, agg models.Aggregation) (float64, error) {
	query, err := buildQuery(metric, end.Sub(start), agg)
	if err != nil {
		return 0, err
	}

	result, warnings, err := p.api.Query(ctx, query, end)
	if err != nil {
		return 0, fmt.Errorf("failed to query prometheus: %w", err)
	}
	if len(warnings) > 0 {
		p.log.WithFields(logrus.Fields{"query": query, "warnings": warnings}).Warn("prometheus query returned warnings")
	}

	if result == nil {
		return 0, nil
	}

	switch v := result.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, nil
		}
		return float64(v[0].Value), nil
	case *model.Scalar:
		return float64(v.Value), nil
	default:
		return 0, fmt.Errorf("unexpected prometheus result type %s", result.Type())
	}
}
