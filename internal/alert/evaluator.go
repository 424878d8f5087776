package alert

import (
	"context"
	"math"
	"time"

	"github.com/socialeye/internal/models"
	"github.com/socialeye/internal/sampler"
)

// Metric name suffixes read by error-rate conditions.
const (
	ErrorsSuffix = ".errors"
	TotalSuffix  = ".total"
)

// Evaluator turns a rule condition into a scalar using a Sampler and compares
// it against the condition's value.
type Evaluator struct {
	sampler         sampler.Sampler
	baselineWindows int
}

func NewEvaluator(s sampler.Sampler, baselineWindows int) *Evaluator {
	if baselineWindows <= 0 {
		baselineWindows = 6
	}
	return &Evaluator{sampler: s, baselineWindows: baselineWindows}
}

// Evaluate computes the condition's scalar for the window ending at now and
// reports whether the condition holds.
func (e *Evaluator) Evaluate(ctx context.Context, rule *models.AlertRule, now time.Time) (bool, float64, error) {
	value, err := e.compute(ctx, rule, now)
	if err != nil {
		return false, 0, err
	}
	return compare(rule.Condition.Operator, value, rule.Condition.Value), value, nil
}

func (e *Evaluator) compute(ctx context.Context, rule *models.AlertRule, now time.Time) (float64, error) {
	cond := rule.Condition
	start := now.Add(-cond.Window())
	agg := cond.EffectiveAggregation()

	switch cond.Kind {
	case models.ConditionThreshold:
		return e.sample(ctx, rule, cond.Metric, start, now, agg)

	case models.ConditionErrorRate:
		errorCount, err := e.sample(ctx, rule, cond.Metric+ErrorsSuffix, start, now, agg)
		if err != nil {
			return 0, err
		}
		totalCount, err := e.sample(ctx, rule, cond.Metric+TotalSuffix, start, now, agg)
		if err != nil {
			return 0, err
		}
		return errorRate(errorCount, totalCount), nil

	case models.ConditionAnomaly:
		current, err := e.sample(ctx, rule, cond.Metric, start, now, agg)
		if err != nil {
			return 0, err
		}
		historical, err := e.baseline(ctx, rule, start, agg)
		if err != nil {
			return 0, err
		}
		return deviationPercent(current, historical), nil

	default:
		return 0, &SamplingError{RuleID: rule.ID, Metric: cond.Metric, Err: ErrInvalidRule}
	}
}

func (e *Evaluator) sample(ctx context.Context, rule *models.AlertRule, metric string, start, end time.Time, agg models.Aggregation) (float64, error) {
	v, err := e.sampler.Sample(ctx, metric, start, end, agg)
	if err == nil {
		err = sampler.Finite(metric, v)
	}
	if err != nil {
		return 0, &SamplingError{RuleID: rule.ID, Metric: metric, Err: err}
	}
	return v, nil
}

// baseline is the mean of the rule's aggregate over the baselineWindows
// windows that end at end, so it is in the same unit as a single window.
func (e *Evaluator) baseline(ctx context.Context, rule *models.AlertRule, end time.Time, agg models.Aggregation) (float64, error) {
	w := rule.Condition.Window()
	var total float64
	for i := 0; i < e.baselineWindows; i++ {
		windowEnd := end.Add(-time.Duration(i) * w)
		v, err := e.sample(ctx, rule, rule.Condition.Metric, windowEnd.Add(-w), windowEnd, agg)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total / float64(e.baselineWindows), nil
}

// errorRate is errors/total as a percentage; zero total means zero rate.
func errorRate(errorCount, totalCount float64) float64 {
	if totalCount == 0 {
		return 0
	}
	return finiteOrZero(errorCount / totalCount * 100)
}

// deviationPercent is |current-historical|/historical as a percentage; a zero
// baseline means zero deviation.
func deviationPercent(current, historical float64) float64 {
	if historical == 0 {
		return 0
	}
	return finiteOrZero(math.Abs(current-historical) / historical * 100)
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func compare(operator models.Operator, current, threshold float64) bool {
	switch operator {
	case models.OperatorGT:
		return current > threshold
	case models.OperatorLT:
		return current < threshold
	case models.OperatorGTE:
		return current >= threshold
	case models.OperatorLTE:
		return current <= threshold
	case models.OperatorEQ:
		return current == threshold
	default:
		return false
	}
}
