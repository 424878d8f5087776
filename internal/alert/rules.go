package alert

import (
	"errors"
	"fmt"

	"github.com/socialeye/internal/models"
)

// ValidateRule checks the structural fields a rule needs before it is
// registered. All problems are reported together, wrapped in ErrInvalidRule.
func ValidateRule(rule *models.AlertRule) error {
	var errs []error
	if rule.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if rule.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}

	cond := rule.Condition
	if !cond.Kind.Valid() {
		errs = append(errs, fmt.Errorf("unknown condition kind %q", cond.Kind))
	}
	if cond.Metric == "" {
		errs = append(errs, errors.New("condition metric is required"))
	}
	if !cond.Operator.Valid() {
		errs = append(errs, fmt.Errorf("unknown operator %q", cond.Operator))
	}
	if cond.WindowMinutes <= 0 {
		errs = append(errs, fmt.Errorf("window_minutes must be positive, got %d", cond.WindowMinutes))
	}
	if cond.Aggregation != "" && !cond.Aggregation.Valid() {
		errs = append(errs, fmt.Errorf("unknown aggregation %q", cond.Aggregation))
	}

	if !rule.Severity.Valid() {
		errs = append(errs, fmt.Errorf("unknown severity %q", rule.Severity))
	}
	if rule.ThrottleMinutes < 0 {
		errs = append(errs, fmt.Errorf("throttle_minutes must not be negative, got %d", rule.ThrottleMinutes))
	}
	for i, ch := range rule.Channels {
		if !ch.Kind.Valid() {
			errs = append(errs, fmt.Errorf("channel %d: unknown kind %q", i, ch.Kind))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w %q: %w", ErrInvalidRule, rule.ID, errors.Join(errs...))
}

// DefaultRules seeds the registry when no rule source yields anything.
func DefaultRules() []*models.AlertRule {
	return []*models.AlertRule{
		{
			ID:          "api-response-time",
			Name:        "API response time",
			Description: "Average API response time above 2s",
			Enabled:     true,
			Condition: models.Condition{
				Kind:          models.ConditionThreshold,
				Metric:        "response_time",
				Operator:      models.OperatorGT,
				Value:         2000,
				WindowMinutes: 10,
				Aggregation:   models.AggregationAvg,
			},
			Severity:        models.SeverityHigh,
			Channels:        []models.AlertChannel{{Kind: models.ChannelWebhook, Enabled: true}},
			ThrottleMinutes: 30,
		},
		{
			ID:          "api-error-rate",
			Name:        "API error rate",
			Description: "More than 5% of API requests failing",
			Enabled:     true,
			Condition: models.Condition{
				Kind:          models.ConditionErrorRate,
				Metric:        "api.requests",
				Operator:      models.OperatorGT,
				Value:         5,
				WindowMinutes: 5,
			},
			Severity: models.SeverityCritical,
			Channels: []models.AlertChannel{
				{Kind: models.ChannelWebhook, Enabled: true},
				{Kind: models.ChannelSlack, Enabled: true},
			},
			ThrottleMinutes: 15,
		},
		{
			ID:          "post-publish-anomaly",
			Name:        "Post publishing anomaly",
			Description: "Published post volume deviates more than 50% from its baseline",
			Enabled:     true,
			Condition: models.Condition{
				Kind:          models.ConditionAnomaly,
				Metric:        "posts.published",
				Operator:      models.OperatorGT,
				Value:         50,
				WindowMinutes: 60,
				Aggregation:   models.AggregationSum,
			},
			Severity:        models.SeverityMedium,
			Channels:        []models.AlertChannel{{Kind: models.ChannelEmail, Enabled: true}},
			ThrottleMinutes: 120,
		},
	}
}
