package models

import (
	"time"
)

type Operator string

const (
	OperatorGT  Operator = "gt"
	OperatorGTE Operator = "gte"
	OperatorLT  Operator = "lt"
	OperatorLTE Operator = "lte"
	OperatorEQ  Operator = "eq"
)

// Symbol returns the comparison sign used in alert titles.
func (o Operator) Symbol() string {
	switch o {
	case OperatorGT:
		return ">"
	case OperatorGTE:
		return ">="
	case OperatorLT:
		return "<"
	case OperatorLTE:
		return "<="
	case OperatorEQ:
		return "=="
	default:
		return string(o)
	}
}

func (o Operator) Valid() bool {
	switch o {
	case OperatorGT, OperatorGTE, OperatorLT, OperatorLTE, OperatorEQ:
		return true
	default:
		return false
	}
}

type ConditionKind string

const (
	ConditionThreshold ConditionKind = "threshold"
	ConditionErrorRate ConditionKind = "error_rate"
	ConditionAnomaly   ConditionKind = "anomaly"
)

func (k ConditionKind) Valid() bool {
	switch k {
	case ConditionThreshold, ConditionErrorRate, ConditionAnomaly:
		return true
	default:
		return false
	}
}

type Aggregation string

const (
	AggregationSum   Aggregation = "sum"
	AggregationAvg   Aggregation = "avg"
	AggregationCount Aggregation = "count"
	AggregationMax   Aggregation = "max"
	AggregationMin   Aggregation = "min"
)

func (a Aggregation) Valid() bool {
	switch a {
	case AggregationSum, AggregationAvg, AggregationCount, AggregationMax, AggregationMin:
		return true
	default:
		return false
	}
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

type ChannelKind string

const (
	ChannelEmail   ChannelKind = "email"
	ChannelWebhook ChannelKind = "webhook"
	ChannelSlack   ChannelKind = "slack"
	ChannelSMS     ChannelKind = "sms"
)

func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelEmail, ChannelWebhook, ChannelSlack, ChannelSMS:
		return true
	default:
		return false
	}
}

type Condition struct {
	Kind          ConditionKind `json:"kind" yaml:"kind"`
	Metric        string        `json:"metric" yaml:"metric"`
	Operator      Operator      `json:"operator" yaml:"operator"`
	Value         float64       `json:"value" yaml:"value"`
	WindowMinutes int           `json:"window_minutes" yaml:"window_minutes"`
	Aggregation   Aggregation   `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
}

// Window returns the sampling window as a duration.
func (c Condition) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// EffectiveAggregation resolves an empty aggregation to the kind's default.
func (c Condition) EffectiveAggregation() Aggregation {
	if c.Aggregation != "" {
		return c.Aggregation
	}
	if c.Kind == ConditionErrorRate {
		return AggregationSum
	}
	return AggregationAvg
}

// AlertChannel is a delivery destination. Config is channel specific and
// never interpreted by the evaluator.
type AlertChannel struct {
	Kind    ChannelKind    `json:"kind" yaml:"kind"`
	Config  map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Enabled bool           `json:"enabled" yaml:"enabled"`
}

type AlertRule struct {
	ID              string         `json:"id" yaml:"id" gorm:"primaryKey"`
	Name            string         `json:"name" yaml:"name" gorm:"not null"`
	Description     string         `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled         bool           `json:"enabled" yaml:"enabled"`
	Condition       Condition      `json:"condition" yaml:"condition" gorm:"embedded;embeddedPrefix:condition_"`
	Severity        Severity       `json:"severity" yaml:"severity" gorm:"not null"`
	Channels        []AlertChannel `json:"channels" yaml:"channels" gorm:"serializer:json"`
	ThrottleMinutes int            `json:"throttle_minutes" yaml:"throttle_minutes"`
	CreatedAt       time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time      `json:"updated_at" yaml:"-"`
}

// Clone returns a deep enough copy for the registry: channel slices and their
// config maps are not shared with the caller.
func (r *AlertRule) Clone() *AlertRule {
	cp := *r
	if r.Channels != nil {
		cp.Channels = make([]AlertChannel, len(r.Channels))
		for i, ch := range r.Channels {
			cp.Channels[i] = ch
			if ch.Config != nil {
				cfg := make(map[string]any, len(ch.Config))
				for k, v := range ch.Config {
					cfg[k] = v
				}
				cp.Channels[i].Config = cfg
			}
		}
	}
	return &cp
}

// RuleTombstone records a rule deleted through the admin API so file and
// default rules with the same id stay deleted across reloads.
type RuleTombstone struct {
	RuleID    string    `json:"rule_id" gorm:"primaryKey"`
	DeletedAt time.Time `json:"deleted_at"`
}
