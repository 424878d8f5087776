package models

import (
	"time"
)

// MetricSample is one point of the built-in time series table.
type MetricSample struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Metric    string    `json:"metric" gorm:"index:idx_metric_ts,priority:1;not null"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp" gorm:"index:idx_metric_ts,priority:2"`
}
