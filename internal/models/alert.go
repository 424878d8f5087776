package models

import (
	"time"
)

// Metadata keys written on every alert.
const (
	MetaRuleName   = "rule_name"
	MetaCondition  = "condition"
	MetaValue      = "value"
	MetaResolvedBy = "resolved_by"
)

type Alert struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	RuleID      string         `json:"rule_id" gorm:"index;not null"`
	Severity    Severity       `json:"severity" gorm:"not null"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp" gorm:"index"`
	Resolved    bool           `json:"resolved" gorm:"default:false"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	Metadata    map[string]any `json:"metadata" gorm:"serializer:json"`
}

// Clone copies the alert so callers can hand it to other goroutines.
func (a *Alert) Clone() *Alert {
	cp := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		cp.ResolvedAt = &t
	}
	if a.Metadata != nil {
		cp.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// RuleName reads the owning rule's name from the metadata snapshot.
func (a *Alert) RuleName() string {
	if name, ok := a.Metadata[MetaRuleName].(string); ok {
		return name
	}
	return a.RuleID
}
