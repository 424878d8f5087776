package alert

import (
	"errors"
	"fmt"
)

var (
	ErrRuleNotFound = errors.New("rule not found")
	ErrInvalidRule  = errors.New("invalid rule")
	ErrUnknownAlert = errors.New("unknown alert")
	ErrRuleDisabled = errors.New("rule is disabled")
)

// SamplingError reports that the metric source failed or returned a value
// the evaluator cannot use. The rule is skipped for the tick.
type SamplingError struct {
	RuleID string
	Metric string
	Err    error
}

func (e *SamplingError) Error() string {
	return fmt.Sprintf("sampling %s for rule %s: %v", e.Metric, e.RuleID, e.Err)
}

func (e *SamplingError) Unwrap() error { return e.Err }

// PersistenceError reports a failed alert store write. Dispatch still
// proceeds after one.
type PersistenceError struct {
	AlertID string
	Op      string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s alert %s: %v", e.Op, e.AlertID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
