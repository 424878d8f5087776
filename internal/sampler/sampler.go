// Package sampler supplies scalar metric values over time windows to the
// rule evaluator.
package sampler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/socialeye/internal/models"
)

// Sampler returns the aggregated value of metric over [start, end].
type Sampler interface {
	Sample(ctx context.Context, metric string, start, end time.Time, agg models.Aggregation) (float64, error)
}

// Func adapts a plain function to the Sampler interface.
type Func func(ctx context.Context, metric string, start, end time.Time, agg models.Aggregation) (float64, error)

func (f Func) Sample(ctx context.Context, metric string, start, end time.Time, agg models.Aggregation) (float64, error) {
	return f(ctx, metric, start, end, agg)
}

// Static serves fixed per-metric values regardless of window and
// aggregation. Missing metrics sample as zero unless Strict is set.
type Static struct {
	mu     sync.RWMutex
	values map[string]float64
	errs   map[string]error
	Strict bool
}

func NewStatic(values map[string]float64) *Static {
	s := &Static{
		values: make(map[string]float64, len(values)),
		errs:   make(map[string]error),
	}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func (s *Static) Set(metric string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[metric] = value
	delete(s.errs, metric)
}

// Fail makes every sample of metric return err.
func (s *Static) Fail(metric string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[metric] = err
}

func (s *Static) Sample(_ context.Context, metric string, _, _ time.Time, _ models.Aggregation) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.errs[metric]; ok {
		return 0, err
	}
	v, ok := s.values[metric]
	if !ok && s.Strict {
		return 0, fmt.Errorf("unknown metric %q", metric)
	}
	return v, nil
}

// Finite rejects NaN and infinite results.
func Finite(metric string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("metric %q sampled non-finite value %v", metric, v)
	}
	return nil
}
