package sampler

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialeye/internal/models"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := NewStatic(map[string]float64{"a": 1})

	v, err := s.Sample(ctx, "a", time.Time{}, time.Time{}, models.AggregationAvg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = s.Sample(ctx, "missing", time.Time{}, time.Time{}, models.AggregationAvg)
	require.NoError(t, err)
	assert.Zero(t, v)

	boom := errors.New("backend down")
	s.Fail("a", boom)
	_, err = s.Sample(ctx, "a", time.Time{}, time.Time{}, models.AggregationAvg)
	assert.ErrorIs(t, err, boom)

	s.Set("a", 5)
	v, err = s.Sample(ctx, "a", time.Time{}, time.Time{}, models.AggregationAvg)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	s.Strict = true
	_, err = s.Sample(ctx, "missing", time.Time{}, time.Time{}, models.AggregationAvg)
	assert.Error(t, err)
}

func TestFinite(t *testing.T) {
	assert.NoError(t, Finite("m", 1.5))
	assert.Error(t, Finite("m", math.NaN()))
	assert.Error(t, Finite("m", math.Inf(1)))
	assert.Error(t, Finite("m", math.Inf(-1)))
}

func TestRandom_StaysInPlausibleRange(t *testing.T) {
	r := NewRandom(42, 0, 100, map[string]float64{"cpu": 50})
	for i := 0; i < 200; i++ {
		v, err := r.Sample(context.Background(), "cpu", time.Time{}, time.Time{}, models.AggregationAvg)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}
