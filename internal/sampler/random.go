package sampler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/socialeye/internal/models"
)

// Random produces synthetic values for dry runs. Values cluster around a
// per-metric centre so threshold rules fire some of the time.
type Random struct {
	mu      sync.Mutex
	rng     *rand.Rand
	centres map[string]float64
	min     float64
	max     float64
}

func NewRandom(seed int64, min, max float64, centres map[string]float64) *Random {
	c := make(map[string]float64, len(centres))
	for k, v := range centres {
		c[k] = v
	}
	return &Random{
		rng:     rand.New(rand.NewSource(seed)),
		centres: c,
		min:     min,
		max:     max,
	}
}

func (r *Random) Sample(_ context.Context, metric string, _, _ time.Time, _ models.Aggregation) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	centre, ok := r.centres[metric]
	if !ok {
		centre = (r.min + r.max) / 2
	}

	// 70% chance to land within ±20% of the centre
	if r.rng.Float64() < 0.7 {
		delta := centre * 0.2
		return centre + (r.rng.Float64()*2-1)*delta, nil
	}
	return r.min + r.rng.Float64()*(r.max-r.min), nil
}
