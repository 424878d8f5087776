package alert

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/socialeye/internal/database"
	"github.com/socialeye/internal/logging"
	"github.com/socialeye/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "alerts.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func thresholdRule(id string, op models.Operator, value float64) *models.AlertRule {
	return &models.AlertRule{
		ID:       id,
		Name:     "rule " + id,
		Enabled:  true,
		Severity: models.SeverityHigh,
		Condition: models.Condition{
			Kind:          models.ConditionThreshold,
			Metric:        "response_time",
			Operator:      op,
			Value:         value,
			WindowMinutes: 10,
			Aggregation:   models.AggregationAvg,
		},
	}
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
