package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialeye/internal/logging"
	"github.com/socialeye/internal/models"
	"github.com/socialeye/internal/telemetry"
)

type checkerFunc func(ctx context.Context) []*models.Alert

func (f checkerFunc) CheckRules(ctx context.Context) []*models.Alert { return f(ctx) }

type recordingPruner struct {
	before atomic.Value
}

func (p *recordingPruner) Prune(_ context.Context, before time.Time) (int64, error) {
	p.before.Store(before)
	return 3, nil
}

func TestScheduler_SkipsOverlappingTick(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	checker := checkerFunc(func(context.Context) []*models.Alert {
		close(started)
		<-release
		return nil
	})
	m := telemetry.New(nil)
	s := NewScheduler(checker, SchedulerConfig{Interval: time.Hour}, logging.Discard(), m)

	done := make(chan bool)
	go func() { done <- s.TryTick(context.Background()) }()
	<-started

	assert.False(t, s.TryTick(context.Background()))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TicksSkipped))

	close(release)
	assert.True(t, <-done)
}

func TestScheduler_TickTimeoutBoundsPass(t *testing.T) {
	var deadline atomic.Bool
	checker := checkerFunc(func(ctx context.Context) []*models.Alert {
		_, ok := ctx.Deadline()
		deadline.Store(ok)
		<-ctx.Done()
		return nil
	})
	s := NewScheduler(checker, SchedulerConfig{Interval: time.Hour, TickTimeout: 20 * time.Millisecond}, logging.Discard(), nil)

	start := time.Now()
	require.True(t, s.TryTick(context.Background()))
	assert.True(t, deadline.Load())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestScheduler_RunTicksImmediatelyAndStops(t *testing.T) {
	var ticks atomic.Int32
	checker := checkerFunc(func(context.Context) []*models.Alert {
		ticks.Add(1)
		return nil
	})
	s := NewScheduler(checker, SchedulerConfig{Interval: 10 * time.Millisecond}, logging.Discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-errc)
}

func TestScheduler_PrunesSamples(t *testing.T) {
	pruner := &recordingPruner{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScheduler(checkerFunc(func(context.Context) []*models.Alert { return nil }), SchedulerConfig{
		Interval:        time.Minute,
		Pruner:          pruner,
		SampleRetention: 24 * time.Hour,
	}, logging.Discard(), nil)
	s.now = func() time.Time { return now }

	require.True(t, s.TryTick(context.Background()))
	assert.Equal(t, now.Add(-24*time.Hour), pruner.before.Load())
}
