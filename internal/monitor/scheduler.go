package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/socialeye/internal/models"
	"github.com/socialeye/internal/telemetry"
)

// Checker runs one pass over the rule registry.
type Checker interface {
	CheckRules(ctx context.Context) []*models.Alert
}

// SamplePruner drops metric samples older than a cutoff.
type SamplePruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type SchedulerConfig struct {
	Interval time.Duration
	// TickTimeout bounds one pass; it defaults to Interval.
	TickTimeout time.Duration
	// Pruner and SampleRetention are optional.
	Pruner          SamplePruner
	SampleRetention time.Duration
}

// Scheduler drives the checker at a fixed interval. A tick that comes due
// while the previous one is still running is skipped.
type Scheduler struct {
	checker Checker
	cfg     SchedulerConfig
	log     logrus.FieldLogger
	metrics *telemetry.Metrics
	now     func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup
}

func NewScheduler(checker Checker, cfg SchedulerConfig, log logrus.FieldLogger, metrics *telemetry.Metrics) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = cfg.Interval
	}
	if metrics == nil {
		metrics = telemetry.New(nil)
	}
	return &Scheduler{
		checker: checker,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run ticks immediately and then every interval until ctx is done. It waits
// for the tick in progress before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	s.log.WithField("interval", s.cfg.Interval).Info("monitoring loop started")
	s.spawn(ctx)

	for {
		select {
		case <-ticker.C:
			s.spawn(ctx)
		case <-ctx.Done():
			s.log.Info("monitoring loop stopped")
			return nil
		}
	}
}

func (s *Scheduler) spawn(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.TryTick(ctx)
	}()
}

// TryTick runs one pass unless another is in progress, and reports whether
// it ran.
func (s *Scheduler) TryTick(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.TicksSkipped.Inc()
		s.log.Warn("previous tick still running, skipping")
		return false
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TickTimeout)
	defer cancel()

	start := time.Now()
	triggered := s.checker.CheckRules(ctx)
	elapsed := time.Since(start)
	s.metrics.TickDuration.Observe(elapsed.Seconds())

	s.log.WithFields(logrus.Fields{
		"triggered": len(triggered),
		"duration":  elapsed,
	}).Debug("tick finished")

	s.pruneSamples(ctx)
	return true
}

func (s *Scheduler) pruneSamples(ctx context.Context) {
	if s.cfg.Pruner == nil || s.cfg.SampleRetention <= 0 {
		return
	}
	n, err := s.cfg.Pruner.Prune(ctx, s.now().Add(-s.cfg.SampleRetention))
	if err != nil {
		s.log.WithError(err).Warn("failed to prune metric samples")
		return
	}
	if n > 0 {
		s.log.WithField("count", n).Debug("pruned metric samples")
	}
}
