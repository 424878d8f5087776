package alert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/socialeye/internal/models"
	"github.com/socialeye/internal/notify"
	"github.com/socialeye/internal/sampler"
	"github.com/socialeye/internal/telemetry"
)

const (
	DefaultParallelism       = 4
	DefaultResolvedRetention = time.Hour
)

// Dispatcher fans a triggered alert out to its channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *models.Alert, channels []models.AlertChannel) notify.Result
}

type ServiceConfig struct {
	Sampler    sampler.Sampler
	Storage    Storage
	Dispatcher Dispatcher
	Logger     logrus.FieldLogger
	Metrics    *telemetry.Metrics
	// Now defaults to time.Now.
	Now func() time.Time

	Parallelism            int
	AnomalyBaselineWindows int
	ResolvedRetention      time.Duration
}

// Service owns the rule registry, the throttle gate and the active-alert
// index. One instance is built per process and shared by the scheduler and
// the admin API.
type Service struct {
	mutex sync.RWMutex
	rules map[string]*models.AlertRule

	locksMu   sync.Mutex
	ruleLocks map[string]*sync.Mutex

	evaluator  *Evaluator
	gate       *ThrottleGate
	index      *ActiveIndex
	store      *Store
	dispatcher Dispatcher
	log        logrus.FieldLogger
	metrics    *telemetry.Metrics
	now        func() time.Time

	parallelism int
	retention   time.Duration

	inflight       sync.WaitGroup
	dispatchCtx    context.Context
	cancelDispatch context.CancelFunc
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Sampler == nil {
		return nil, errors.New("alert service requires a sampler")
	}
	if cfg.Storage == nil {
		return nil, errors.New("alert service requires alert storage")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("alert service requires a dispatcher")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.New(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.ResolvedRetention <= 0 {
		cfg.ResolvedRetention = DefaultResolvedRetention
	}

	index := NewActiveIndex()
	dispatchCtx, cancel := context.WithCancel(context.Background())

	return &Service{
		rules:          make(map[string]*models.AlertRule),
		ruleLocks:      make(map[string]*sync.Mutex),
		evaluator:      NewEvaluator(cfg.Sampler, cfg.AnomalyBaselineWindows),
		gate:           NewThrottleGate(),
		index:          index,
		store:          NewStore(cfg.Storage, index, cfg.Logger, cfg.Now),
		dispatcher:     cfg.Dispatcher,
		log:            cfg.Logger,
		metrics:        cfg.Metrics,
		now:            cfg.Now,
		parallelism:    cfg.Parallelism,
		retention:      cfg.ResolvedRetention,
		dispatchCtx:    dispatchCtx,
		cancelDispatch: cancel,
	}, nil
}

// AddRule inserts or overwrites the rule with the same id.
func (s *Service) AddRule(rule *models.AlertRule) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.rules[rule.ID] = rule.Clone()
}

// RemoveRule is a no-op for unknown ids.
func (s *Service) RemoveRule(id string) {
	s.mutex.Lock()
	delete(s.rules, id)
	s.mutex.Unlock()
	s.gate.Forget(id)
}

func (s *Service) Rule(id string) (*models.AlertRule, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return rule.Clone(), nil
}

// Rules returns copies of every registered rule ordered by id.
func (s *Service) Rules() []*models.AlertRule {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]*models.AlertRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReplaceRules swaps the whole registry. Throttle state of rules that are
// gone is dropped; surviving rules keep theirs.
func (s *Service) ReplaceRules(rules []*models.AlertRule) {
	next := make(map[string]*models.AlertRule, len(rules))
	for _, r := range rules {
		next[r.ID] = r.Clone()
	}

	s.mutex.Lock()
	prev := s.rules
	s.rules = next
	s.mutex.Unlock()

	for id := range prev {
		if _, ok := next[id]; !ok {
			s.gate.Forget(id)
		}
	}
}

func (s *Service) enabledRules() []*models.AlertRule {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]*models.AlertRule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CheckRules runs one tick: every enabled rule is evaluated independently and
// the alerts that fired are returned ordered by rule id. A failing rule is
// logged and skipped.
func (s *Service) CheckRules(ctx context.Context) []*models.Alert {
	now := s.now()
	if n := s.index.Prune(now.Add(-s.retention)); n > 0 {
		s.log.WithField("count", n).Debug("pruned resolved alerts from active index")
	}

	var (
		mu        sync.Mutex
		triggered []*models.Alert
	)

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for _, rule := range s.enabledRules() {
		rule := rule
		g.Go(func() error {
			alert, err := s.evaluate(ctx, rule, now)
			if err != nil {
				s.log.WithError(err).WithField("rule_id", rule.ID).Warn("rule evaluation failed")
				return nil
			}
			if alert != nil {
				mu.Lock()
				triggered = append(triggered, alert)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(triggered, func(i, j int) bool { return triggered[i].RuleID < triggered[j].RuleID })
	return triggered
}

// CheckRule evaluates a single rule on demand through the full pipeline.
// It returns nil when the condition does not hold or the rule is throttled.
func (s *Service) CheckRule(ctx context.Context, id string) (*models.Alert, error) {
	rule, err := s.Rule(id)
	if err != nil {
		return nil, err
	}
	if !rule.Enabled {
		return nil, ErrRuleDisabled
	}
	return s.evaluate(ctx, rule, s.now())
}

func (s *Service) ruleLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.ruleLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.ruleLocks[id] = l
	}
	return l
}

// evaluate holds the rule's lock from the throttle check until the trigger is
// recorded, so a rule cannot pass the gate twice concurrently.
func (s *Service) evaluate(ctx context.Context, rule *models.AlertRule, now time.Time) (*models.Alert, error) {
	lock := s.ruleLock(rule.ID)
	lock.Lock()
	defer lock.Unlock()

	log := s.log.WithField("rule_id", rule.ID)

	matched, value, err := s.evaluator.Evaluate(ctx, rule, now)
	if err != nil {
		s.metrics.SamplingErrors.Inc()
		s.metrics.RuleEvaluations.WithLabelValues("error").Inc()
		return nil, err
	}
	if !matched {
		s.metrics.RuleEvaluations.WithLabelValues("quiet").Inc()
		return nil, nil
	}
	if s.gate.IsThrottled(rule.ID, rule.ThrottleMinutes, now) {
		s.metrics.RuleEvaluations.WithLabelValues("throttled").Inc()
		s.metrics.AlertsThrottled.Inc()
		log.WithField("value", value).Debug("condition matched but rule is throttled")
		return nil, nil
	}

	alert := newAlert(rule, value, now)
	if err := s.store.Record(ctx, alert); err != nil {
		s.metrics.PersistenceErrors.Inc()
		log.WithError(err).WithField("alert_id", alert.ID).Error("failed to persist alert, dispatching anyway")
	}
	s.gate.MarkTriggered(rule.ID, now)

	s.metrics.RuleEvaluations.WithLabelValues("triggered").Inc()
	s.metrics.AlertsTriggered.WithLabelValues(string(alert.Severity)).Inc()
	log.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"severity": alert.Severity,
		"value":    value,
	}).Info("alert triggered")

	s.dispatch(alert.Clone(), rule.Channels)
	return alert, nil
}

// dispatch runs the fan-out detached from the tick. Shutdown waits for it.
func (s *Service) dispatch(alert *models.Alert, channels []models.AlertChannel) {
	if len(channels) == 0 {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		res := s.dispatcher.Dispatch(s.dispatchCtx, alert, channels)
		s.log.WithFields(logrus.Fields{
			"alert_id":  alert.ID,
			"rule_id":   alert.RuleID,
			"delivered": res.Delivered(),
			"failed":    len(res.Failed()),
			"skipped":   res.Skipped(),
		}).Info("alert dispatch finished")
	}()
}

// Shutdown waits for in-flight dispatches. When ctx expires first the
// remaining deliveries are cancelled and ctx's error is returned.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.cancelDispatch()
		return ctx.Err()
	}
}

func (s *Service) ActiveAlerts() []*models.Alert {
	return s.store.ActiveAlerts()
}

func (s *Service) History(ctx context.Context, limit int) ([]models.Alert, error) {
	return s.store.History(ctx, limit)
}

func (s *Service) AlertsBetween(ctx context.Context, start, end time.Time) ([]models.Alert, error) {
	return s.store.Between(ctx, start, end)
}

func (s *Service) Resolve(ctx context.Context, alertID, resolvedBy string) error {
	return s.store.Resolve(ctx, alertID, resolvedBy)
}

func (s *Service) LastTriggered(ruleID string) (time.Time, bool) {
	return s.gate.LastTriggered(ruleID)
}

func newAlert(rule *models.AlertRule, value float64, now time.Time) *models.Alert {
	cond := rule.Condition
	return &models.Alert{
		ID:       uuid.NewString(),
		RuleID:   rule.ID,
		Severity: rule.Severity,
		Title:    fmt.Sprintf("%s: %s %s %s", rule.Name, cond.Metric, cond.Operator.Symbol(), formatValue(cond.Value)),
		Description: fmt.Sprintf("%s %s was %.2f over the last %d minutes",
			cond.Kind, cond.Metric, value, cond.WindowMinutes),
		Timestamp: now.UTC(),
		Metadata: map[string]any{
			models.MetaRuleName:  rule.Name,
			models.MetaCondition: conditionSnapshot(cond),
			models.MetaValue:     value,
		},
	}
}

func conditionSnapshot(c models.Condition) map[string]any {
	return map[string]any{
		"kind":           string(c.Kind),
		"metric":         c.Metric,
		"operator":       string(c.Operator),
		"value":          c.Value,
		"window_minutes": c.WindowMinutes,
		"aggregation":    string(c.EffectiveAggregation()),
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
