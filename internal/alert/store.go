package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/socialeye/internal/models"
)

const defaultHistoryLimit = 50

// AlertUpdate carries the fields a resolution writes.
type AlertUpdate struct {
	Resolved   bool
	ResolvedAt *time.Time
	Metadata   map[string]any
}

// Storage is the durable alert record.
type Storage interface {
	// Insert must treat a duplicate id as a no-op.
	Insert(ctx context.Context, alert *models.Alert) error
	Update(ctx context.Context, id string, fields AlertUpdate) error
	Get(ctx context.Context, id string) (*models.Alert, error)
	// Query returns the newest alerts first.
	Query(ctx context.Context, limit int) ([]models.Alert, error)
	Range(ctx context.Context, start, end time.Time) ([]models.Alert, error)
}

type GormStorage struct {
	db *gorm.DB
}

func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

func (s *GormStorage) Insert(ctx context.Context, alert *models.Alert) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(alert).Error
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (s *GormStorage) Update(ctx context.Context, id string, fields AlertUpdate) error {
	res := s.db.WithContext(ctx).
		Model(&models.Alert{ID: id}).
		Select("resolved", "resolved_at", "metadata").
		Updates(&models.Alert{
			Resolved:   fields.Resolved,
			ResolvedAt: fields.ResolvedAt,
			Metadata:   fields.Metadata,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update alert: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownAlert
	}
	return nil
}

func (s *GormStorage) Get(ctx context.Context, id string) (*models.Alert, error) {
	var alert models.Alert
	err := s.db.WithContext(ctx).First(&alert, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownAlert
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find alert: %w", err)
	}
	return &alert, nil
}

func (s *GormStorage) Query(ctx context.Context, limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Order("timestamp desc").
		Order("id").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	return alerts, nil
}

func (s *GormStorage) Range(ctx context.Context, start, end time.Time) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Where("timestamp BETWEEN ? AND ?", start.UTC(), end.UTC()).
		Order("timestamp desc").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	return alerts, nil
}

// Store fronts Storage with the in-memory active index.
type Store struct {
	storage Storage
	index   *ActiveIndex
	log     logrus.FieldLogger
	now     func() time.Time

	// mu orders Record against Resolve.
	mu sync.Mutex
}

func NewStore(storage Storage, index *ActiveIndex, log logrus.FieldLogger, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{storage: storage, index: index, log: log, now: now}
}

// Persist writes alert to storage only.
func (s *Store) Persist(ctx context.Context, alert *models.Alert) error {
	if err := s.storage.Insert(ctx, alert); err != nil {
		return &PersistenceError{AlertID: alert.ID, Op: "persist", Err: err}
	}
	return nil
}

// Record indexes alert and then persists it. A failed insert leaves the alert
// indexed. Resolve cannot interleave between the two steps.
func (s *Store) Record(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index.Put(alert)
	return s.Persist(ctx, alert)
}

// Resolve marks an alert resolved. Resolving twice keeps the first
// resolution time; an unknown id only logs a warning. Storage is written
// before the index so a failed write can be retried.
func (s *Store) Resolve(ctx context.Context, alertID, resolvedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.log.WithField("alert_id", alertID)
	now := s.now().UTC()

	if indexed, ok := s.index.Get(alertID); ok {
		if indexed.Resolved {
			return nil
		}

		err := s.storage.Update(ctx, alertID, AlertUpdate{
			Resolved:   true,
			ResolvedAt: &now,
			Metadata:   withResolver(indexed.Metadata, resolvedBy),
		})
		switch {
		case errors.Is(err, ErrUnknownAlert):
			// persist failed earlier; the index is the only record
			log.Warn("resolved alert missing from storage")
		case err != nil:
			return &PersistenceError{AlertID: alertID, Op: "resolve", Err: err}
		default:
			log.WithField("resolved_by", resolvedBy).Info("alert resolved")
		}
		s.index.MarkResolved(alertID, now, resolvedBy)
		return nil
	}

	stored, err := s.storage.Get(ctx, alertID)
	if errors.Is(err, ErrUnknownAlert) {
		log.Warn("resolve called for unknown alert")
		return nil
	}
	if err != nil {
		return &PersistenceError{AlertID: alertID, Op: "resolve", Err: err}
	}
	if stored.Resolved {
		return nil
	}

	update := AlertUpdate{Resolved: true, ResolvedAt: &now, Metadata: withResolver(stored.Metadata, resolvedBy)}
	if err := s.storage.Update(ctx, alertID, update); err != nil {
		return &PersistenceError{AlertID: alertID, Op: "resolve", Err: err}
	}
	log.WithField("resolved_by", resolvedBy).Info("alert resolved")
	return nil
}

func withResolver(meta map[string]any, resolvedBy string) map[string]any {
	if meta == nil {
		meta = make(map[string]any)
	}
	if resolvedBy != "" {
		meta[models.MetaResolvedBy] = resolvedBy
	}
	return meta
}

// History returns the newest limit alerts from storage.
func (s *Store) History(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.storage.Query(ctx, limit)
}

// Between returns stored alerts created inside [start, end].
func (s *Store) Between(ctx context.Context, start, end time.Time) ([]models.Alert, error) {
	return s.storage.Range(ctx, start, end)
}

// ActiveAlerts reads the in-memory index, never storage.
func (s *Store) ActiveAlerts() []*models.Alert {
	return s.index.Unresolved()
}
