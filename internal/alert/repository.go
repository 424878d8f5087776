package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/socialeye/internal/models"
)

// RuleRepository keeps rules created through the admin API across restarts.
type RuleRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db, now: time.Now}
}

// Save inserts or overwrites the rule by id and clears any tombstone for it.
func (r *RuleRepository) Save(ctx context.Context, rule *models.AlertRule) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(rule).Error; err != nil {
			return err
		}
		return tx.Delete(&models.RuleTombstone{}, "rule_id = ?", rule.ID).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}
	return nil
}

func (r *RuleRepository) Get(ctx context.Context, id string) (*models.AlertRule, error) {
	var rule models.AlertRule
	err := r.db.WithContext(ctx).First(&rule, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %s: %w", id, err)
	}
	return &rule, nil
}

func (r *RuleRepository) List(ctx context.Context) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	if err := r.db.WithContext(ctx).Order("id").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// Delete removes the stored rule and leaves a tombstone, so a file or
// default rule with the same id is not loaded again. It is idempotent.
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.AlertRule{}, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&models.RuleTombstone{RuleID: id, DeletedAt: r.now().UTC()}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	return nil
}

// Tombstones returns the ids of rules deleted through Delete.
func (r *RuleRepository) Tombstones(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.RuleTombstone{}).Order("rule_id").Pluck("rule_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rule tombstones: %w", err)
	}
	return ids, nil
}
