package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/thread-commands/internal/domain"
)

// InsertProcessed claims rec.EventID. It returns false, with a nil error,
// when another path already claimed the event.
func InsertProcessed(ctx context.Context, db *gorm.DB, rec *domain.ProcessedEvent) (bool, error) {
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = domain.OutcomePending
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isDuplicate(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UpdateProcessedOutcome records the final outcome of a claimed event.
func UpdateProcessedOutcome(ctx context.Context, db *gorm.DB, eventID string, status domain.Outcome, ruleID *int64, tier domain.Scope, detail string) error {
	res := db.WithContext(ctx).Model(&domain.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"status":  status,
			"rule_id": ruleID,
			"tier":    tier,
			"detail":  detail,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProcessed returns the ledger row for eventID or ErrNotFound.
func GetProcessed(ctx context.Context, db *gorm.DB, eventID string) (*domain.ProcessedEvent, error) {
	var rec domain.ProcessedEvent
	err := db.WithContext(ctx).Where("event_id = ?", eventID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountProcessed returns the number of ledger rows for tenantID.
func CountProcessed(ctx context.Context, db *gorm.DB, tenantID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.ProcessedEvent{}).Where("tenant_id = ?", tenantID).Count(&n).Error
	return n, err
}
