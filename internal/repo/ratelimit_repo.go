package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/thread-commands/internal/domain"
)

// errWindowOpen aborts the admission transaction when a key is still cooling
// down.
var errWindowOpen = errors.New("cooldown window open")

// Window pairs a rate-limit key with the cooldown to enforce on it.
type Window struct {
	Key      domain.RateLimitKey
	Cooldown time.Duration
}

// UpsertRateLimitEntries atomically admits a set of windows: it stamps every
// key with now and returns true only if none of them fired within its
// cooldown; otherwise nothing is written and it returns false.
//
// Each key is written with a conditional upsert whose DO UPDATE only applies
// when the stored timestamp is old enough, so the database row lock decides
// races between concurrent admissions.
func UpsertRateLimitEntries(ctx context.Context, db *gorm.DB, windows []Window, now time.Time) (bool, error) {
	if len(windows) == 0 {
		return true, nil
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range windows {
			row := domain.RateLimitEntry{
				TenantID:  w.Key.TenantID,
				RuleID:    w.Key.RuleID,
				Tier:      w.Key.Tier,
				TargetID:  w.Key.TargetID,
				Family:    w.Key.Family,
				LastFired: now,
				Count:     1,
			}
			res := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "tenant_id"}, {Name: "rule_id"}, {Name: "tier"}, {Name: "target_id"}, {Name: "family"}},
				Where: clause.Where{Exprs: []clause.Expression{
					clause.Expr{SQL: "rate_limits.last_fired <= ?", Vars: []any{now.Add(-w.Cooldown)}},
				}},
				DoUpdates: clause.Assignments(map[string]any{
					"last_fired": now,
					"fire_count": gorm.Expr("rate_limits.fire_count + 1"),
				}),
			}).Create(&row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errWindowOpen
			}
		}
		return nil
	})
	if errors.Is(err, errWindowOpen) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetRateLimitEntry returns the stored window for key or ErrNotFound.
func GetRateLimitEntry(ctx context.Context, db *gorm.DB, key domain.RateLimitKey) (*domain.RateLimitEntry, error) {
	var e domain.RateLimitEntry
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND rule_id = ? AND tier = ? AND target_id = ? AND family = ?",
			key.TenantID, key.RuleID, key.Tier, key.TargetID, key.Family).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteRateLimitsOlderThan removes a tenant's windows last fired before
// cutoff and returns how many were removed.
func DeleteRateLimitsOlderThan(ctx context.Context, db *gorm.DB, tenantID string, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("tenant_id = ? AND last_fired < ?", tenantID, cutoff).
		Delete(&domain.RateLimitEntry{})
	return res.RowsAffected, res.Error
}
