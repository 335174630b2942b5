package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/thread-commands/internal/domain"
)

// IncrementUsage adds each row's UsageCount to the stored counter for
// (tenant, actor, rule), creating missing rows. LastTrigger and LastUsedAt are
// overwritten with the batch values.
func IncrementUsage(ctx context.Context, db *gorm.DB, rows []domain.RuleUsageStat) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "actor_id"}, {Name: "rule_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"usage_count":  gorm.Expr("rule_usage_stats.usage_count + excluded.usage_count"),
			"last_trigger": gorm.Expr("excluded.last_trigger"),
			"last_used_at": gorm.Expr("excluded.last_used_at"),
		}),
	}).CreateInBatches(rows, 100).Error
}

// ListUsage returns a tenant's usage counters, busiest first. A zero ruleID
// means every rule.
func ListUsage(ctx context.Context, db *gorm.DB, tenantID string, ruleID int64, limit int) ([]domain.RuleUsageStat, error) {
	q := db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if ruleID != 0 {
		q = q.Where("rule_id = ?", ruleID)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []domain.RuleUsageStat
	err := q.Order("usage_count DESC").Order("last_used_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
