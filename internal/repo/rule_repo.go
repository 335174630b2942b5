// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for rules and their
// triggers.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They carry no business rules: limits and
// validation live in the services package.
//
// Error semantics:
//   - A missing rule yields ErrNotFound.
//   - Other database errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/thread-commands/internal/domain"
)

// scopeColumn maps a non-server scope to its target column.
func scopeColumn(s domain.Scope) (string, error) {
	switch s {
	case domain.ScopeThread:
		return "thread_id", nil
	case domain.ScopeChannel:
		return "channel_id", nil
	case domain.ScopeCategory:
		return "category_id", nil
	}
	return "", fmt.Errorf("repo: scope %q has no target column", s)
}

// scoped narrows q to rules attached to (scope, target). Server-scope targets
// are tenant ids.
func scoped(q *gorm.DB, scope domain.Scope, target string) (*gorm.DB, error) {
	if scope == domain.ScopeServer {
		return q.Where("scope = ? AND tenant_id = ?", scope, target), nil
	}
	col, err := scopeColumn(scope)
	if err != nil {
		return nil, err
	}
	return q.Where("scope = ? AND "+col+" = ?", scope, target), nil
}

func preloadTriggers(q *gorm.DB) *gorm.DB {
	return q.Preload("Triggers", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC, id ASC")
	})
}

// LoadRules returns the enabled rules of (scope, target) ordered by priority
// descending, ties broken by id, with triggers in stored order.
func LoadRules(ctx context.Context, db *gorm.DB, scope domain.Scope, target string) ([]domain.Rule, error) {
	q, err := scoped(db.WithContext(ctx).Model(&domain.Rule{}), scope, target)
	if err != nil {
		return nil, err
	}
	var rules []domain.Rule
	err = preloadTriggers(q).
		Where("enabled = ?", true).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	return rules, err
}

// ListRules returns every rule of a tenant, enabled or not, for authoring.
// An empty scope lists all scopes.
func ListRules(ctx context.Context, db *gorm.DB, tenantID string, scope domain.Scope) ([]domain.Rule, error) {
	q := db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if scope != "" {
		q = q.Where("scope = ?", scope)
	}
	var rules []domain.Rule
	err := preloadTriggers(q).Order("scope ASC, priority DESC, id ASC").Find(&rules).Error
	return rules, err
}

// GetRule fetches a rule of tenantID by id with its triggers.
func GetRule(ctx context.Context, db *gorm.DB, tenantID string, id int64) (*domain.Rule, error) {
	var r domain.Rule
	err := preloadTriggers(db.WithContext(ctx)).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountRules returns how many rules are attached to (scope, target).
func CountRules(ctx context.Context, db *gorm.DB, scope domain.Scope, target string) (int64, error) {
	q, err := scoped(db.WithContext(ctx).Model(&domain.Rule{}), scope, target)
	if err != nil {
		return 0, err
	}
	var n int64
	err = q.Count(&n).Error
	return n, err
}

// ForeignRules reports whether (scope, target) holds rules of a tenant other
// than tenantID. Non-server targets are platform ids and carry no tenant, so
// authoring checks this before attaching a rule.
func ForeignRules(ctx context.Context, db *gorm.DB, tenantID string, scope domain.Scope, target string) (bool, error) {
	q, err := scoped(db.WithContext(ctx).Model(&domain.Rule{}), scope, target)
	if err != nil {
		return false, err
	}
	var n int64
	err = q.Where("tenant_id <> ?", tenantID).Count(&n).Error
	return n > 0, err
}

// CreateRule inserts r and its triggers in one transaction. Trigger positions
// are renumbered from zero in slice order.
func CreateRule(ctx context.Context, db *gorm.DB, r *domain.Rule) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Triggers").Create(r).Error; err != nil {
			return err
		}
		return insertTriggers(tx, r)
	})
}

// UpdateRule overwrites r's columns and replaces its trigger list. It returns
// ErrNotFound when the rule does not exist for r.TenantID.
func UpdateRule(ctx context.Context, db *gorm.DB, r *domain.Rule) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Rule{}).
			Where("id = ? AND tenant_id = ?", r.ID, r.TenantID).
			Select("*").
			Omit("id", "tenant_id", "created_at", "created_by", "Triggers").
			Updates(r)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("rule_id = ?", r.ID).Delete(&domain.Trigger{}).Error; err != nil {
			return err
		}
		return insertTriggers(tx, r)
	})
}

// DeleteRule removes a rule and its triggers, returning the deleted row so the
// caller can refresh the cache entry it lived in.
func DeleteRule(ctx context.Context, db *gorm.DB, tenantID string, id int64) (*domain.Rule, error) {
	var deleted *domain.Rule
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r domain.Rule
		if err := tx.Where("id = ? AND tenant_id = ?", id, tenantID).First(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Where("rule_id = ?", id).Delete(&domain.Trigger{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&domain.Rule{}, id).Error; err != nil {
			return err
		}
		deleted = &r
		return nil
	})
	return deleted, err
}

// MaxRuleCooldown returns the longest cooldown, in seconds, configured on
// any rule of tenantID.
func MaxRuleCooldown(ctx context.Context, db *gorm.DB, tenantID string) (int, error) {
	var row struct {
		A, B, C, D, E, F *int
	}
	err := db.WithContext(ctx).Model(&domain.Rule{}).
		Select(`MAX(cooldown_user_reply) AS a, MAX(cooldown_thread_reply) AS b, MAX(cooldown_channel_reply) AS c,
			MAX(cooldown_user_delete) AS d, MAX(cooldown_thread_delete) AS e, MAX(cooldown_channel_delete) AS f`).
		Where("tenant_id = ?", tenantID).
		Scan(&row).Error
	if err != nil {
		return 0, err
	}
	m := 0
	for _, v := range []*int{row.A, row.B, row.C, row.D, row.E, row.F} {
		if v != nil && *v > m {
			m = *v
		}
	}
	return m, nil
}

func insertTriggers(tx *gorm.DB, r *domain.Rule) error {
	for i := range r.Triggers {
		t := &r.Triggers[i]
		t.ID = 0
		t.RuleID = r.ID
		t.Position = i
	}
	if len(r.Triggers) == 0 {
		return nil
	}
	return tx.Create(&r.Triggers).Error
}
