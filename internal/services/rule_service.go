// Package services – RuleService
//
// RuleService owns rule authoring. Every mutation is validated, committed,
// and then written through to the resolver's tier cache before the method
// returns, so the next event sees the new rule set. A failed refresh does
// not undo a committed write; the resolver drops the entry instead and the
// next read reloads it.
//
// Observability: all public methods are OpenTelemetry-instrumented.

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/repo"
)

// CacheSync is the write-through surface of resolver.Resolver.
type CacheSync interface {
	Refresh(ctx context.Context, scope domain.Scope, target string) error
	Invalidate(scope domain.Scope, target string)
	RefreshConfig(ctx context.Context, tenantID string) error
	InvalidateConfig(tenantID string)
}

// RuleService coordinates rule persistence and cache write-through.
type RuleService struct {
	DB     *gorm.DB
	Cache  CacheSync
	Limits Limits

	// IdempotencyTTL bounds how long a create key is remembered. Zero
	// defaults to 24h.
	IdempotencyTTL time.Duration
}

func (s *RuleService) limits() Limits { return s.Limits.withDefaults() }

func (s *RuleService) idemTTL() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return 24 * time.Hour
	}
	return s.IdempotencyTTL
}

// refresh writes (scope, target) through to the cache. The resolver
// invalidates on failure, so the error is only logged.
func (s *RuleService) refresh(ctx context.Context, scope domain.Scope, target string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Refresh(ctx, scope, target); err != nil {
		log.Warn().Err(err).Str("scope", string(scope)).Str("target", target).Msg("write-through refresh failed; entry invalidated")
	}
}

// checkTarget rejects attaching a rule of tenantID to a target that another
// tenant already uses or that is full.
func (s *RuleService) checkTarget(ctx context.Context, db *gorm.DB, tenantID string, scope domain.Scope, target string) error {
	if scope != domain.ScopeServer {
		foreign, err := repo.ForeignRules(ctx, db, tenantID, scope, target)
		if err != nil {
			return err
		}
		if foreign {
			return ErrTargetOwned
		}
	}
	n, err := repo.CountRules(ctx, db, scope, target)
	if err != nil {
		return err
	}
	if limit := s.limits().RuleFor(scope); n >= int64(limit) {
		return ErrTooManyRules
	}
	return nil
}

// CreateRule validates and stores a rule authored by actorID. When key is
// non-empty and was already used by the same actor, the rule it produced is
// returned with replayed set and nothing is written.
func (s *RuleService) CreateRule(ctx context.Context, tenantID, actorID, key string, in RuleInput) (rule *domain.Rule, replayed bool, err error) {
	tr := otel.Tracer("services/RuleService")
	ctx, span := tr.Start(ctx, "CreateRule",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("rule.scope", string(in.Scope)),
			attribute.Bool("idempotent", key != ""),
		),
	)
	defer span.End()

	if key != "" {
		if r, ok, err := s.replay(ctx, tenantID, actorID, key); err != nil || ok {
			return r, ok, err
		}
	}

	r, err := s.limits().build(tenantID, in)
	if err != nil {
		return nil, false, err
	}
	r.CreatedBy = actorID

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkTarget(ctx, tx, tenantID, r.Scope, r.TargetID()); err != nil {
			return err
		}
		if err := repo.CreateRule(ctx, tx, r); err != nil {
			return err
		}
		if key == "" {
			return nil
		}
		_, err := repo.CreateIdempotency(ctx, tx, tenantID, actorID, key, r.ID, s.idemTTL())
		return err
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request with the same key won the race.
		r, ok, rerr := s.replay(ctx, tenantID, actorID, key)
		if rerr != nil || ok {
			return r, ok, rerr
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	span.SetAttributes(attribute.Int64("rule.id", r.ID))
	s.refresh(ctx, r.Scope, r.TargetID())
	return r, false, nil
}

func (s *RuleService) replay(ctx context.Context, tenantID, actorID, key string) (*domain.Rule, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, tenantID, actorID, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	r, err := repo.GetRule(ctx, s.DB, tenantID, rec.RuleID)
	if errors.Is(err, repo.ErrNotFound) {
		// The rule was deleted since; the key no longer replays anything.
		return nil, false, ErrRuleNotFound
	}
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// UpdateRule replaces rule id with in. If the rule moved to another target,
// both the old and the new cache entries are refreshed.
func (s *RuleService) UpdateRule(ctx context.Context, tenantID string, id int64, in RuleInput) (*domain.Rule, error) {
	tr := otel.Tracer("services/RuleService")
	ctx, span := tr.Start(ctx, "UpdateRule",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int64("rule.id", id),
		),
	)
	defer span.End()

	r, err := s.limits().build(tenantID, in)
	if err != nil {
		return nil, err
	}

	var old *domain.Rule
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := repo.GetRule(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		old = prev
		if prev.Scope != r.Scope || prev.TargetID() != r.TargetID() {
			if err := s.checkTarget(ctx, tx, tenantID, r.Scope, r.TargetID()); err != nil {
				return err
			}
		}
		r.ID = id
		r.CreatedBy = prev.CreatedBy
		r.CreatedAt = prev.CreatedAt
		return repo.UpdateRule(ctx, tx, r)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.refresh(ctx, r.Scope, r.TargetID())
	if old.Scope != r.Scope || old.TargetID() != r.TargetID() {
		s.refresh(ctx, old.Scope, old.TargetID())
	}
	return r, nil
}

// DeleteRule removes rule id and refreshes the entry it lived in.
func (s *RuleService) DeleteRule(ctx context.Context, tenantID string, id int64) error {
	tr := otel.Tracer("services/RuleService")
	ctx, span := tr.Start(ctx, "DeleteRule",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int64("rule.id", id),
		),
	)
	defer span.End()

	gone, err := repo.DeleteRule(ctx, s.DB, tenantID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrRuleNotFound
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.refresh(ctx, gone.Scope, gone.TargetID())
	return nil
}

// GetRule returns rule id of tenantID.
func (s *RuleService) GetRule(ctx context.Context, tenantID string, id int64) (*domain.Rule, error) {
	tr := otel.Tracer("services/RuleService")
	ctx, span := tr.Start(ctx, "GetRule",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int64("rule.id", id),
		),
	)
	defer span.End()

	r, err := repo.GetRule(ctx, s.DB, tenantID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRuleNotFound
	}
	return r, err
}

// ListRules returns tenantID's stored rules; an empty scope lists all.
func (s *RuleService) ListRules(ctx context.Context, tenantID string, scope domain.Scope) ([]domain.Rule, error) {
	tr := otel.Tracer("services/RuleService")
	ctx, span := tr.Start(ctx, "ListRules",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("rule.scope", string(scope)),
		),
	)
	defer span.End()

	if scope != "" && !scope.Valid() {
		return nil, invalid("scope", ErrInvalidScope, "unknown scope "+string(scope))
	}
	return repo.ListRules(ctx, s.DB, tenantID, scope)
}

// CreateDefaultRule stores a copy of the built-in go-to-top rule as a real
// server rule the tenant can then edit.
func (s *RuleService) CreateDefaultRule(ctx context.Context, tenantID, actorID string) (*domain.Rule, error) {
	tr := otel.Tracer("services/RuleService")
	ctx, span := tr.Start(ctx, "CreateDefaultRule", trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	var existing int64
	err := s.DB.WithContext(ctx).Model(&domain.Rule{}).
		Where("tenant_id = ? AND scope = ? AND action = ?", tenantID, domain.ScopeServer, domain.ActionGoToTop).
		Count(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrDefaultRuleExists
	}

	def := domain.DefaultRule(tenantID)
	in := RuleInput{
		Scope:              def.Scope,
		Action:             def.Action,
		Reaction:           def.Reaction,
		DeleteTriggerAfter: def.DeleteTriggerAfter,
		DeleteReplyAfter:   def.DeleteReplyAfter,
		Priority:           def.Priority,
	}
	for _, t := range def.Triggers {
		in.Triggers = append(in.Triggers, TriggerInput{Text: t.Text, Mode: t.Mode})
	}
	r, _, err := s.CreateRule(ctx, tenantID, actorID, "", in)
	return r, err
}

// ForgetTarget drops a target's cache entry, used when the platform reports
// the thread, channel or category deleted.
func (s *RuleService) ForgetTarget(scope domain.Scope, target string) error {
	if !scope.Valid() {
		return ErrInvalidScope
	}
	if s.Cache != nil {
		s.Cache.Invalidate(scope, target)
	}
	return nil
}

// Usage returns usage counters for rule id, most used first.
func (s *RuleService) Usage(ctx context.Context, tenantID string, id int64, limit int) ([]domain.RuleUsageStat, error) {
	tr := otel.Tracer("services/RuleService")
	ctx, span := tr.Start(ctx, "Usage",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int64("rule.id", id),
		),
	)
	defer span.End()

	if _, err := s.GetRule(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return repo.ListUsage(ctx, s.DB, tenantID, id, limit)
}
