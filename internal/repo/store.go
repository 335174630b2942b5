package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/thread-commands/internal/domain"
)

// Table names accepted by Store.DeleteOlderThan.
const (
	TableProcessedEvents = "processed_events"
	TableRateLimits      = "rate_limits"
	TableIdempotency     = "idempotency"
	TableUsageStats      = "rule_usage_stats"
)

// retentionColumns maps each purgeable table to the timestamp it ages by.
var retentionColumns = map[string]string{
	TableProcessedEvents: "processed_at",
	TableRateLimits:      "last_fired",
	TableIdempotency:     "expires_at",
	TableUsageStats:      "last_used_at",
}

// Store bundles the package functions behind one handle so engine components
// can depend on narrow interfaces instead of *gorm.DB.
type Store struct {
	DB *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) LoadRules(ctx context.Context, scope domain.Scope, target string) ([]domain.Rule, error) {
	return LoadRules(ctx, s.DB, scope, target)
}

func (s *Store) LoadServerConfig(ctx context.Context, tenantID string) (*domain.ServerConfig, error) {
	return LoadServerConfig(ctx, s.DB, tenantID)
}

func (s *Store) UpsertRateLimitEntry(ctx context.Context, windows []Window, now time.Time) (bool, error) {
	return UpsertRateLimitEntries(ctx, s.DB, windows, now)
}

func (s *Store) InsertIfAbsent(ctx context.Context, rec *domain.ProcessedEvent) (bool, error) {
	return InsertProcessed(ctx, s.DB, rec)
}

func (s *Store) RecordOutcome(ctx context.Context, eventID string, status domain.Outcome, ruleID *int64, tier domain.Scope, detail string) error {
	return UpdateProcessedOutcome(ctx, s.DB, eventID, status, ruleID, tier, detail)
}

func (s *Store) ListScanTenants(ctx context.Context) ([]string, error) {
	return ListScanTenants(ctx, s.DB)
}

func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	return ListTenants(ctx, s.DB)
}

func (s *Store) IncrementUsage(ctx context.Context, rows []domain.RuleUsageStat) error {
	return IncrementUsage(ctx, s.DB, rows)
}

func (s *Store) MaxRuleCooldown(ctx context.Context, tenantID string) (int, error) {
	return MaxRuleCooldown(ctx, s.DB, tenantID)
}

func (s *Store) DeleteRateLimitsOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	return DeleteRateLimitsOlderThan(ctx, s.DB, tenantID, cutoff)
}

// DeleteOlderThan purges rows of table whose retention timestamp is before
// cutoff. Unknown tables are an error rather than a silent no-op.
func (s *Store) DeleteOlderThan(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	col, ok := retentionColumns[table]
	if !ok {
		return 0, fmt.Errorf("repo: no retention column for table %q", table)
	}
	res := s.DB.WithContext(ctx).Table(table).Where(col+" < ?", cutoff).Delete(nil)
	return res.RowsAffected, res.Error
}
