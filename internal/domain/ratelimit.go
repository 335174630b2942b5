package domain

import (
	"fmt"
	"time"
)

// RateLimitKey identifies one cooldown window.
type RateLimitKey struct {
	TenantID string
	RuleID   int64
	Tier     Granularity
	TargetID string
	Family   Family
}

// String renders the key in a stable, colon-separated form used by the
// in-memory and Redis backends.
func (k RateLimitKey) String() string {
	return fmt.Sprintf("%s:%d:%s:%s:%s", k.TenantID, k.RuleID, k.Tier, k.Family, k.TargetID)
}

// RateLimitEntry is the persisted form of a cooldown window. A missing row is
// equivalent to "never fired".
type RateLimitEntry struct {
	TenantID  string      `gorm:"type:varchar(32);primaryKey"`
	RuleID    int64       `gorm:"primaryKey;autoIncrement:false"`
	Tier      Granularity `gorm:"type:varchar(16);primaryKey"`
	TargetID  string      `gorm:"type:varchar(32);primaryKey"`
	Family    Family      `gorm:"type:varchar(16);primaryKey"`
	LastFired time.Time   `gorm:"not null;index"`
	Count     int64       `gorm:"column:fire_count;not null;default:0"`
}

// TableName returns the database table name for RateLimitEntry.
func (RateLimitEntry) TableName() string { return "rate_limits" }

// Key returns the entry's identity.
func (e RateLimitEntry) Key() RateLimitKey {
	return RateLimitKey{TenantID: e.TenantID, RuleID: e.RuleID, Tier: e.Tier, TargetID: e.TargetID, Family: e.Family}
}
