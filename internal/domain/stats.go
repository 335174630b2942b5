package domain

import "time"

// RuleUsageStat counts how often an actor fired a rule.
type RuleUsageStat struct {
	TenantID    string    `json:"tenant_id"    gorm:"type:varchar(32);primaryKey"`
	ActorID     string    `json:"actor_id"     gorm:"type:varchar(32);primaryKey"`
	RuleID      int64     `json:"rule_id"      gorm:"primaryKey;autoIncrement:false"`
	UsageCount  int64     `json:"usage_count"  gorm:"not null;default:0"`
	LastTrigger string    `json:"last_trigger" gorm:"type:varchar(255)"`
	LastUsedAt  time.Time `json:"last_used_at" gorm:"index"`
}

// TableName returns the database table name for RuleUsageStat.
func (RuleUsageStat) TableName() string { return "rule_usage_stats" }
