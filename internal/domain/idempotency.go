package domain

import "time"

// Idempotency remembers which rule a create request produced, keyed by
// (tenant_id, actor_id, key), so that a retried request returns the original
// rule instead of creating a duplicate.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	TenantID  string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_tenant_actor_key,priority:1"`
	ActorID   string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_tenant_actor_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_tenant_actor_key,priority:3"`
	RuleID    int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
