package domain

import "time"

// Outcome is the terminal status recorded for a processed event.
type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomeNoMatch     Outcome = "no_match"
	OutcomeDisabled    Outcome = "disabled"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeSuppressed  Outcome = "suppressed"
	OutcomeDispatched  Outcome = "dispatched"
	OutcomePartial     Outcome = "partial"
	OutcomeFailed      Outcome = "failed"
)

// Source tells which path claimed an event.
type Source string

const (
	SourceLive Source = "live"
	SourceScan Source = "scan"
)

// ProcessedEvent is the dedup ledger: one row per external event id. The
// primary key makes a second insert for the same event fail, which callers
// treat as "already handled".
type ProcessedEvent struct {
	EventID        string    `json:"event_id"         gorm:"type:varchar(64);primaryKey"`
	TenantID       string    `json:"tenant_id"        gorm:"type:varchar(32);not null;index"`
	ContainerID    string    `json:"container_id"     gorm:"type:varchar(32)"`
	ThreadID       string    `json:"thread_id"        gorm:"type:varchar(32)"`
	RuleID         *int64    `json:"rule_id,omitempty"`
	Tier           Scope     `json:"tier,omitempty"   gorm:"type:varchar(16)"`
	Status         Outcome   `json:"status"           gorm:"type:varchar(16);not null"`
	Detail         string    `json:"detail,omitempty" gorm:"type:text"`
	Source         Source    `json:"source"           gorm:"type:varchar(8);not null"`
	EventCreatedAt time.Time `json:"event_created_at"`
	ProcessedAt    time.Time `json:"processed_at"     gorm:"not null;index"`
}

// TableName returns the database table name for ProcessedEvent.
func (ProcessedEvent) TableName() string { return "processed_events" }
