// Package domain defines the core models of the rule engine: rules and their
// triggers, per-tenant server configuration, rate-limit bookkeeping, and the
// processed-event ledger. Types carrying gorm tags are persisted by the repo
// package; the rest are value types passed between engine components.
package domain

import (
	"regexp"
	"time"
)

// Scope names the tier a rule is attached to. Tiers nest from the most
// specific (thread) to the broadest (server).
type Scope string

const (
	ScopeThread   Scope = "thread"
	ScopeChannel  Scope = "channel"
	ScopeCategory Scope = "category"
	ScopeServer   Scope = "server"
)

// Precedence lists the tiers in resolution order.
var Precedence = []Scope{ScopeThread, ScopeChannel, ScopeCategory, ScopeServer}

// Valid reports whether s is one of the four known tiers.
func (s Scope) Valid() bool {
	switch s {
	case ScopeThread, ScopeChannel, ScopeCategory, ScopeServer:
		return true
	}
	return false
}

// MatchMode selects how a trigger's text is compared with event content.
type MatchMode string

const (
	MatchExact    MatchMode = "exact"
	MatchPrefix   MatchMode = "prefix"
	MatchContains MatchMode = "contains"
	MatchRegex    MatchMode = "regex"
)

// Valid reports whether m is a supported mode.
func (m MatchMode) Valid() bool {
	switch m {
	case MatchExact, MatchPrefix, MatchContains, MatchRegex:
		return true
	}
	return false
}

// CompiledPattern is the memoized result of compiling a regex trigger. Err is
// set when compilation failed; such a pattern never matches.
type CompiledPattern struct {
	Source string
	Re     *regexp.Regexp
	Err    error
}

// Trigger is a single pattern that can make its rule match.
//
// Fields:
//   - RuleID: owning rule; triggers are deleted with it.
//   - Position: stored order within the rule (ascending).
//   - Pattern: compiled regex, filled when the trigger enters a cache
//     generation. Never persisted.
type Trigger struct {
	ID       int64     `json:"id"       gorm:"primaryKey;autoIncrement"`
	RuleID   int64     `json:"rule_id"  gorm:"not null;index:idx_trigger_rule_pos,priority:1"`
	Position int       `json:"position" gorm:"not null;index:idx_trigger_rule_pos,priority:2"`
	Text     string    `json:"text"     gorm:"type:varchar(255);not null"`
	Mode     MatchMode `json:"mode"     gorm:"type:varchar(16);not null;check:mode IN ('exact','prefix','contains','regex')"`
	Enabled  bool      `json:"enabled"  gorm:"not null"`

	Pattern *CompiledPattern `json:"-" gorm:"-"`
}

// TableName returns the database table name for Trigger.
func (Trigger) TableName() string { return "rule_triggers" }

// Rule binds a set of triggers to a single action within one scope.
//
// Exactly one of ThreadID, ChannelID and CategoryID is set for the matching
// scope; none is set for server-scope rules, whose target is the tenant.
// Delays are in seconds; nil means "do not delete".
type Rule struct {
	ID         int64      `json:"id"          gorm:"primaryKey;autoIncrement"`
	TenantID   string     `json:"tenant_id"   gorm:"type:varchar(32);not null;index:idx_rules_tenant_scope,priority:1"`
	Scope      Scope      `json:"scope"       gorm:"type:varchar(16);not null;index:idx_rules_tenant_scope,priority:2;check:scope IN ('server','thread','channel','category')"`
	ThreadID   *string    `json:"thread_id,omitempty"   gorm:"type:varchar(32);index"`
	ChannelID  *string    `json:"channel_id,omitempty"  gorm:"type:varchar(32);index"`
	CategoryID *string    `json:"category_id,omitempty" gorm:"type:varchar(32);index"`
	Action     ActionKind `json:"action"      gorm:"type:varchar(24);not null"`
	ReplyText  string     `json:"reply_text"  gorm:"type:text;not null;default:''"`
	Reaction   string     `json:"reaction"    gorm:"type:varchar(64);not null;default:''"`

	DeleteTriggerAfter *int `json:"delete_trigger_after,omitempty"`
	DeleteReplyAfter   *int `json:"delete_reply_after,omitempty"`

	Cooldowns Cooldowns `json:"cooldowns" gorm:"embedded;embeddedPrefix:cooldown_"`

	Enabled   bool      `json:"enabled"    gorm:"not null"`
	Priority  int       `json:"priority"   gorm:"not null;default:0"`
	CreatedBy string    `json:"created_by" gorm:"type:varchar(32)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Triggers []Trigger `json:"triggers" gorm:"foreignKey:RuleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Rule.
func (Rule) TableName() string { return "rules" }

// TargetID returns the id of the scope this rule is attached to.
func (r *Rule) TargetID() string {
	switch r.Scope {
	case ScopeThread:
		return deref(r.ThreadID)
	case ScopeChannel:
		return deref(r.ChannelID)
	case ScopeCategory:
		return deref(r.CategoryID)
	default:
		return r.TenantID
	}
}

// SetTarget stores id in the column for the rule's scope and clears the rest.
func (r *Rule) SetTarget(id string) {
	r.ThreadID, r.ChannelID, r.CategoryID = nil, nil, nil
	switch r.Scope {
	case ScopeThread:
		r.ThreadID = &id
	case ScopeChannel:
		r.ChannelID = &id
	case ScopeCategory:
		r.CategoryID = &id
	}
}

// Builtin reports whether r is the synthesized default rule (never stored).
func (r *Rule) Builtin() bool { return r.ID == 0 }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
