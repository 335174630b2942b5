package domain

// Built-in go-to-top rule: a silent jump-to-first-post shortcut with the
// trigger message and the reply cleaned up after five minutes.
const (
	defaultRuleReaction = "✅"
	defaultRuleDelay    = 300
)

// DefaultRule returns the synthesized go-to-top server rule for tenantID. It
// has ID 0, the lowest priority, and is never persisted under that id.
func DefaultRule(tenantID string) *Rule {
	texts := []string{"/回顶", "／回顶", "回顶"}
	r := &Rule{
		TenantID:           tenantID,
		Scope:              ScopeServer,
		Action:             ActionGoToTop,
		Reaction:           defaultRuleReaction,
		DeleteTriggerAfter: intp(defaultRuleDelay),
		DeleteReplyAfter:   intp(defaultRuleDelay),
		Enabled:            true,
		Priority:           0,
	}
	for i, t := range texts {
		r.Triggers = append(r.Triggers, Trigger{Position: i, Text: t, Mode: MatchExact, Enabled: true})
	}
	return r
}
