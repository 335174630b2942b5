package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/matcher"
)

// Limits bounds what one tenant may configure.
type Limits struct {
	ServerRules  int // rules in the tenant's server tier
	TargetRules  int // rules on one thread, channel or category
	Triggers     int // triggers per rule
	TriggerRunes int
	ReplyRunes   int
}

// DefaultLimits returns the stock resource limits.
func DefaultLimits() Limits {
	return Limits{
		ServerRules:  50,
		TargetRules:  10,
		Triggers:     10,
		TriggerRunes: 100,
		ReplyRunes:   2000,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.ServerRules <= 0 {
		l.ServerRules = d.ServerRules
	}
	if l.TargetRules <= 0 {
		l.TargetRules = d.TargetRules
	}
	if l.Triggers <= 0 {
		l.Triggers = d.Triggers
	}
	if l.TriggerRunes <= 0 {
		l.TriggerRunes = d.TriggerRunes
	}
	if l.ReplyRunes <= 0 {
		l.ReplyRunes = d.ReplyRunes
	}
	return l
}

// RuleFor returns the per-target limit for scope.
func (l Limits) RuleFor(scope domain.Scope) int {
	if scope == domain.ScopeServer {
		return l.ServerRules
	}
	return l.TargetRules
}

// TriggerInput is one authored trigger. Mode defaults to exact; Enabled
// defaults to true.
type TriggerInput struct {
	Text    string           `json:"text"    binding:"required"`
	Mode    domain.MatchMode `json:"mode"`
	Enabled *bool            `json:"enabled,omitempty"`
}

// RuleInput is an authored rule. TargetID is ignored for server scope.
type RuleInput struct {
	Scope              domain.Scope      `json:"scope"     binding:"required"`
	TargetID           string            `json:"target_id"`
	Action             domain.ActionKind `json:"action"    binding:"required"`
	ReplyText          string            `json:"reply_text"`
	Reaction           string            `json:"reaction"`
	DeleteTriggerAfter *int              `json:"delete_trigger_after,omitempty"`
	DeleteReplyAfter   *int              `json:"delete_reply_after,omitempty"`
	Cooldowns          domain.Cooldowns  `json:"cooldowns"`
	Enabled            *bool             `json:"enabled,omitempty"`
	Priority           int               `json:"priority"`
	Triggers           []TriggerInput    `json:"triggers"  binding:"required"`
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// build validates in and returns the rule it describes for tenantID.
func (l Limits) build(tenantID string, in RuleInput) (*domain.Rule, error) {
	if !in.Scope.Valid() {
		return nil, invalid("scope", ErrInvalidScope, fmt.Sprintf("unknown scope %q", in.Scope))
	}
	target := strings.TrimSpace(in.TargetID)
	switch {
	case in.Scope == domain.ScopeServer && target != "" && target != tenantID:
		return nil, invalid("target_id", ErrInvalidScope, "server rules belong to their own tenant")
	case in.Scope != domain.ScopeServer && target == "":
		return nil, invalid("target_id", ErrInvalidScope, fmt.Sprintf("%s rules need a target id", in.Scope))
	}

	if !in.Action.Valid() {
		return nil, invalid("action", ErrInvalidAction, fmt.Sprintf("unknown action %q", in.Action))
	}
	reply := normalize(in.ReplyText)
	reaction := strings.TrimSpace(in.Reaction)
	if (in.Action == domain.ActionReply || in.Action == domain.ActionReplyAndReact) && reply == "" {
		return nil, invalid("reply_text", ErrInvalidAction, fmt.Sprintf("%s needs reply text", in.Action))
	}
	if (in.Action == domain.ActionReact || in.Action == domain.ActionReplyAndReact) && reaction == "" {
		return nil, invalid("reaction", ErrInvalidAction, fmt.Sprintf("%s needs a reaction", in.Action))
	}
	if n := utf8.RuneCountInString(reply); n > l.ReplyRunes {
		return nil, invalid("reply_text", ErrReplyTooLong, fmt.Sprintf("%d characters, limit %d", n, l.ReplyRunes))
	}
	if err := nonNegative("delete_trigger_after", in.DeleteTriggerAfter); err != nil {
		return nil, err
	}
	if err := nonNegative("delete_reply_after", in.DeleteReplyAfter); err != nil {
		return nil, err
	}
	if err := validateCooldowns("cooldowns", in.Cooldowns); err != nil {
		return nil, err
	}

	if len(in.Triggers) == 0 || len(in.Triggers) > l.Triggers {
		return nil, invalid("triggers", ErrTooManyTriggers, fmt.Sprintf("need 1 to %d triggers, got %d", l.Triggers, len(in.Triggers)))
	}
	triggers := make([]domain.Trigger, 0, len(in.Triggers))
	for i, t := range in.Triggers {
		field := fmt.Sprintf("triggers[%d]", i)
		text := normalize(t.Text)
		if text == "" {
			return nil, invalid(field+".text", ErrInvalidTrigger, "trigger text is empty")
		}
		if n := utf8.RuneCountInString(text); n > l.TriggerRunes {
			return nil, invalid(field+".text", ErrTriggerTooLong, fmt.Sprintf("%d characters, limit %d", n, l.TriggerRunes))
		}
		mode := t.Mode
		if mode == "" {
			mode = domain.MatchExact
		}
		if !mode.Valid() {
			return nil, invalid(field+".mode", ErrInvalidTrigger, fmt.Sprintf("unknown mode %q", mode))
		}
		if mode == domain.MatchRegex {
			if err := matcher.ValidatePattern(text); err != nil {
				ve := &ValidationError{Field: field + ".text", Reason: err.Error(), Err: fmt.Errorf("%w: %w", ErrInvalidTrigger, err)}
				var pe *matcher.PatternError
				if errors.As(err, &pe) {
					ve.Reason = pe.Reason
					if pe.Suggestion != "" && pe.Suggestion != pe.Pattern {
						ve.Suggestion = pe.Suggestion
					}
				}
				return nil, ve
			}
		}
		enabled := true
		if t.Enabled != nil {
			enabled = *t.Enabled
		}
		triggers = append(triggers, domain.Trigger{Position: i, Text: text, Mode: mode, Enabled: enabled})
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	r := &domain.Rule{
		TenantID:           tenantID,
		Scope:              in.Scope,
		Action:             in.Action,
		ReplyText:          reply,
		Reaction:           reaction,
		DeleteTriggerAfter: in.DeleteTriggerAfter,
		DeleteReplyAfter:   in.DeleteReplyAfter,
		Cooldowns:          in.Cooldowns,
		Enabled:            enabled,
		Priority:           in.Priority,
		Triggers:           triggers,
	}
	r.SetTarget(target)
	return r, nil
}

func nonNegative(field string, v *int) error {
	if v != nil && *v < 0 {
		return invalid(field, ErrInvalidCooldown, "must not be negative")
	}
	return nil
}

func validateCooldowns(prefix string, c domain.Cooldowns) error {
	fields := []struct {
		name string
		v    *int
	}{
		{"user_reply", c.UserReply}, {"thread_reply", c.ThreadReply}, {"channel_reply", c.ChannelReply},
		{"user_delete", c.UserDelete}, {"thread_delete", c.ThreadDelete}, {"channel_delete", c.ChannelDelete},
	}
	for _, f := range fields {
		if err := nonNegative(prefix+"."+f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}
