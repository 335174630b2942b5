// Package services holds the authoring side of the rule engine: creating,
// updating and deleting rules and server configuration, with every mutation
// refreshed into the resolver's caches before it returns.
//
// This file centralizes the service-level error values. Handlers translate
// them into HTTP status codes; callers check them with errors.Is.
package services

import (
	"errors"
	"fmt"
)

// Rule errors.
var (
	// ErrRuleNotFound indicates that the rule does not exist for the tenant.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrInvalidScope is returned when the scope is unknown or the target id
	// does not fit it (missing for thread/channel/category, foreign for server).
	ErrInvalidScope = errors.New("invalid scope or target")

	// ErrInvalidAction is returned for an unknown action kind or for an action
	// missing what it needs (reply text, reaction).
	ErrInvalidAction = errors.New("invalid action")

	// ErrTooManyRules is returned when the target (or the tenant's server
	// tier) already holds the maximum number of rules.
	ErrTooManyRules = errors.New("too many rules")

	// ErrTargetOwned is returned when the target already holds rules of
	// another tenant.
	ErrTargetOwned = errors.New("target belongs to another tenant")

	// ErrTooManyTriggers is returned when a rule has no triggers or more than
	// the per-rule limit.
	ErrTooManyTriggers = errors.New("invalid trigger count")

	// ErrInvalidTrigger is returned for an empty trigger, an unknown match
	// mode, or a regex that fails validation.
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrTriggerTooLong is returned when a trigger text exceeds the limit.
	ErrTriggerTooLong = errors.New("trigger too long")

	// ErrReplyTooLong is returned when the reply text exceeds the limit.
	ErrReplyTooLong = errors.New("reply too long")

	// ErrDefaultRuleExists is returned by CreateDefaultRule when the tenant
	// already stores a go-to-top server rule.
	ErrDefaultRuleExists = errors.New("default rule already exists")
)

// Config errors.
var (
	// ErrInvalidCooldown is returned for negative cooldowns or delays.
	ErrInvalidCooldown = errors.New("cooldown must not be negative")
)

// ValidationError pins a rejected input to the field that caused it.
// Suggestion, when set, is a corrected value the author likely meant.
type ValidationError struct {
	Field      string
	Reason     string
	Suggestion string
	Err        error
}

func (e *ValidationError) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (suggestion: %q)", e.Field, msg, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Field, msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}
