package domain

// ActionKind is what a rule does when it matches, and also the unit of work
// handed to the dispatcher.
type ActionKind string

const (
	ActionReply         ActionKind = "reply"
	ActionGoToTop       ActionKind = "go_to_top"
	ActionReplyAndReact ActionKind = "reply_and_react"
	ActionReact         ActionKind = "react"
	ActionDelete        ActionKind = "delete"
	// ActionMention is never configured directly; dispatchers report it
	// when a reply would ping an identity.
	ActionMention ActionKind = "mention"
)

// Valid reports whether k can be configured on a rule.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionReply, ActionGoToTop, ActionReplyAndReact, ActionReact, ActionDelete:
		return true
	}
	return false
}

// Interactive reports whether the action produces something visible that
// addresses users. Interactive actions are suppressed for historical events.
func (k ActionKind) Interactive() bool {
	switch k {
	case ActionReply, ActionGoToTop, ActionReplyAndReact, ActionMention:
		return true
	}
	return false
}

// Replies reports whether the configured kind posts a reply.
func (k ActionKind) Replies() bool {
	return k == ActionReply || k == ActionGoToTop || k == ActionReplyAndReact
}

// Family maps an action to its cooldown family, or "" when the action is not
// rate limited.
func (k ActionKind) Family() Family {
	switch k {
	case ActionReply, ActionGoToTop, ActionReplyAndReact, ActionMention:
		return FamilyReply
	case ActionDelete:
		return FamilyDelete
	}
	return ""
}
