package engine

import (
	"time"

	"github.com/tbourn/thread-commands/internal/domain"
)

// Target locates the message an action applies to.
type Target struct {
	TenantID    string
	ContainerID string
	ThreadID    string
	EventID     string
	ActorID     string
}

// Params carries the action inputs taken from the rule.
type Params struct {
	ReplyText string
	Reaction  string
	// Delay postpones a delete step.
	Delay time.Duration
	// DeleteReplyAfter asks the dispatcher to remove the posted reply; zero
	// keeps it.
	DeleteReplyAfter time.Duration
}

// Step is one dispatcher call.
type Step struct {
	Kind   domain.ActionKind
	Params Params
	// Own is true for steps produced by the rule's action kind itself, as
	// opposed to the reaction and trigger deletion any rule may carry. Only
	// own steps are rate limited.
	Own bool
}

func seconds(p *int) time.Duration {
	if p == nil || *p <= 0 {
		return 0
	}
	return time.Duration(*p) * time.Second
}

// Plan expands rule into dispatcher steps, in execution order.
//
// A reaction is added whenever the rule carries a glyph, and the triggering
// message is scheduled for deletion whenever a trigger delete delay is set.
func Plan(rule *domain.Rule) []Step {
	reply := Params{ReplyText: rule.ReplyText, DeleteReplyAfter: seconds(rule.DeleteReplyAfter)}
	var steps []Step
	switch rule.Action {
	case domain.ActionReply:
		steps = append(steps, Step{Kind: domain.ActionReply, Params: reply, Own: true})
	case domain.ActionGoToTop:
		steps = append(steps, Step{Kind: domain.ActionGoToTop, Params: reply, Own: true})
	case domain.ActionReplyAndReact:
		steps = append(steps,
			Step{Kind: domain.ActionReply, Params: reply, Own: true},
			Step{Kind: domain.ActionReact, Params: Params{Reaction: rule.Reaction}, Own: true},
		)
	case domain.ActionReact:
		steps = append(steps, Step{Kind: domain.ActionReact, Params: Params{Reaction: rule.Reaction}, Own: true})
	case domain.ActionDelete:
		steps = append(steps, Step{Kind: domain.ActionDelete, Params: Params{Delay: seconds(rule.DeleteTriggerAfter)}, Own: true})
	case domain.ActionMention:
		steps = append(steps, Step{Kind: domain.ActionMention, Params: reply, Own: true})
	}

	if rule.Reaction != "" && !hasKind(steps, domain.ActionReact) {
		steps = append(steps, Step{Kind: domain.ActionReact, Params: Params{Reaction: rule.Reaction}})
	}
	if rule.DeleteTriggerAfter != nil && !hasKind(steps, domain.ActionDelete) {
		steps = append(steps, Step{Kind: domain.ActionDelete, Params: Params{Delay: seconds(rule.DeleteTriggerAfter)}})
	}
	return steps
}

func hasKind(steps []Step, k domain.ActionKind) bool {
	for _, s := range steps {
		if s.Kind == k {
			return true
		}
	}
	return false
}

// Policy decides which steps may run for an event.
type Policy int

const (
	// PolicyNormal runs every step.
	PolicyNormal Policy = iota
	// PolicyHistorical drops interactive steps; passive cleanup still runs.
	PolicyHistorical
)

func (p Policy) String() string {
	if p == PolicyHistorical {
		return "historical"
	}
	return "normal"
}

// Filter splits steps into those allowed under p and those suppressed.
func (p Policy) Filter(steps []Step) (run, suppressed []Step) {
	if p == PolicyNormal {
		return steps, nil
	}
	for _, s := range steps {
		if s.Kind.Interactive() {
			suppressed = append(suppressed, s)
			continue
		}
		run = append(run, s)
	}
	return run, suppressed
}
