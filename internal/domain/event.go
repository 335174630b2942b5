package domain

import "time"

// EventContext is the normalized inbound event handed to the engine by the
// event source. ThreadID and GroupingID are empty when not applicable.
type EventContext struct {
	EventID     string    `json:"event_id"     binding:"required"`
	TenantID    string    `json:"tenant_id"    binding:"required"`
	ContainerID string    `json:"container_id" binding:"required"`
	ThreadID    string    `json:"thread_id,omitempty"`
	GroupingID  string    `json:"grouping_id,omitempty"`
	ActorID     string    `json:"actor_id"     binding:"required"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}

// Target returns the id rate limits and scans attribute to for the given
// scope of the event, or "" when the event has no such identity.
func (e EventContext) Target(s Scope) string {
	switch s {
	case ScopeThread:
		return e.ThreadID
	case ScopeChannel:
		return e.ContainerID
	case ScopeCategory:
		return e.GroupingID
	case ScopeServer:
		return e.TenantID
	}
	return ""
}

// Identity returns the id tracked for granularity g.
func (e EventContext) Identity(g Granularity) string {
	switch g {
	case PerUser:
		return e.ActorID
	case PerThread:
		if e.ThreadID != "" {
			return e.ThreadID
		}
		return e.ContainerID
	case PerChannel:
		return e.ContainerID
	}
	return ""
}
