package domain

import "time"

// Family groups actions that share cooldown windows.
type Family string

const (
	FamilyReply  Family = "reply"
	FamilyDelete Family = "delete"
)

// Granularity is the identity a cooldown window is tracked against.
type Granularity string

const (
	// PerUser keys on the acting user.
	PerUser Granularity = "user"
	// PerThread keys on the thread, or the container when there is no thread.
	PerThread Granularity = "thread"
	// PerChannel keys on the container regardless of thread.
	PerChannel Granularity = "channel"
)

// Granularities lists every granularity in check order.
var Granularities = []Granularity{PerUser, PerThread, PerChannel}

// Cooldowns holds the six independent cooldowns, in seconds. A nil field
// inherits the server default; zero disables the window.
type Cooldowns struct {
	UserReply     *int `json:"user_reply,omitempty"`
	ThreadReply   *int `json:"thread_reply,omitempty"`
	ChannelReply  *int `json:"channel_reply,omitempty"`
	UserDelete    *int `json:"user_delete,omitempty"`
	ThreadDelete  *int `json:"thread_delete,omitempty"`
	ChannelDelete *int `json:"channel_delete,omitempty"`
}

// Get returns the raw field for (family, granularity).
func (c Cooldowns) Get(f Family, g Granularity) *int {
	switch f {
	case FamilyReply:
		switch g {
		case PerUser:
			return c.UserReply
		case PerThread:
			return c.ThreadReply
		case PerChannel:
			return c.ChannelReply
		}
	case FamilyDelete:
		switch g {
		case PerUser:
			return c.UserDelete
		case PerThread:
			return c.ThreadDelete
		case PerChannel:
			return c.ChannelDelete
		}
	}
	return nil
}

// Max returns the longest configured window.
func (c Cooldowns) Max() time.Duration {
	var m int
	for _, v := range []*int{c.UserReply, c.ThreadReply, c.ChannelReply, c.UserDelete, c.ThreadDelete, c.ChannelDelete} {
		if v != nil && *v > m {
			m = *v
		}
	}
	return time.Duration(m) * time.Second
}

// Effective resolves the cooldown for (family, granularity): the rule's value,
// else the server default. Zero means no limit.
func Effective(rule, defaults Cooldowns, f Family, g Granularity) time.Duration {
	if v := rule.Get(f, g); v != nil {
		return time.Duration(*v) * time.Second
	}
	if v := defaults.Get(f, g); v != nil {
		return time.Duration(*v) * time.Second
	}
	return 0
}
