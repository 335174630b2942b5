package gateway

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/engine"
)

// LogDispatcher logs each step instead of executing it. It is used when no
// gateway is configured and for dry runs.
type LogDispatcher struct {
	log zerolog.Logger
}

// NewLogDispatcher returns a LogDispatcher.
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{log: log.With().Str("component", "dispatch").Str("mode", "log").Logger()}
}

// Execute logs the step and reports it executed.
func (d *LogDispatcher) Execute(_ context.Context, kind domain.ActionKind, t engine.Target, p engine.Params) (bool, error) {
	d.log.Info().
		Str("kind", string(kind)).
		Str("tenant", t.TenantID).
		Str("container", t.ContainerID).
		Str("thread", t.ThreadID).
		Str("event_id", t.EventID).
		Str("reply", p.ReplyText).
		Str("reaction", p.Reaction).
		Dur("delay", p.Delay).
		Msg("would dispatch")
	return true, nil
}
