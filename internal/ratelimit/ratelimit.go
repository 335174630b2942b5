// Package ratelimit enforces per-rule cooldown windows. A rule firing for an
// event is checked against up to three windows (per user, per thread, per
// channel) for the action's family; it is admitted only when none of them
// is open, and admission stamps all of them in one atomic step.
package ratelimit

import (
	"context"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/thread-commands/internal/clock"
	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/repo"
)

// Backend stores last-fired timestamps.
//
// Admit must check every window and, only if all are closed, stamp every key
// with now, as one atomic step with respect to other Admit calls on any of
// the same keys.
type Backend interface {
	Admit(ctx context.Context, windows []repo.Window, now time.Time) (bool, error)
	Sweep(ctx context.Context, tenantID string, cutoff time.Time) (int64, error)
}

// Decision is the outcome of Allow.
type Decision struct {
	Allowed bool
	// Checked lists the keys that had a non-zero cooldown, in lock order.
	Checked []domain.RateLimitKey
}

var decisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "threadcmd",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Admission decisions by action family and result.",
	},
	[]string{"family", "result"},
)

var swept = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "threadcmd",
	Subsystem: "ratelimit",
	Name:      "swept_entries_total",
	Help:      "Rate-limit entries removed by the sweeper.",
})

func init() {
	prometheus.MustRegister(decisions, swept)
}

// Limiter computes the windows for a rule and delegates admission to its
// backend.
type Limiter struct {
	backend Backend
	clock   clock.Clock
	log     zerolog.Logger
}

// New returns a Limiter over backend. A nil clock means clock.Real.
func New(backend Backend, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Limiter{
		backend: backend,
		clock:   clk,
		log:     log.With().Str("component", "ratelimit").Logger(),
	}
}

// Windows returns the cooldown windows rule opens for ev in family, sorted
// by key. Granularities whose effective cooldown is zero, or whose identity
// is missing from ev, are left out.
func Windows(rule *domain.Rule, family domain.Family, ev domain.EventContext, cfg *domain.ServerConfig) []repo.Window {
	var defaults domain.Cooldowns
	if cfg != nil {
		defaults = cfg.Defaults
	}
	var out []repo.Window
	for _, g := range domain.Granularities {
		cd := domain.Effective(rule.Cooldowns, defaults, family, g)
		if cd <= 0 {
			continue
		}
		id := ev.Identity(g)
		if id == "" {
			continue
		}
		out = append(out, repo.Window{
			Key: domain.RateLimitKey{
				TenantID: ev.TenantID,
				RuleID:   rule.ID,
				Tier:     g,
				TargetID: id,
				Family:   family,
			},
			Cooldown: cd,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Allow decides whether rule may fire family for ev and, when it may, records
// the firing.
func (l *Limiter) Allow(ctx context.Context, rule *domain.Rule, family domain.Family, ev domain.EventContext, cfg *domain.ServerConfig) (Decision, error) {
	windows := Windows(rule, family, ev, cfg)
	d := Decision{Checked: make([]domain.RateLimitKey, len(windows))}
	for i, w := range windows {
		d.Checked[i] = w.Key
	}
	if len(windows) == 0 {
		d.Allowed = true
		decisions.WithLabelValues(string(family), "unlimited").Inc()
		return d, nil
	}

	ok, err := l.backend.Admit(ctx, windows, l.clock.Now())
	if err != nil {
		decisions.WithLabelValues(string(family), "error").Inc()
		return d, err
	}
	d.Allowed = ok
	if ok {
		decisions.WithLabelValues(string(family), "allowed").Inc()
	} else {
		decisions.WithLabelValues(string(family), "denied").Inc()
		l.log.Debug().Int64("rule", rule.ID).Str("family", string(family)).Str("actor", ev.ActorID).Msg("cooldown active")
	}
	return d, nil
}

// Sweep removes tenantID's entries that last fired more than horizon ago.
// Callers pass the tenant's longest configured cooldown, so no open window
// is ever dropped.
func (l *Limiter) Sweep(ctx context.Context, tenantID string, horizon time.Duration) (int64, error) {
	if horizon < 0 {
		horizon = 0
	}
	n, err := l.backend.Sweep(ctx, tenantID, l.clock.Now().Add(-horizon))
	if err != nil {
		return 0, err
	}
	swept.Add(float64(n))
	if n > 0 {
		l.log.Debug().Str("tenant", tenantID).Int64("removed", n).Msg("swept rate-limit entries")
	}
	return n, nil
}
