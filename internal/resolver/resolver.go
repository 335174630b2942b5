// Package resolver picks the rule that answers an event. It owns one
// ScopedCache per scope tier plus one for server configurations, and walks
// the tiers from the most specific to the broadest.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/thread-commands/internal/cache"
	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/matcher"
)

// ErrUnknownScope is returned for a scope outside domain.Precedence.
var ErrUnknownScope = errors.New("resolver: unknown scope")

// Source is the read side of the rule store.
type Source interface {
	LoadRules(ctx context.Context, scope domain.Scope, target string) ([]domain.Rule, error)
	LoadServerConfig(ctx context.Context, tenantID string) (*domain.ServerConfig, error)
}

// Match is a resolved rule together with the trigger and tier that hit.
type Match struct {
	Rule    *domain.Rule
	Trigger *domain.Trigger
	Tier    domain.Scope
}

// Options sizes the caches. Zero values fall back to cache defaults.
type Options struct {
	Thread   cache.Options
	Channel  cache.Options
	Category cache.Options
	Server   cache.Options
	Config   cache.Options
}

// DefaultOptions returns the production sizing.
func DefaultOptions() Options {
	return Options{
		Thread:   cache.Options{Capacity: 50, TTL: 5 * time.Minute},
		Channel:  cache.Options{Capacity: 25, TTL: 5 * time.Minute},
		Category: cache.Options{Capacity: 10, TTL: 5 * time.Minute},
		Server:   cache.Options{Capacity: 5, TTL: 10 * time.Minute},
		Config:   cache.Options{Capacity: 5, TTL: 10 * time.Minute},
	}
}

type ruleCache = cache.ScopedCache[string, []*domain.Rule]

// Resolver is safe for concurrent use.
type Resolver struct {
	src     Source
	tiers   map[domain.Scope]*ruleCache
	configs *cache.ScopedCache[string, *domain.ServerConfig]
	log     zerolog.Logger
}

var resolutions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "threadcmd",
		Subsystem: "resolver",
		Name:      "resolutions_total",
		Help:      "Resolve calls by winning tier (none when nothing matched).",
	},
	[]string{"tier"},
)

func init() {
	prometheus.MustRegister(resolutions)
}

// New builds a Resolver reading through src.
func New(src Source, opts Options) (*Resolver, error) {
	r := &Resolver{
		src:   src,
		tiers: make(map[domain.Scope]*ruleCache, len(domain.Precedence)),
		log:   log.With().Str("component", "resolver").Logger(),
	}

	cfgOpts := opts.Config
	cfgOpts.Name = "server_config"
	configs, err := cache.New[string, *domain.ServerConfig](cfgOpts, src.LoadServerConfig)
	if err != nil {
		return nil, err
	}
	r.configs = configs

	for scope, o := range map[domain.Scope]cache.Options{
		domain.ScopeThread:   opts.Thread,
		domain.ScopeChannel:  opts.Channel,
		domain.ScopeCategory: opts.Category,
		domain.ScopeServer:   opts.Server,
	} {
		o.Name = string(scope)
		c, err := cache.New[string, []*domain.Rule](o, r.loader(scope))
		if err != nil {
			return nil, err
		}
		r.tiers[scope] = c
	}
	return r, nil
}

// loader builds one immutable generation of rules for a tier. Regex triggers
// are compiled here, before the slice is shared.
func (r *Resolver) loader(scope domain.Scope) cache.Loader[string, []*domain.Rule] {
	return func(ctx context.Context, target string) ([]*domain.Rule, error) {
		rows, err := r.src.LoadRules(ctx, scope, target)
		if err != nil {
			return nil, err
		}
		out := make([]*domain.Rule, 0, len(rows)+1)
		for i := range rows {
			matcher.PrepareRule(&rows[i])
			out = append(out, &rows[i])
		}
		if scope == domain.ScopeServer && len(out) == 0 {
			cfg, err := r.configs.Get(ctx, target)
			if err != nil {
				return nil, err
			}
			if cfg.DefaultRuleEnabled {
				def := domain.DefaultRule(target)
				matcher.PrepareRule(def)
				out = append(out, def)
			}
		}
		return out, nil
	}
}

// Resolve returns the first match in tier order, or nil when nothing
// matches. Tiers whose id is absent from ev are skipped; the first tier with
// a hit ends the search.
func (r *Resolver) Resolve(ctx context.Context, ev domain.EventContext) (*Match, error) {
	for _, scope := range domain.Precedence {
		target := ev.Target(scope)
		if target == "" {
			continue
		}
		rules, err := r.tiers[scope].Get(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("resolve %s %s: %w", scope, target, err)
		}
		for _, rule := range rules {
			if t, ok := matcher.MatchRule(ev.Text, rule); ok {
				resolutions.WithLabelValues(string(scope)).Inc()
				return &Match{Rule: rule, Trigger: t, Tier: scope}, nil
			}
		}
	}
	resolutions.WithLabelValues("none").Inc()
	return nil, nil
}

// Rules returns the cached generation for (scope, target).
func (r *Resolver) Rules(ctx context.Context, scope domain.Scope, target string) ([]*domain.Rule, error) {
	c, ok := r.tiers[scope]
	if !ok {
		return nil, ErrUnknownScope
	}
	return c.Get(ctx, target)
}

// ServerConfig returns the cached configuration of tenantID.
func (r *Resolver) ServerConfig(ctx context.Context, tenantID string) (*domain.ServerConfig, error) {
	return r.configs.Get(ctx, tenantID)
}

// Refresh reloads (scope, target). On failure the entry is invalidated so
// readers fall through to the store.
func (r *Resolver) Refresh(ctx context.Context, scope domain.Scope, target string) error {
	c, ok := r.tiers[scope]
	if !ok {
		return ErrUnknownScope
	}
	if _, err := c.Refresh(ctx, target); err != nil {
		c.Invalidate(target)
		r.log.Warn().Err(err).Str("scope", string(scope)).Str("target", target).Msg("refresh failed, entry invalidated")
		return err
	}
	return nil
}

// Invalidate drops (scope, target) without reloading.
func (r *Resolver) Invalidate(scope domain.Scope, target string) {
	if c, ok := r.tiers[scope]; ok {
		c.Invalidate(target)
	}
}

// RefreshConfig reloads a tenant's configuration and then its server tier,
// whose default rule depends on it.
func (r *Resolver) RefreshConfig(ctx context.Context, tenantID string) error {
	if _, err := r.configs.Refresh(ctx, tenantID); err != nil {
		r.configs.Invalidate(tenantID)
		r.tiers[domain.ScopeServer].Invalidate(tenantID)
		r.log.Warn().Err(err).Str("tenant", tenantID).Msg("config refresh failed, entry invalidated")
		return err
	}
	return r.Refresh(ctx, domain.ScopeServer, tenantID)
}

// InvalidateConfig drops a tenant's configuration.
func (r *Resolver) InvalidateConfig(tenantID string) {
	r.configs.Invalidate(tenantID)
	r.tiers[domain.ScopeServer].Invalidate(tenantID)
}

// Stats reports every cache's counters keyed by cache name.
func (r *Resolver) Stats() map[string]cache.Snapshot {
	out := make(map[string]cache.Snapshot, len(r.tiers)+1)
	for _, c := range r.tiers {
		out[c.Name()] = c.Stats()
	}
	out[r.configs.Name()] = r.configs.Stats()
	return out
}
