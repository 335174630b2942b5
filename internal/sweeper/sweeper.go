// Package sweeper bounds the engine's persistent state: it drops processed
// events past their retention, expired idempotency records, and rate-limit
// windows older than each tenant's longest cooldown.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/thread-commands/internal/clock"
	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/repo"
)

// Store is the retention side of repo.Store.
type Store interface {
	ListTenants(ctx context.Context) ([]string, error)
	MaxRuleCooldown(ctx context.Context, tenantID string) (int, error)
	DeleteOlderThan(ctx context.Context, table string, cutoff time.Time) (int64, error)
}

// Configs serves tenant configuration (the resolver's cached view).
type Configs interface {
	ServerConfig(ctx context.Context, tenantID string) (*domain.ServerConfig, error)
}

// RateLimits drops old windows; ratelimit.Limiter implements it.
type RateLimits interface {
	Sweep(ctx context.Context, tenantID string, horizon time.Duration) (int64, error)
}

// Options configures a Sweeper.
type Options struct {
	Interval           time.Duration // default 10m
	ProcessedRetention time.Duration // default 24h
	Clock              clock.Clock
}

// Report counts what one pass removed.
type Report struct {
	Processed   int64 `json:"processed"`
	Idempotency int64 `json:"idempotency"`
	RateLimits  int64 `json:"rate_limits"`
	Tenants     int   `json:"tenants"`
}

var deleted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "threadcmd",
		Subsystem: "sweeper",
		Name:      "deleted_total",
		Help:      "Rows removed by retention sweeps, by table.",
	},
	[]string{"table"},
)

func init() {
	prometheus.MustRegister(deleted)
}

// Sweeper runs retention passes.
type Sweeper struct {
	store   Store
	configs Configs
	limits  RateLimits
	opts    Options
	log     zerolog.Logger
}

// New returns a Sweeper.
func New(store Store, configs Configs, limits RateLimits, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Minute
	}
	if opts.ProcessedRetention <= 0 {
		opts.ProcessedRetention = 24 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Sweeper{
		store:   store,
		configs: configs,
		limits:  limits,
		opts:    opts,
		log:     log.With().Str("component", "sweeper").Logger(),
	}
}

// Horizon returns how long tenantID's windows must be kept: the longest
// cooldown on any of its rules or in its server defaults.
func (s *Sweeper) Horizon(ctx context.Context, tenantID string) (time.Duration, error) {
	secs, err := s.store.MaxRuleCooldown(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	h := time.Duration(secs) * time.Second
	cfg, err := s.configs.ServerConfig(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if d := cfg.Defaults.Max(); d > h {
		h = d
	}
	return h, nil
}

// SweepOnce runs one pass. Per-tenant failures are joined into the returned
// error; the pass still covers every tenant.
func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	var rep Report
	var errs []error
	now := s.opts.Clock.Now()

	n, err := s.store.DeleteOlderThan(ctx, repo.TableProcessedEvents, now.Add(-s.opts.ProcessedRetention))
	if err != nil {
		errs = append(errs, fmt.Errorf("processed events: %w", err))
	}
	rep.Processed = n

	n, err = s.store.DeleteOlderThan(ctx, repo.TableIdempotency, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("idempotency: %w", err))
	}
	rep.Idempotency = n

	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("list tenants: %w", err))
	}
	for _, id := range tenants {
		h, err := s.Horizon(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s horizon: %w", id, err))
			continue
		}
		n, err := s.limits.Sweep(ctx, id, h)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s rate limits: %w", id, err))
			continue
		}
		rep.RateLimits += n
		rep.Tenants++
	}

	deleted.WithLabelValues(repo.TableProcessedEvents).Add(float64(rep.Processed))
	deleted.WithLabelValues(repo.TableIdempotency).Add(float64(rep.Idempotency))
	deleted.WithLabelValues(repo.TableRateLimits).Add(float64(rep.RateLimits))
	s.log.Info().
		Int64("processed", rep.Processed).
		Int64("idempotency", rep.Idempotency).
		Int64("rate_limits", rep.RateLimits).
		Int("tenants", rep.Tenants).
		Msg("sweep pass complete")
	return rep, errors.Join(errs...)
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Warn().Err(err).Msg("sweep pass had errors")
			}
		}
	}
}
