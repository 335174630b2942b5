// Package scanner re-derives recently missed events. On a fixed interval it
// lists each opted-in tenant's events from a trailing lookback window and
// hands them to the engine as scan-sourced events. The engine's ledger claim
// makes overlapping windows, concurrent passes and the live path safe
// without any locking here.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/thread-commands/internal/clock"
	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/engine"
)

// ErrLookbackTooShort is returned by New when the lookback does not exceed
// the interval, which would leave gaps between passes.
var ErrLookbackTooShort = errors.New("scanner: lookback must exceed interval")

// EventSource lists a tenant's events created at or after since.
type EventSource interface {
	RecentEvents(ctx context.Context, tenantID string, since time.Time) ([]domain.EventContext, error)
}

// TenantLister returns the tenants that opted in to scanning.
type TenantLister interface {
	ListScanTenants(ctx context.Context) ([]string, error)
}

// Handler processes one event; engine.Engine implements it.
type Handler interface {
	HandleEvent(ctx context.Context, ev domain.EventContext, source domain.Source) (engine.Result, error)
}

// Options configures a Scanner.
type Options struct {
	Interval      time.Duration // default 10m
	Lookback      time.Duration // default 15m
	TenantTimeout time.Duration // default 2m
	Parallelism   int           // tenants scanned at once, default 4
	Clock         clock.Clock
}

// TenantReport summarizes one tenant's pass.
type TenantReport struct {
	TenantID   string         `json:"tenant_id"`
	Listed     int            `json:"listed"`
	Claimed    int            `json:"claimed"`
	Duplicates int            `json:"duplicates"`
	Errors     int            `json:"errors"`
	Outcomes   map[string]int `json:"outcomes,omitempty"`
	Err        string         `json:"error,omitempty"`
	Took       time.Duration  `json:"took_ns"`
}

// Report summarizes a full pass.
type Report struct {
	Started time.Time      `json:"started"`
	Since   time.Time      `json:"since"`
	Tenants []TenantReport `json:"tenants"`
	Failed  int            `json:"failed_tenants"`
}

// Scanner is safe for concurrent use; ScanOnce may overlap Run.
type Scanner struct {
	src     EventSource
	tenants TenantLister
	handler Handler
	opts    Options
	log     zerolog.Logger
}

var (
	scanPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threadcmd",
			Subsystem: "scanner",
			Name:      "tenant_passes_total",
			Help:      "Per-tenant scan passes by outcome (ok, error).",
		},
		[]string{"outcome"},
	)
	scanEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threadcmd",
			Subsystem: "scanner",
			Name:      "events_total",
			Help:      "Listed events by result (claimed, duplicate, error).",
		},
		[]string{"result"},
	)
	scanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "threadcmd",
		Subsystem: "scanner",
		Name:      "pass_duration_seconds",
		Help:      "Wall time of a full scan pass.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(scanPasses, scanEvents, scanDuration)
}

// New validates opts and returns a Scanner.
func New(src EventSource, tenants TenantLister, h Handler, opts Options) (*Scanner, error) {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Minute
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 15 * time.Minute
	}
	if opts.Lookback <= opts.Interval {
		return nil, fmt.Errorf("%w: lookback %s, interval %s", ErrLookbackTooShort, opts.Lookback, opts.Interval)
	}
	if opts.TenantTimeout <= 0 {
		opts.TenantTimeout = 2 * time.Minute
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Scanner{
		src:     src,
		tenants: tenants,
		handler: h,
		opts:    opts,
		log:     log.With().Str("component", "scanner").Logger(),
	}, nil
}

// Run scans every interval until ctx is done. Passes never overlap within
// one Run loop.
func (s *Scanner) Run(ctx context.Context) {
	t := time.NewTicker(s.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.ScanOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn().Err(err).Msg("scan pass failed")
			}
		}
	}
}

// ScanOnce runs one pass over every opted-in tenant. A tenant whose listing
// fails is reported and skipped; the others still run. The error is non-nil
// only when the tenant list itself is unavailable.
func (s *Scanner) ScanOnce(ctx context.Context) (Report, error) {
	start := s.opts.Clock.Now()
	rep := Report{Started: start, Since: start.Add(-s.opts.Lookback)}
	defer func() { scanDuration.Observe(time.Since(start).Seconds()) }()

	ids, err := s.tenants.ListScanTenants(ctx)
	if err != nil {
		return rep, fmt.Errorf("scanner: list tenants: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)
	for _, id := range ids {
		g.Go(func() error {
			tr := s.scanTenant(gctx, id, rep.Since)
			mu.Lock()
			rep.Tenants = append(rep.Tenants, tr)
			if tr.Err != "" {
				rep.Failed++
			}
			mu.Unlock()
			// Tenant failures stay in the report so siblings keep running.
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(rep.Tenants, func(i, j int) bool { return rep.Tenants[i].TenantID < rep.Tenants[j].TenantID })
	s.log.Info().Int("tenants", len(ids)).Int("failed", rep.Failed).Dur("took", time.Since(start)).Msg("scan pass complete")
	return rep, ctx.Err()
}

// ScanTenant runs one pass for a single tenant.
func (s *Scanner) ScanTenant(ctx context.Context, tenantID string) TenantReport {
	return s.scanTenant(ctx, tenantID, s.opts.Clock.Now().Add(-s.opts.Lookback))
}

func (s *Scanner) scanTenant(ctx context.Context, tenantID string, since time.Time) TenantReport {
	start := time.Now()
	tr := TenantReport{TenantID: tenantID, Outcomes: map[string]int{}}
	lg := s.log.With().Str("tenant", tenantID).Logger()

	tctx, cancel := context.WithTimeout(ctx, s.opts.TenantTimeout)
	defer cancel()

	events, err := s.src.RecentEvents(tctx, tenantID, since)
	if err != nil {
		tr.Err = err.Error()
		tr.Took = time.Since(start)
		scanPasses.WithLabelValues("error").Inc()
		lg.Warn().Err(err).Msg("listing failed, tenant skipped until next pass")
		return tr
	}
	tr.Listed = len(events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })

	for _, ev := range events {
		if tctx.Err() != nil {
			tr.Err = tctx.Err().Error()
			break
		}
		if ev.TenantID == "" {
			ev.TenantID = tenantID
		}
		res, err := s.handler.HandleEvent(tctx, ev, domain.SourceScan)
		switch {
		case err != nil:
			tr.Errors++
			scanEvents.WithLabelValues("error").Inc()
			lg.Warn().Err(err).Str("event", ev.EventID).Msg("event claim failed")
		case res.Duplicate:
			tr.Duplicates++
			scanEvents.WithLabelValues("duplicate").Inc()
		default:
			tr.Claimed++
			tr.Outcomes[string(res.Outcome)]++
			scanEvents.WithLabelValues("claimed").Inc()
		}
	}
	tr.Took = time.Since(start)
	if tr.Err != "" {
		scanPasses.WithLabelValues("error").Inc()
	} else {
		scanPasses.WithLabelValues("ok").Inc()
	}
	lg.Debug().Int("listed", tr.Listed).Int("claimed", tr.Claimed).Int("duplicates", tr.Duplicates).Msg("tenant scanned")
	return tr
}
