// Package stats batches rule usage counters in memory and writes them to the
// store periodically or when enough rows are pending, so the event path
// never waits on a usage write.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/thread-commands/internal/domain"
)

// Flusher persists a batch of usage increments.
type Flusher interface {
	IncrementUsage(ctx context.Context, rows []domain.RuleUsageStat) error
}

// Options configures a Buffer.
type Options struct {
	// Interval between periodic flushes. Defaults to 30s.
	Interval time.Duration
	// MaxPending triggers an early flush once this many distinct rows are
	// buffered. Defaults to 100.
	MaxPending int
	// FlushTimeout bounds one store write. Defaults to 10s.
	FlushTimeout time.Duration
}

type key struct {
	tenant string
	actor  string
	rule   int64
}

// Buffer is safe for concurrent use.
type Buffer struct {
	flusher Flusher
	opts    Options

	mu      sync.Mutex
	pending map[key]*domain.RuleUsageStat
	kick    chan struct{}
	log     zerolog.Logger
}

var flushes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "threadcmd",
		Subsystem: "stats",
		Name:      "flushes_total",
		Help:      "Usage buffer flushes by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(flushes)
}

// NewBuffer returns an empty Buffer writing through f.
func NewBuffer(f Flusher, opts Options) *Buffer {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = 100
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 10 * time.Second
	}
	return &Buffer{
		flusher: f,
		opts:    opts,
		pending: make(map[key]*domain.RuleUsageStat),
		kick:    make(chan struct{}, 1),
		log:     log.With().Str("component", "stats").Logger(),
	}
}

// Record counts one firing of ruleID by actorID.
func (b *Buffer) Record(tenantID, actorID string, ruleID int64, trigger string, at time.Time) {
	k := key{tenant: tenantID, actor: actorID, rule: ruleID}
	b.mu.Lock()
	row, ok := b.pending[k]
	if !ok {
		row = &domain.RuleUsageStat{TenantID: tenantID, ActorID: actorID, RuleID: ruleID}
		b.pending[k] = row
	}
	row.UsageCount++
	row.LastTrigger = trigger
	if at.After(row.LastUsedAt) {
		row.LastUsedAt = at
	}
	full := len(b.pending) >= b.opts.MaxPending
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered rows.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush writes every buffered row. Rows that fail to write are merged back
// into the buffer for the next attempt.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.pending
	b.pending = make(map[key]*domain.RuleUsageStat, len(batch))
	b.mu.Unlock()

	rows := make([]domain.RuleUsageStat, 0, len(batch))
	for _, r := range batch {
		rows = append(rows, *r)
	}

	fctx, cancel := context.WithTimeout(ctx, b.opts.FlushTimeout)
	defer cancel()
	if err := b.flusher.IncrementUsage(fctx, rows); err != nil {
		b.restore(batch)
		flushes.WithLabelValues("error").Inc()
		b.log.Warn().Err(err).Int("rows", len(rows)).Msg("usage flush failed, rows kept")
		return err
	}
	flushes.WithLabelValues("ok").Inc()
	b.log.Debug().Int("rows", len(rows)).Msg("usage flushed")
	return nil
}

func (b *Buffer) restore(batch map[key]*domain.RuleUsageStat) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, old := range batch {
		cur, ok := b.pending[k]
		if !ok {
			b.pending[k] = old
			continue
		}
		cur.UsageCount += old.UsageCount
		if old.LastUsedAt.After(cur.LastUsedAt) {
			cur.LastUsedAt = old.LastUsedAt
			cur.LastTrigger = old.LastTrigger
		}
	}
}

// Run flushes on every interval tick and whenever the buffer fills, until
// ctx is done; it then makes a final flush with a fresh timeout.
func (b *Buffer) Run(ctx context.Context) {
	t := time.NewTicker(b.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = b.Flush(context.WithoutCancel(ctx))
			return
		case <-t.C:
			_ = b.Flush(ctx)
		case <-b.kick:
			_ = b.Flush(ctx)
		}
	}
}
