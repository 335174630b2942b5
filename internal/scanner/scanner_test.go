package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/thread-commands/internal/clock"
	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/engine"
	"github.com/tbourn/thread-commands/internal/ratelimit"
	"github.com/tbourn/thread-commands/internal/repo"
	"github.com/tbourn/thread-commands/internal/resolver"
)

var now = time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu     sync.Mutex
	events map[string][]domain.EventContext
	fail   map[string]error
	sinces []time.Time
}

func (f *fakeSource) RecentEvents(_ context.Context, tenantID string, since time.Time) ([]domain.EventContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinces = append(f.sinces, since)
	if err := f.fail[tenantID]; err != nil {
		return nil, err
	}
	var out []domain.EventContext
	for _, ev := range f.events[tenantID] {
		if !ev.CreatedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakeTenants struct {
	ids []string
	err error
}

func (f fakeTenants) ListScanTenants(context.Context) ([]string, error) { return f.ids, f.err }

// dedupHandler claims ids like the ledger does.
type dedupHandler struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (h *dedupHandler) HandleEvent(_ context.Context, ev domain.EventContext, _ domain.Source) (engine.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seen == nil {
		h.seen = map[string]bool{}
	}
	if h.seen[ev.EventID] {
		return engine.Result{EventID: ev.EventID, Duplicate: true}, nil
	}
	h.seen[ev.EventID] = true
	return engine.Result{EventID: ev.EventID, Outcome: domain.OutcomeNoMatch}, nil
}

func evAt(id, tenant string, at time.Time) domain.EventContext {
	return domain.EventContext{EventID: id, TenantID: tenant, ContainerID: "c1", ActorID: "u1", Text: "ping", CreatedAt: at}
}

func TestNew_LookbackMustExceedInterval(t *testing.T) {
	_, err := New(&fakeSource{}, fakeTenants{}, &dedupHandler{}, Options{Interval: 10 * time.Minute, Lookback: 10 * time.Minute})
	assert.ErrorIs(t, err, ErrLookbackTooShort)

	s, err := New(&fakeSource{}, fakeTenants{}, &dedupHandler{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, s.opts.Lookback)
}

func TestScanOnce_UsesLookbackWindow(t *testing.T) {
	src := &fakeSource{events: map[string][]domain.EventContext{
		"a": {evAt("old", "a", now.Add(-20*time.Minute)), evAt("new", "a", now.Add(-time.Minute))},
	}}
	s, err := New(src, fakeTenants{ids: []string{"a"}}, &dedupHandler{}, Options{Clock: clock.NewFake(now)})
	require.NoError(t, err)

	rep, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Tenants, 1)
	assert.Equal(t, 1, rep.Tenants[0].Listed)
	assert.Equal(t, now.Add(-15*time.Minute), src.sinces[0])
}

func TestScanOnce_OverlappingPassesClaimOnce(t *testing.T) {
	src := &fakeSource{events: map[string][]domain.EventContext{
		"a": {evAt("e1", "a", now.Add(-time.Minute)), evAt("e2", "a", now.Add(-2*time.Minute))},
	}}
	h := &dedupHandler{}
	s, err := New(src, fakeTenants{ids: []string{"a"}}, h, Options{Clock: clock.NewFake(now)})
	require.NoError(t, err)

	first, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	second, err := s.ScanOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, first.Tenants[0].Claimed)
	assert.Equal(t, 0, second.Tenants[0].Claimed)
	assert.Equal(t, 2, second.Tenants[0].Duplicates)
}

func TestScanOnce_TenantFailureDoesNotStallOthers(t *testing.T) {
	src := &fakeSource{
		events: map[string][]domain.EventContext{
			"a": {evAt("a1", "a", now)},
			"c": {evAt("c1", "c", now)},
		},
		fail: map[string]error{"b": errors.New("gateway 502")},
	}
	s, err := New(src, fakeTenants{ids: []string{"c", "b", "a"}}, &dedupHandler{}, Options{Clock: clock.NewFake(now), Parallelism: 2})
	require.NoError(t, err)

	rep, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Tenants, 3)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, "a", rep.Tenants[0].TenantID)
	assert.Equal(t, 1, rep.Tenants[0].Claimed)
	assert.Equal(t, "gateway 502", rep.Tenants[1].Err)
	assert.Equal(t, 1, rep.Tenants[2].Claimed)
}

func TestScanOnce_TenantListError(t *testing.T) {
	s, err := New(&fakeSource{}, fakeTenants{err: errors.New("db down")}, &dedupHandler{}, Options{})
	require.NoError(t, err)
	_, err = s.ScanOnce(context.Background())
	assert.Error(t, err)
}

func TestScanTenant_PerTenantTimeout(t *testing.T) {
	block := &blockingSource{}
	s, err := New(block, fakeTenants{}, &dedupHandler{}, Options{TenantTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	tr := s.ScanTenant(context.Background(), "slow")
	assert.Contains(t, tr.Err, context.DeadlineExceeded.Error())
}

type blockingSource struct{}

func (blockingSource) RecentEvents(ctx context.Context, _ string, _ time.Time) ([]domain.EventContext, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// End to end over the real store: two overlapping scans after the live path
// already handled one event.

type countingDispatcher struct {
	mu    sync.Mutex
	calls []engine.Target
}

func (d *countingDispatcher) Execute(_ context.Context, _ domain.ActionKind, t engine.Target, _ engine.Params) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, t)
	return true, nil
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	// Shared-cache SQLite reports table locks instead of waiting.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestScan_IdempotentOverStore(t *testing.T) {
	db := newDB(t)
	store := repo.NewStore(db)
	ctx := context.Background()
	fc := clock.NewFake(now)

	zero := 0
	r := &domain.Rule{
		TenantID: "T", Scope: domain.ScopeServer, Action: domain.ActionReply, ReplyText: "pong", Enabled: true,
		Cooldowns: domain.Cooldowns{UserReply: &zero, ThreadReply: &zero},
		Triggers:  []domain.Trigger{{Text: "ping", Mode: domain.MatchExact, Enabled: true}},
	}
	require.NoError(t, repo.CreateRule(ctx, db, r))
	_, err := store.LoadServerConfig(ctx, "T")
	require.NoError(t, err)

	res, err := resolver.New(store, resolver.DefaultOptions())
	require.NoError(t, err)
	disp := &countingDispatcher{}
	eng := engine.New(res, ratelimit.New(ratelimit.NewMemoryBackend(), fc), disp, store, nil, engine.Options{Clock: fc})

	live := evAt("e1", "T", now.Add(-30*time.Second))
	_, err = eng.HandleEvent(ctx, live, domain.SourceLive)
	require.NoError(t, err)

	src := &fakeSource{events: map[string][]domain.EventContext{
		"T": {live, evAt("e2", "T", now.Add(-time.Minute))},
	}}
	sc, err := New(src, store, eng, Options{Clock: fc})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := sc.ScanOnce(ctx)
		require.NoError(t, err)
	}

	assert.Len(t, disp.calls, 2, "one dispatch per event id")
	n, err := repo.CountProcessed(ctx, db, "T")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rec, err := repo.GetProcessed(ctx, db, "e2")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceScan, rec.Source)
	assert.Equal(t, domain.OutcomeDispatched, rec.Status)
}

func TestScan_HistoricalEventSuppressed(t *testing.T) {
	src := &fakeSource{events: map[string][]domain.EventContext{
		"T": {evAt("old", "T", now.Add(-12*time.Minute))},
	}}
	fc := clock.NewFake(now)
	zero := 0
	r := &domain.Rule{
		ID: 1, TenantID: "T", Scope: domain.ScopeServer, Action: domain.ActionReply, ReplyText: "pong", Enabled: true,
		Cooldowns: domain.Cooldowns{UserReply: &zero, ThreadReply: &zero},
		Triggers:  []domain.Trigger{{Text: "ping", Mode: domain.MatchExact, Enabled: true}},
	}
	db := newDB(t)
	require.NoError(t, repo.CreateRule(context.Background(), db, r))
	store := repo.NewStore(db)
	res, err := resolver.New(store, resolver.DefaultOptions())
	require.NoError(t, err)
	disp := &countingDispatcher{}
	eng := engine.New(res, ratelimit.New(ratelimit.NewMemoryBackend(), fc), disp, store, nil, engine.Options{Clock: fc})

	sc, err := New(src, fakeTenants{ids: []string{"T"}}, eng, Options{Clock: fc})
	require.NoError(t, err)
	rep, err := sc.ScanOnce(context.Background())
	require.NoError(t, err)

	assert.Empty(t, disp.calls)
	assert.Equal(t, 1, rep.Tenants[0].Outcomes[string(domain.OutcomeSuppressed)])
}
