// Package engine runs the per-event pipeline: resolve the rule, apply the
// tenant switches and the historical policy, check cooldowns, dispatch the
// action steps, and record the outcome in the processed-event ledger.
//
// The live path and the reconciliation scanner share HandleEvent. Both claim
// the event id in the ledger first; whichever claims it second does nothing.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/thread-commands/internal/clock"
	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/ratelimit"
	"github.com/tbourn/thread-commands/internal/resolver"
)

// Dispatcher performs side effects on the chat platform. It reports false
// when the action was a no-op (for example the message is already gone).
// The engine never retries a call.
type Dispatcher interface {
	Execute(ctx context.Context, kind domain.ActionKind, target Target, params Params) (bool, error)
}

// Resolver finds the rule for an event and serves tenant configuration.
type Resolver interface {
	Resolve(ctx context.Context, ev domain.EventContext) (*resolver.Match, error)
	ServerConfig(ctx context.Context, tenantID string) (*domain.ServerConfig, error)
}

// Limiter admits rule firings.
type Limiter interface {
	Allow(ctx context.Context, rule *domain.Rule, family domain.Family, ev domain.EventContext, cfg *domain.ServerConfig) (ratelimit.Decision, error)
}

// Ledger is the processed-event store.
type Ledger interface {
	InsertIfAbsent(ctx context.Context, rec *domain.ProcessedEvent) (bool, error)
	RecordOutcome(ctx context.Context, eventID string, status domain.Outcome, ruleID *int64, tier domain.Scope, detail string) error
}

// UsageRecorder counts successful firings.
type UsageRecorder interface {
	Record(tenantID, actorID string, ruleID int64, trigger string, at time.Time)
}

// Result describes what happened to one event.
type Result struct {
	EventID    string
	Outcome    domain.Outcome
	Duplicate  bool
	RuleID     *int64
	Tier       domain.Scope
	Policy     Policy
	Executed   []domain.ActionKind
	Suppressed []domain.ActionKind
	Detail     string
}

// Options configures an Engine.
type Options struct {
	// HistoricalThreshold is the event age past which the historical policy
	// applies. Defaults to 5m.
	HistoricalThreshold time.Duration
	Clock               clock.Clock
}

// Engine is safe for concurrent use.
type Engine struct {
	resolver   Resolver
	limiter    Limiter
	dispatcher Dispatcher
	ledger     Ledger
	usage      UsageRecorder
	threshold  time.Duration
	clock      clock.Clock
	log        zerolog.Logger
}

// New wires an Engine. usage may be nil.
func New(res Resolver, lim Limiter, disp Dispatcher, ledger Ledger, usage UsageRecorder, opts Options) *Engine {
	if opts.HistoricalThreshold <= 0 {
		opts.HistoricalThreshold = 5 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Engine{
		resolver:   res,
		limiter:    lim,
		dispatcher: disp,
		ledger:     ledger,
		usage:      usage,
		threshold:  opts.HistoricalThreshold,
		clock:      opts.Clock,
		log:        log.With().Str("component", "engine").Logger(),
	}
}

// HandleEvent claims ev in the ledger and, if the claim is new, processes it
// and records the outcome. A duplicate claim returns a Result with Duplicate
// set and no side effects. The error is non-nil only when the claim itself
// could not be made.
func (e *Engine) HandleEvent(ctx context.Context, ev domain.EventContext, source domain.Source) (Result, error) {
	tr := otel.Tracer("engine/Engine")
	ctx, span := tr.Start(ctx, "HandleEvent",
		trace.WithAttributes(
			attribute.String("event.id", ev.EventID),
			attribute.String("tenant.id", ev.TenantID),
			attribute.String("source", string(source)),
		),
	)
	defer span.End()

	start := e.clock.Now()
	claimed, err := e.ledger.InsertIfAbsent(ctx, &domain.ProcessedEvent{
		EventID:        ev.EventID,
		TenantID:       ev.TenantID,
		ContainerID:    ev.ContainerID,
		ThreadID:       ev.ThreadID,
		Status:         domain.OutcomePending,
		Source:         source,
		EventCreatedAt: ev.CreatedAt,
		ProcessedAt:    start,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return Result{EventID: ev.EventID}, fmt.Errorf("engine: claim %s: %w", ev.EventID, err)
	}
	if !claimed {
		e.log.Debug().Str("event", ev.EventID).Str("source", string(source)).Msg("event already processed")
		span.SetAttributes(attribute.Bool("duplicate", true))
		return Result{EventID: ev.EventID, Outcome: domain.OutcomeSkipped, Duplicate: true}, nil
	}

	res := e.Process(ctx, ev, source)
	if err := e.ledger.RecordOutcome(ctx, ev.EventID, res.Outcome, res.RuleID, res.Tier, res.Detail); err != nil {
		e.log.Warn().Err(err).Str("event", ev.EventID).Msg("record outcome failed")
	}
	eventsTotal.WithLabelValues(string(source), string(res.Outcome)).Inc()
	eventDuration.WithLabelValues(string(source)).Observe(e.clock.Now().Sub(start).Seconds())
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	return res, nil
}

// PolicyFor returns the policy for an event from source created at
// createdAt. Only events found by the scanner can be historical; a late live
// delivery keeps the normal policy. A zero time counts as fresh.
func (e *Engine) PolicyFor(source domain.Source, createdAt time.Time) Policy {
	if source != domain.SourceScan || createdAt.IsZero() {
		return PolicyNormal
	}
	if e.clock.Now().Sub(createdAt) > e.threshold {
		return PolicyHistorical
	}
	return PolicyNormal
}

// Process runs the pipeline for ev without touching the ledger.
func (e *Engine) Process(ctx context.Context, ev domain.EventContext, source domain.Source) Result {
	res := Result{EventID: ev.EventID, Policy: e.PolicyFor(source, ev.CreatedAt)}
	lg := e.log.With().Str("event", ev.EventID).Str("tenant", ev.TenantID).Logger()

	cfg, err := e.resolver.ServerConfig(ctx, ev.TenantID)
	if err != nil {
		lg.Warn().Err(err).Msg("server config unavailable")
		return res.fail(fmt.Sprintf("config: %v", err))
	}
	if !cfg.Enabled {
		res.Outcome = domain.OutcomeDisabled
		return res
	}
	if ev.ThreadID != "" && !cfg.ContainerAllowed(ev.ContainerID) {
		res.Outcome = domain.OutcomeSkipped
		res.Detail = "container not allowed"
		return res
	}

	m, err := e.resolver.Resolve(ctx, ev)
	if err != nil {
		lg.Warn().Err(err).Msg("resolve failed")
		return res.fail(fmt.Sprintf("resolve: %v", err))
	}
	if m == nil {
		res.Outcome = domain.OutcomeNoMatch
		return res
	}
	res.Tier = m.Tier
	if !m.Rule.Builtin() {
		id := m.Rule.ID
		res.RuleID = &id
	}

	run, suppressed := res.Policy.Filter(Plan(m.Rule))
	res.Suppressed = kinds(suppressed)
	if len(run) == 0 {
		res.Outcome = domain.OutcomeSuppressed
		res.Detail = "historical event: interactive action suppressed"
		return res
	}

	// Cooldowns guard the rule's own action; riders (reaction, trigger
	// cleanup) inherit its decision. A rate-limited rule does not fall back
	// to a lower tier.
	if fam := m.Rule.Action.Family(); fam != "" && gated(run, fam) {
		d, err := e.limiter.Allow(ctx, m.Rule, fam, ev, cfg)
		if err != nil {
			lg.Warn().Err(err).Msg("rate limiter unavailable")
			return res.fail(fmt.Sprintf("ratelimit: %v", err))
		}
		if !d.Allowed {
			res.Outcome = domain.OutcomeRateLimited
			return res
		}
	}

	target := Target{
		TenantID:    ev.TenantID,
		ContainerID: ev.ContainerID,
		ThreadID:    ev.ThreadID,
		EventID:     ev.EventID,
		ActorID:     ev.ActorID,
	}
	for _, s := range run {
		ok, err := e.dispatch(ctx, s, target)
		if err != nil {
			lg.Error().Err(err).Str("kind", string(s.Kind)).Int64("rule", m.Rule.ID).Msg("dispatch failed")
			res.Detail = fmt.Sprintf("%s: %v", s.Kind, err)
			if len(res.Executed) > 0 {
				res.Outcome = domain.OutcomePartial
			} else {
				res.Outcome = domain.OutcomeFailed
			}
			e.recordUsage(ev, m, res)
			return res
		}
		if ok {
			res.Executed = append(res.Executed, s.Kind)
		}
	}
	res.Outcome = domain.OutcomeDispatched
	if len(suppressed) > 0 {
		res.Detail = "historical event: interactive action suppressed"
	}
	e.recordUsage(ev, m, res)
	return res
}

func (e *Engine) dispatch(ctx context.Context, s Step, target Target) (bool, error) {
	tr := otel.Tracer("engine/Engine")
	ctx, span := tr.Start(ctx, "dispatch", trace.WithAttributes(attribute.String("action.kind", string(s.Kind))))
	defer span.End()

	ok, err := e.dispatcher.Execute(ctx, s.Kind, target, s.Params)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		dispatchTotal.WithLabelValues(string(s.Kind), "error").Inc()
	case ok:
		dispatchTotal.WithLabelValues(string(s.Kind), "ok").Inc()
	default:
		dispatchTotal.WithLabelValues(string(s.Kind), "noop").Inc()
	}
	return ok, err
}

func (e *Engine) recordUsage(ev domain.EventContext, m *resolver.Match, res Result) {
	if e.usage == nil || len(res.Executed) == 0 || ev.ActorID == "" || m.Rule.Builtin() {
		return
	}
	e.usage.Record(ev.TenantID, ev.ActorID, m.Rule.ID, m.Trigger.Text, e.clock.Now())
}

func (r Result) fail(detail string) Result {
	r.Outcome = domain.OutcomeFailed
	r.Detail = detail
	return r
}

func kinds(steps []Step) []domain.ActionKind {
	if len(steps) == 0 {
		return nil
	}
	out := make([]domain.ActionKind, len(steps))
	for i, s := range steps {
		out[i] = s.Kind
	}
	return out
}

// gated reports whether any of the rule's own steps in fam survived the
// policy.
func gated(steps []Step, fam domain.Family) bool {
	for _, s := range steps {
		if s.Own && s.Kind.Family() == fam {
			return true
		}
	}
	return false
}
