package handlers

import (
	"context"

	"github.com/tbourn/thread-commands/internal/cache"
	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/engine"
	"github.com/tbourn/thread-commands/internal/resolver"
	"github.com/tbourn/thread-commands/internal/scanner"
	"github.com/tbourn/thread-commands/internal/services"
)

//
// Service contracts (context-aware)
//

// RuleService authors rules. Every mutation is visible to the resolver when
// it returns.
type RuleService interface {
	CreateRule(ctx context.Context, tenantID, actorID, key string, in services.RuleInput) (*domain.Rule, bool, error)
	UpdateRule(ctx context.Context, tenantID string, id int64, in services.RuleInput) (*domain.Rule, error)
	DeleteRule(ctx context.Context, tenantID string, id int64) error
	GetRule(ctx context.Context, tenantID string, id int64) (*domain.Rule, error)
	ListRules(ctx context.Context, tenantID string, scope domain.Scope) ([]domain.Rule, error)
	CreateDefaultRule(ctx context.Context, tenantID, actorID string) (*domain.Rule, error)
	ForgetTarget(scope domain.Scope, target string) error
	Usage(ctx context.Context, tenantID string, id int64, limit int) ([]domain.RuleUsageStat, error)
}

// ConfigService reads and patches per-tenant server configuration.
type ConfigService interface {
	GetServerConfig(ctx context.Context, tenantID string) (*domain.ServerConfig, error)
	SetServerConfig(ctx context.Context, tenantID string, p services.ServerConfigPatch) (*domain.ServerConfig, error)
}

// EventHandler runs one event through the engine.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev domain.EventContext, source domain.Source) (engine.Result, error)
}

// Scanner triggers reconciliation passes on demand.
type Scanner interface {
	ScanOnce(ctx context.Context) (scanner.Report, error)
	ScanTenant(ctx context.Context, tenantID string) scanner.TenantReport
}

// Resolver answers dry-run lookups and reports cache statistics.
type Resolver interface {
	Resolve(ctx context.Context, ev domain.EventContext) (*resolver.Match, error)
	Stats() map[string]cache.Snapshot
}

//
// Handler wiring
//

// Deps groups what the handlers consume. Scanner may be nil when scanning is
// disabled; the scan endpoints then answer 503.
type Deps struct {
	Rules    RuleService
	Configs  ConfigService
	Events   EventHandler
	Scanner  Scanner
	Resolver Resolver
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	rules    RuleService
	configs  ConfigService
	events   EventHandler
	scan     Scanner
	resolver Resolver
}

// New returns Handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		rules:    d.Rules,
		configs:  d.Configs,
		events:   d.Events,
		scan:     d.Scanner,
		resolver: d.Resolver,
	}
}
