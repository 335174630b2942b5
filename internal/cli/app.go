package cli

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/thread-commands/internal/cache"
	"github.com/tbourn/thread-commands/internal/clock"
	"github.com/tbourn/thread-commands/internal/config"
	"github.com/tbourn/thread-commands/internal/engine"
	"github.com/tbourn/thread-commands/internal/gateway"
	"github.com/tbourn/thread-commands/internal/http/handlers"
	"github.com/tbourn/thread-commands/internal/ratelimit"
	"github.com/tbourn/thread-commands/internal/repo"
	"github.com/tbourn/thread-commands/internal/resolver"
	"github.com/tbourn/thread-commands/internal/scanner"
	"github.com/tbourn/thread-commands/internal/services"
	"github.com/tbourn/thread-commands/internal/stats"
	"github.com/tbourn/thread-commands/internal/sweeper"
)

// ErrNoGateway is returned by commands that need an event source when
// GATEWAY_URL is unset.
var ErrNoGateway = errors.New("cli: GATEWAY_URL is not configured")

// app is the wired object graph shared by the commands.
type app struct {
	cfg      config.Config
	db       *gorm.DB
	store    *repo.Store
	resolver *resolver.Resolver
	limiter  *ratelimit.Limiter
	usage    *stats.Buffer
	engine   *engine.Engine
	sweeper  *sweeper.Sweeper

	// scanner is nil without a gateway.
	scanner *scanner.Scanner

	rules   *services.RuleService
	configs *services.ConfigService

	closers []func() error
}

// newApp opens the database, migrates it and wires every component.
func newApp(cfg config.Config) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if a.db, err = openDB(cfg); err != nil {
		return a, err
	}
	a.closers = append(a.closers, func() error {
		sqlDB, err := a.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	a.store = repo.NewStore(a.db)

	if a.resolver, err = resolver.New(a.store, resolverOptions(cfg.Cache)); err != nil {
		return a, fmt.Errorf("resolver: %w", err)
	}

	backend, err := a.limiterBackend()
	if err != nil {
		return a, err
	}
	a.limiter = ratelimit.New(backend, clock.Real{})

	a.usage = stats.NewBuffer(a.store, stats.Options{
		Interval:   cfg.Stats.FlushInterval,
		MaxPending: cfg.Stats.MaxPending,
	})

	var disp engine.Dispatcher = gateway.NewLogDispatcher()
	var client *gateway.Client
	if cfg.Gateway.URL != "" {
		if client, err = gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Token, cfg.Gateway.Timeout); err != nil {
			return a, err
		}
		disp = client
	} else {
		log.Warn().Msg("GATEWAY_URL unset: actions are logged, not executed, and scanning is off")
	}

	a.engine = engine.New(a.resolver, a.limiter, disp, a.store, a.usage, engine.Options{
		HistoricalThreshold: cfg.Scanner.HistoricalThreshold,
	})

	if client != nil {
		a.scanner, err = scanner.New(client, a.store, a.engine, scanner.Options{
			Interval:      cfg.Scanner.Interval,
			Lookback:      cfg.Scanner.Lookback,
			TenantTimeout: cfg.Scanner.TenantTimeout,
			Parallelism:   cfg.Scanner.Parallelism,
		})
		if err != nil {
			return a, err
		}
	}

	a.sweeper = sweeper.New(a.store, a.resolver, a.limiter, sweeper.Options{
		Interval:           cfg.Retention.SweepInterval,
		ProcessedRetention: cfg.Retention.ProcessedRetention,
	})

	a.rules = &services.RuleService{
		DB:             a.db,
		Cache:          a.resolver,
		Limits:         services.DefaultLimits(),
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
	a.configs = &services.ConfigService{DB: a.db, Cache: a.resolver}
	return a, nil
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (a *app) limiterBackend() (ratelimit.Backend, error) {
	switch a.cfg.RateLimit.Backend {
	case "store":
		return ratelimit.NewStoreBackend(a.store), nil
	case "redis":
		client, err := ratelimit.NewRedisClient(a.cfg.RateLimit.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return ratelimit.NewRedisBackend(client, a.cfg.RateLimit.RedisPrefix), nil
	default:
		return ratelimit.NewMemoryBackend(), nil
	}
}

func resolverOptions(c config.CacheConfig) resolver.Options {
	tier := func(t config.TierCache) cache.Options {
		return cache.Options{Capacity: t.Capacity, TTL: t.TTL}
	}
	return resolver.Options{
		Thread:   tier(c.Thread),
		Channel:  tier(c.Channel),
		Category: tier(c.Category),
		Server:   tier(c.Server),
		Config:   tier(c.Config),
	}
}

// deps exposes the graph to the HTTP layer. The scanner is only set when
// present so the handler sees a nil interface, not a typed nil.
func (a *app) deps() handlers.Deps {
	d := handlers.Deps{
		Rules:    a.rules,
		Configs:  a.configs,
		Events:   a.engine,
		Resolver: a.resolver,
	}
	if a.scanner != nil {
		d.Scanner = a.scanner
	}
	return d
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
