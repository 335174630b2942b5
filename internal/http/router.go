// Package httpapi wires the Gin transport to the rule engine: admin CRUD for
// rules and server configuration, live event ingest, manual scans, cache
// introspection, health, metrics and the swagger UI.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/thread-commands/internal/config"
	_ "github.com/tbourn/thread-commands/internal/docs"
	"github.com/tbourn/thread-commands/internal/http/handlers"
	"github.com/tbourn/thread-commands/internal/http/middleware"
	"github.com/tbourn/thread-commands/internal/repo"
)

// maxBodyBytes caps request bodies; the largest legitimate payload is a rule
// with ten triggers and a 2000-rune reply.
const maxBodyBytes = 256 << 10

var (
	allowMethods  = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	allowHeaders  = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderActorID, middleware.HeaderIdempotencyKey}
	exposeHeaders = []string{"X-Request-ID", middleware.HeaderIdempotencyReplayed, "Retry-After", "Content-Length"}
)

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID, Actor
//  3. Logger, Recovery
//  4. Body size limit, gzip
//  5. Metrics
//  6. Idempotency validator (before the rate limiter so replays bypass it)
//  7. Rate limiter
//  8. CORS, security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps handlers.Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID(), middleware.Actor())
	r.Use(middleware.Logger(), middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		idempotencyLookup(db),
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByActorOrIP())
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(db))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps)
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/events", h.IngestEvent)
		api.POST("/scan", h.ScanAll)
		api.GET("/cache/stats", h.CacheStats)
		api.DELETE("/cache/:scope/:target", h.ForgetTarget)

		tenant := api.Group("/tenants/:tenant")
		tenant.GET("/rules", h.ListRules)
		tenant.POST("/rules", h.CreateRule)
		tenant.POST("/rules/default", h.CreateDefaultRule)
		tenant.GET("/rules/:id", h.GetRule)
		tenant.PUT("/rules/:id", h.UpdateRule)
		tenant.DELETE("/rules/:id", h.DeleteRule)
		tenant.GET("/rules/:id/usage", h.RuleUsage)

		tenant.GET("/config", h.GetServerConfig)
		tenant.PATCH("/config", h.PatchServerConfig)

		tenant.POST("/resolve", h.ResolveEvent)
		tenant.POST("/scan", h.ScanTenant)
	}
}

// idempotencyLookup reports whether a live record exists for the key. A
// missing record is not an error.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, tenantID, actorID, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, tenantID, actorID, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return rec != nil, err
	}
}

// corsMiddleware allows every origin when none is configured. Otherwise the
// allowlist origin is echoed explicitly as well, so responses that skip the
// cors handler (404s, 429s) still carry it.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     allowMethods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// health pings the database; a failed ping answers 503.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// limitBody caps the request body at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
