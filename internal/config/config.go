// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the HTTP server,
// logging, storage, cache sizing, rate limiting, scanning, retention, gateway
// and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "thread-commands")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]

	// ScanSampleRatio applies to root spans of scanner-originated events,
	// which outnumber live traffic by the lookback factor.
	ScanSampleRatio float64       // OTEL_SCAN_SAMPLE_RATIO in [0..1]
	MaxQueueSize    int           // OTEL_BSP_MAX_QUEUE_SIZE
	BatchTimeout    time.Duration // OTEL_BSP_SCHEDULE_DELAY
}

// TierCache sizes one scoped cache.
type TierCache struct {
	Capacity int
	TTL      time.Duration
}

// CacheConfig sizes the resolver caches.
type CacheConfig struct {
	Thread   TierCache // CACHE_THREAD_SIZE / CACHE_THREAD_TTL
	Channel  TierCache
	Category TierCache
	Server   TierCache
	Config   TierCache
}

// RateLimitConfig selects where cooldown windows live.
type RateLimitConfig struct {
	Backend     string // memory|store|redis
	RedisURL    string // REDIS_URL, required for the redis backend
	RedisPrefix string
}

// ScannerConfig drives the reconciliation scanner.
type ScannerConfig struct {
	Enabled             bool
	Interval            time.Duration
	Lookback            time.Duration
	TenantTimeout       time.Duration
	Parallelism         int
	HistoricalThreshold time.Duration
}

// StatsConfig drives the usage stats buffer.
type StatsConfig struct {
	FlushInterval time.Duration
	MaxPending    int
}

// RetentionConfig drives the sweeper.
type RetentionConfig struct {
	SweepInterval      time.Duration
	ProcessedRetention time.Duration
}

// GatewayConfig points at the chat-platform gateway. An empty URL runs the
// engine with the log-only dispatcher and no scan source.
type GatewayConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBDriver string // sqlite|postgres
	DBDSN    string // file path for sqlite, URL/DSN for postgres

	// Engine
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Scanner   ScannerConfig
	Stats     StatsConfig
	Retention RetentionConfig
	Gateway   GatewayConfig

	// Edge rate limiting of the HTTP API
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBDriver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBDSN:    getenv("DB_DSN", "threadcmd.db"),

		Cache: CacheConfig{
			Thread:   tier("THREAD", 50, 5*time.Minute),
			Channel:  tier("CHANNEL", 25, 5*time.Minute),
			Category: tier("CATEGORY", 10, 5*time.Minute),
			Server:   tier("SERVER", 5, 10*time.Minute),
			Config:   tier("CONFIG", 5, 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Backend:     strings.ToLower(getenv("RATELIMIT_BACKEND", "memory")),
			RedisURL:    getenv("REDIS_URL", ""),
			RedisPrefix: getenv("REDIS_PREFIX", "threadcmd:rl"),
		},
		Scanner: ScannerConfig{
			Enabled:             getbool("SCAN_ENABLED", true),
			Interval:            getdur("SCAN_INTERVAL", 10*time.Minute),
			Lookback:            getdur("SCAN_LOOKBACK", 15*time.Minute),
			TenantTimeout:       getdur("SCAN_TENANT_TIMEOUT", 2*time.Minute),
			Parallelism:         getint("SCAN_PARALLELISM", 4),
			HistoricalThreshold: getdur("HISTORICAL_THRESHOLD", 5*time.Minute),
		},
		Stats: StatsConfig{
			FlushInterval: getdur("STATS_FLUSH_INTERVAL", 30*time.Second),
			MaxPending:    getint("STATS_MAX_PENDING", 100),
		},
		Retention: RetentionConfig{
			SweepInterval:      getdur("SWEEP_INTERVAL", 10*time.Minute),
			ProcessedRetention: getdur("PROCESSED_RETENTION", 24*time.Hour),
		},
		Gateway: GatewayConfig{
			URL:     getenv("GATEWAY_URL", ""),
			Token:   getenv("GATEWAY_TOKEN", ""),
			Timeout: getdur("GATEWAY_TIMEOUT", 10*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "thread-commands"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),

			ScanSampleRatio: getfloat("OTEL_SCAN_SAMPLE_RATIO", 0.1),
			MaxQueueSize:    getint("OTEL_BSP_MAX_QUEUE_SIZE", 4096),
			BatchTimeout:    getdur("OTEL_BSP_SCHEDULE_DELAY", 5*time.Second),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DBDriver == "postgresql" {
		cfg.DBDriver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if strings.TrimSpace(cfg.DBDSN) == "" {
		return cfg, errors.New("DB_DSN must not be empty")
	}
	for _, c := range []TierCache{cfg.Cache.Thread, cfg.Cache.Channel, cfg.Cache.Category, cfg.Cache.Server, cfg.Cache.Config} {
		if c.Capacity < 1 || c.TTL <= 0 {
			return cfg, errors.New("CACHE_*_SIZE must be >= 1 and CACHE_*_TTL > 0")
		}
	}
	switch cfg.RateLimit.Backend {
	case "memory", "store":
	case "redis":
		if strings.TrimSpace(cfg.RateLimit.RedisURL) == "" {
			return cfg, errors.New("REDIS_URL is required when RATELIMIT_BACKEND=redis")
		}
	default:
		return cfg, errors.New("RATELIMIT_BACKEND must be one of: memory, store, redis")
	}
	if cfg.Scanner.Interval <= 0 || cfg.Scanner.TenantTimeout <= 0 {
		return cfg, errors.New("SCAN_INTERVAL and SCAN_TENANT_TIMEOUT must be > 0")
	}
	if cfg.Scanner.Lookback <= cfg.Scanner.Interval {
		return cfg, errors.New("SCAN_LOOKBACK must exceed SCAN_INTERVAL")
	}
	if cfg.Scanner.Parallelism < 1 {
		return cfg, errors.New("SCAN_PARALLELISM must be >= 1")
	}
	if cfg.Scanner.HistoricalThreshold <= 0 {
		return cfg, errors.New("HISTORICAL_THRESHOLD must be > 0")
	}
	if cfg.Stats.FlushInterval <= 0 || cfg.Stats.MaxPending < 1 {
		return cfg, errors.New("STATS_FLUSH_INTERVAL must be > 0 and STATS_MAX_PENDING >= 1")
	}
	if cfg.Retention.SweepInterval <= 0 || cfg.Retention.ProcessedRetention <= 0 {
		return cfg, errors.New("SWEEP_INTERVAL and PROCESSED_RETENTION must be > 0")
	}
	if cfg.Gateway.Timeout <= 0 {
		return cfg, errors.New("GATEWAY_TIMEOUT must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	if cfg.OTEL.ScanSampleRatio < 0 || cfg.OTEL.ScanSampleRatio > 1 {
		return cfg, errors.New("OTEL_SCAN_SAMPLE_RATIO must be in [0,1]")
	}
	if cfg.OTEL.MaxQueueSize < 1 || cfg.OTEL.BatchTimeout <= 0 {
		return cfg, errors.New("OTEL_BSP_MAX_QUEUE_SIZE must be >= 1 and OTEL_BSP_SCHEDULE_DELAY > 0")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func tier(name string, size int, ttl time.Duration) TierCache {
	return TierCache{
		Capacity: getint("CACHE_"+name+"_SIZE", size),
		TTL:      getdur("CACHE_"+name+"_TTL", ttl),
	}
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
