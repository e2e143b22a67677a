// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, database paths, HTTP rate limiting, the scheduler and metrics
// refresher, the outbound X API client, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-post-scheduler")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SchedulerConfig controls the publish loop.
type SchedulerConfig struct {
	Enabled        bool          // SCHEDULER_ENABLED: run the in-process cron trigger
	Spec           string        // SCHEDULER_SPEC: robfig/cron spec, e.g. "@every 1m"
	SimulationMode bool          // SIMULATION_MODE: default when no setting row exists
	ClaimLease     time.Duration // CLAIM_LEASE: age after which a publish claim is abandoned
}

// MetricsConfig controls the metrics refresher and its outbound budget.
type MetricsConfig struct {
	Enabled     bool          // METRICS_REFRESH_ENABLED
	Spec        string        // METRICS_REFRESH_SPEC, e.g. "@every 15m"
	Lookback    time.Duration // METRICS_LOOKBACK: only posts published within this window
	Window      time.Duration // METRICS_WINDOW: limiter window
	MaxRequests int           // METRICS_MAX_REQUESTS: limiter budget per window
}

// PublisherConfig configures the X API client.
type PublisherConfig struct {
	BaseURL          string        // X_API_BASE_URL
	Timeout          time.Duration // X_API_TIMEOUT: per call
	BreakerFailures  int           // X_API_BREAKER_FAILURES: consecutive failures before opening
	BreakerOpenFor   time.Duration // X_API_BREAKER_OPEN_FOR: time spent open before half-open
	BreakerResetTick time.Duration // X_API_BREAKER_INTERVAL: closed-state count reset
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

	// App
	DBPath     string   // SQLite path
	CronSecret string   // bearer token required on /cron/* when set
	AdminIDs   []string // ADMIN_USER_IDS: users allowed to read and delete feedback

	// Domain
	Scheduler SchedulerConfig
	Metrics   MetricsConfig
	Publisher PublisherConfig

	// Rate limiting
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

		// App
		DBPath:     getenv("DB_PATH", "app.db"),
		CronSecret: getenv("CRON_SECRET", ""),
		AdminIDs:   splitCSV(getenv("ADMIN_USER_IDS", "")),

		// Domain
		Scheduler: SchedulerConfig{
			Enabled:        getbool("SCHEDULER_ENABLED", true),
			Spec:           getenv("SCHEDULER_SPEC", "@every 1m"),
			SimulationMode: getbool("SIMULATION_MODE", true),
			ClaimLease:     getdur("CLAIM_LEASE", 5*time.Minute),
		},
		Metrics: MetricsConfig{
			Enabled:     getbool("METRICS_REFRESH_ENABLED", true),
			Spec:        getenv("METRICS_REFRESH_SPEC", "@every 15m"),
			Lookback:    getdur("METRICS_LOOKBACK", 30*24*time.Hour),
			Window:      getdur("METRICS_WINDOW", 15*time.Minute),
			MaxRequests: getint("METRICS_MAX_REQUESTS", 20),
		},
		Publisher: PublisherConfig{
			BaseURL:          strings.TrimRight(getenv("X_API_BASE_URL", "https://api.twitter.com/2"), "/"),
			Timeout:          getdur("X_API_TIMEOUT", 15*time.Second),
			BreakerFailures:  getint("X_API_BREAKER_FAILURES", 5),
			BreakerOpenFor:   getdur("X_API_BREAKER_OPEN_FOR", 30*time.Second),
			BreakerResetTick: getdur("X_API_BREAKER_INTERVAL", 60*time.Second),
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
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-post-scheduler"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
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
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Scheduler.Spec) == "" || strings.TrimSpace(cfg.Metrics.Spec) == "" {
		return cfg, errors.New("SCHEDULER_SPEC and METRICS_REFRESH_SPEC must not be empty")
	}
	if cfg.Scheduler.ClaimLease <= 0 {
		return cfg, errors.New("CLAIM_LEASE must be > 0")
	}
	if cfg.Metrics.Lookback <= 0 || cfg.Metrics.Window <= 0 {
		return cfg, errors.New("METRICS_LOOKBACK and METRICS_WINDOW must be > 0")
	}
	if cfg.Metrics.MaxRequests < 1 {
		return cfg, errors.New("METRICS_MAX_REQUESTS must be >= 1")
	}
	if cfg.Publisher.BaseURL == "" {
		return cfg, errors.New("X_API_BASE_URL must not be empty")
	}
	if cfg.Publisher.Timeout <= 0 {
		return cfg, errors.New("X_API_TIMEOUT must be > 0")
	}
	if cfg.Scheduler.ClaimLease <= cfg.Publisher.Timeout {
		return cfg, errors.New("CLAIM_LEASE must exceed X_API_TIMEOUT")
	}
	if cfg.Publisher.BreakerFailures < 1 {
		return cfg, errors.New("X_API_BREAKER_FAILURES must be >= 1")
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
	return cfg, nil
}

// ---- helpers (no external deps) ----

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
