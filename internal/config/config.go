// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database selection, authentication,
// wizard drafts, dashboard caching, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "facecloud")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig defines identity-provider settings: token signing, lifetimes of
// sessions and emailed links, and where links point.
type AuthConfig struct {
	JWTSecret     string        // JWT_SECRET (HS256 key, >= 32 bytes)
	SessionTTL    time.Duration // SESSION_TTL
	TokenTTL      time.Duration // AUTH_TOKEN_TTL (magic/recovery/invite links)
	VerifyTimeout time.Duration // AUTH_VERIFY_TIMEOUT (token exchange deadline)
	SiteURL       string        // SITE_URL (base of emailed links)
	ExposeLinks   bool          // EXPOSE_AUTH_LINKS (dev only: return links in API responses)
	RateRPS       float64       // AUTH_RATE_RPS (stricter bucket for /auth/*)
	RateBurst     int           // AUTH_RATE_BURST
}

// WizardConfig defines draft persistence and dashboard caching.
type WizardConfig struct {
	DraftDebounce   time.Duration // DRAFT_DEBOUNCE (coalescing window)
	DraftTTL        time.Duration // DRAFT_TTL (session lifetime of drafts)
	MetricsCacheTTL time.Duration // METRICS_CACHE_TTL
}

// Config is the complete service configuration.
type Config struct {
	Port              string // PORT, listen port without host
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test, anything else means release

	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // console writer instead of JSON
	SwaggerEnabled bool   // mount /swagger
	APIBasePath    string // normalized, e.g. "/api/v1"

	// Database
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN when DBDriver=postgres

	// App
	Auth   AuthConfig
	Wizard WizardConfig

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

// Lookup reports the value of a configuration key, like os.LookupEnv.
type Lookup func(key string) (string, bool)

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom builds a Config from lookup, applying defaults for unset keys.
// Values that are set but malformed are reported together with any
// validation failures.
func LoadFrom(lookup Lookup) (Config, error) {
	e := &env{lookup: lookup}
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.duration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.duration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.duration("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.duration("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.flag("LOG_PRETTY", false),
		SwaggerEnabled: e.flag("SWAGGER_ENABLED", false),
		APIBasePath:    basePath(e.str("API_BASE_PATH", "/api/v1")),

		DBDriver:    strings.ToLower(e.str("DB_DRIVER", "sqlite")),
		DBPath:      e.str("DB_PATH", "facecloud.db"),
		DatabaseURL: e.str("DATABASE_URL", ""),

		Auth: AuthConfig{
			JWTSecret:     e.str("JWT_SECRET", ""),
			SessionTTL:    e.duration("SESSION_TTL", 12*time.Hour),
			TokenTTL:      e.duration("AUTH_TOKEN_TTL", time.Hour),
			VerifyTimeout: e.duration("AUTH_VERIFY_TIMEOUT", 10*time.Second),
			SiteURL:       strings.TrimRight(e.str("SITE_URL", "http://localhost:3000"), "/"),
			ExposeLinks:   e.flag("EXPOSE_AUTH_LINKS", false),
			RateRPS:       e.number("AUTH_RATE_RPS", 0.5),
			RateBurst:     e.integer("AUTH_RATE_BURST", 5),
		},
		Wizard: WizardConfig{
			DraftDebounce:   e.duration("DRAFT_DEBOUNCE", 2*time.Second),
			DraftTTL:        e.duration("DRAFT_TTL", 12*time.Hour),
			MetricsCacheTTL: e.duration("METRICS_CACHE_TTL", 5*time.Minute),
		},

		RateRPS:   e.number("RATE_RPS", 5),
		RateBurst: e.integer("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: e.flag("ENABLE_HSTS", false),
			HSTSMaxAge: e.duration("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.flag("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.flag("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "facecloud"),
			SampleRatio: e.number("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if !slices.Contains([]string{"debug", "release", "test"}, cfg.GinMode) {
		cfg.GinMode = "release"
	}

	return cfg, errors.Join(append(e.errs, cfg.validate()...)...)
}

// validate returns one error per violated constraint.
func (cfg Config) validate() []error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(slices.Contains([]string{"debug", "info", "warn", "error", "fatal", "panic"}, cfg.LogLevel),
		"LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	check(strings.TrimSpace(cfg.Port) != "", "PORT must not be empty")
	check(cfg.ReadTimeout > 0 && cfg.ReadHeaderTimeout > 0 && cfg.WriteTimeout > 0 && cfg.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(cfg.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	switch cfg.DBDriver {
	case "sqlite":
		check(strings.TrimSpace(cfg.DBPath) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(cfg.DatabaseURL) != "", "DATABASE_URL must be set when DB_DRIVER=postgres")
	default:
		check(false, "DB_DRIVER must be one of: sqlite, postgres")
	}

	a := cfg.Auth
	check(len(a.JWTSecret) >= 32, "JWT_SECRET must be at least 32 bytes")
	check(a.SessionTTL > 0 && a.TokenTTL > 0 && a.VerifyTimeout > 0,
		"SESSION_TTL, AUTH_TOKEN_TTL and AUTH_VERIFY_TIMEOUT must be positive")
	u, err := url.Parse(a.SiteURL)
	check(err == nil && u.Scheme != "" && u.Host != "", "SITE_URL must be an absolute URL")
	check(a.RateRPS >= 0 && a.RateBurst >= 1, "AUTH_RATE_RPS must be >= 0 and AUTH_RATE_BURST >= 1")

	w := cfg.Wizard
	check(w.DraftDebounce >= 0, "DRAFT_DEBOUNCE must be >= 0")
	check(w.DraftTTL > 0 && w.MetricsCacheTTL > 0, "DRAFT_TTL and METRICS_CACHE_TTL must be positive")

	check(cfg.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(cfg.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(cfg.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(cfg.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(cfg.OTEL.SampleRatio >= 0 && cfg.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

// env reads typed values from a Lookup and records parse failures. Empty
// values count as unset.
type env struct {
	lookup Lookup
	errs   []error
}

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, v, err))
}

func (e *env) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *env) number(key string, def float64) float64 {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return f
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

func (e *env) flag(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(key, v, errors.New("not a boolean"))
	return def
}

// list splits a comma-separated value, dropping blanks.
func (e *env) list(key string) []string {
	v, ok := e.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// basePath returns p with a single leading slash and no trailing slash.
func basePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
