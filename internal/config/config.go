// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage, mail delivery, the daily sending
// quota, identity verification, rate limiting, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-mail-dispatch")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SentryConfig defines error reporting settings. An empty DSN disables Sentry.
type SentryConfig struct {
	DSN         string // SENTRY_DSN
	Environment string // SENTRY_ENVIRONMENT
}

// MailConfig defines outbound delivery and quota settings.
type MailConfig struct {
	DailyLimit      int           // DAILY_EMAIL_LIMIT, accepted sends per user per day (<= 0 disables the gate)
	SenderDomain    string        // SENDER_DOMAIN, appended to the sender local part
	Provider        string        // MAIL_PROVIDER: resend|gmail|log
	ResendAPIKey    string        // RESEND_API_KEY
	ResendBaseURL   string        // RESEND_BASE_URL
	GmailCredsJSON  string        // GMAIL_CREDENTIALS_JSON, service account key with domain-wide delegation
	GmailMailbox    string        // GMAIL_MAILBOX, the mailbox impersonated for sending
	ProviderTimeout time.Duration // PROVIDER_TIMEOUT
	QuotaTimezone   string        // QUOTA_TIMEZONE, IANA name; empty means server local
}

// AuthConfig defines identity token verification settings.
type AuthConfig struct {
	GoogleClientID string // GOOGLE_CLIENT_ID; empty runs in development mode (unverified identities)
	GoogleJWKSURL  string // GOOGLE_JWKS_URL
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
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN

	// Mail
	Mail MailConfig

	// Identity
	Auth AuthConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL   OTELConfig
	Sentry SentryConfig
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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:      getenv("DB_PATH", "mail.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		// Mail
		Mail: MailConfig{
			DailyLimit:      getint("DAILY_EMAIL_LIMIT", 10),
			SenderDomain:    strings.TrimPrefix(strings.TrimSpace(getenv("SENDER_DOMAIN", "novatime.top")), "@"),
			Provider:        strings.ToLower(getenv("MAIL_PROVIDER", defaultProvider())),
			ResendAPIKey:    getenv("RESEND_API_KEY", ""),
			ResendBaseURL:   strings.TrimRight(getenv("RESEND_BASE_URL", "https://api.resend.com"), "/"),
			GmailCredsJSON:  getenv("GMAIL_CREDENTIALS_JSON", ""),
			GmailMailbox:    getenv("GMAIL_MAILBOX", ""),
			ProviderTimeout: getdur("PROVIDER_TIMEOUT", 10*time.Second),
			QuotaTimezone:   getenv("QUOTA_TIMEZONE", ""),
		},

		// Identity
		Auth: AuthConfig{
			GoogleClientID: getenv("GOOGLE_CLIENT_ID", ""),
			GoogleJWKSURL:  getenv("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs"),
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
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-mail-dispatch"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
		Sentry: SentryConfig{
			DSN:         getenv("SENTRY_DSN", ""),
			Environment: getenv("SENTRY_ENVIRONMENT", "production"),
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
	if cfg.DBDriver == "postgresql" || cfg.DBDriver == "pg" {
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
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Mail.DailyLimit < 0 {
		return cfg, errors.New("DAILY_EMAIL_LIMIT must be >= 0")
	}
	if cfg.Mail.SenderDomain == "" || !strings.Contains(cfg.Mail.SenderDomain, ".") {
		return cfg, errors.New("SENDER_DOMAIN must be a domain name")
	}
	if cfg.GinMode == "release" && strings.TrimSpace(os.Getenv("MAIL_PROVIDER")) == "" {
		return cfg, errors.New("MAIL_PROVIDER must be set explicitly when GIN_MODE=release")
	}
	switch cfg.Mail.Provider {
	case "resend":
		if strings.TrimSpace(cfg.Mail.ResendAPIKey) == "" {
			return cfg, errors.New("RESEND_API_KEY must be set when MAIL_PROVIDER=resend")
		}
	case "gmail":
		if strings.TrimSpace(cfg.Mail.GmailCredsJSON) == "" || strings.TrimSpace(cfg.Mail.GmailMailbox) == "" {
			return cfg, errors.New("GMAIL_CREDENTIALS_JSON and GMAIL_MAILBOX must be set when MAIL_PROVIDER=gmail")
		}
	case "log":
	default:
		return cfg, errors.New("MAIL_PROVIDER must be one of: resend, gmail, log")
	}
	if cfg.Mail.ProviderTimeout <= 0 {
		return cfg, errors.New("PROVIDER_TIMEOUT must be > 0")
	}
	if cfg.Mail.QuotaTimezone != "" {
		if _, err := time.LoadLocation(cfg.Mail.QuotaTimezone); err != nil {
			return cfg, errors.New("QUOTA_TIMEZONE must be a valid IANA time zone")
		}
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

// QuotaLocation returns the time zone used to compute the quota day. An
// unset or unknown QuotaTimezone falls back to the server's local zone.
func (m MailConfig) QuotaLocation() *time.Location {
	if m.QuotaTimezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(m.QuotaTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// AuthEnabled reports whether identity tokens are verified.
func (a AuthConfig) AuthEnabled() bool {
	return strings.TrimSpace(a.GoogleClientID) != ""
}

// defaultProvider picks resend when an API key is present and the logging
// provider otherwise, so a bare checkout boots without credentials. Release
// mode never relies on it.
func defaultProvider() string {
	if getenv("RESEND_API_KEY", "") != "" {
		return "resend"
	}
	return "log"
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
