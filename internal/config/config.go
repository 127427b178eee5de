// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, database selection, authentication, the assistant profile used for
// completions, rate limiting, CORS and observability.
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
	AllowedOrigins []string // API routes; empty allows any origin
	ProxyOrigins   []string // companion proxy route allow-list
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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DatabaseConfig selects and tunes the relational store.
type DatabaseConfig struct {
	URL      string // DATABASE_URL; Postgres when set
	SSL      bool   // DB_SSL; forces sslmode=require on the Postgres DSN
	MaxConns int    // DB_MAX_CONNS
	Path     string // DB_PATH; SQLite file used when URL is empty
}

// AuthConfig holds session token and account policy settings.
type AuthConfig struct {
	JWTSecret   string
	TokenTTL    time.Duration
	AdminEmails []string
	// EmailDomain restricts registration to addresses ending in "@"+EmailDomain.
	EmailDomain string
	MinPassword int
}

// IdentityConfig configures verification of identity tokens accepted by the
// companion completion proxy.
type IdentityConfig struct {
	PublicKeyFile string
	Issuer        string
	Audience      string
}

// CompletionConfig locates the external chat-completion API.
type CompletionConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// EventsConfig enables publication of committed exchanges to NATS JetStream.
type EventsConfig struct {
	NatsURL string
	Stream  string
	Subject string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DB         DatabaseConfig
	Auth       AuthConfig
	Identity   IdentityConfig
	Completion CompletionConfig
	Assistant  AssistantProfile
	Events     EventsConfig

	// KnowledgePath optionally points at a Markdown support manual whose
	// excerpts are appended to the system instruction.
	KnowledgePath string

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

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

// Load reads configuration from environment variables, applies defaults,
// merges the optional assistant profile file, normalizes values, and
// validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		// completions can take a while; leave room for the upstream call
		WriteTimeout:   getdur("WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:    getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:        strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		DB: DatabaseConfig{
			URL:      strings.TrimSpace(getenv("DATABASE_URL", "")),
			SSL:      getbool("DB_SSL", false),
			MaxConns: getint("DB_MAX_CONNS", 10),
			Path:     getenv("DB_PATH", "app.db"),
		},

		Auth: AuthConfig{
			JWTSecret:   getenv("JWT_SECRET", "change-me"),
			TokenTTL:    getdur("TOKEN_TTL", 7*24*time.Hour),
			AdminEmails: splitCSV(getenv("ADMIN_EMAILS", "")),
			EmailDomain: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(getenv("REGISTRATION_EMAIL_DOMAIN", "")), "@")),
			MinPassword: getint("MIN_PASSWORD_LENGTH", 6),
		},

		Identity: IdentityConfig{
			PublicKeyFile: getenv("IDENTITY_PUBLIC_KEY_FILE", ""),
			Issuer:        getenv("IDENTITY_ISSUER", ""),
			Audience:      getenv("IDENTITY_AUDIENCE", ""),
		},

		Completion: CompletionConfig{
			APIKey:  strings.TrimSpace(getenv("OPENAI_API_KEY", "")),
			BaseURL: strings.TrimRight(getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
			Timeout: getdur("OPENAI_TIMEOUT", 60*time.Second),
		},

		Assistant: DefaultAssistantProfile(),

		Events: EventsConfig{
			NatsURL: getenv("NATS_URL", ""),
			Stream:  getenv("NATS_STREAM", "SUPPORT_EXCHANGES"),
			Subject: getenv("NATS_SUBJECT", "support.exchanges"),
		},

		KnowledgePath: getenv("KNOWLEDGE_PATH", ""),

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
			ProxyOrigins:   splitCSV(getenv("PROXY_ALLOWED_ORIGINS", "http://localhost:5000")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "support-chat-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if path := strings.TrimSpace(getenv("ASSISTANT_CONFIG", "")); path != "" {
		prof, err := LoadAssistantProfile(path, cfg.Assistant)
		if err != nil {
			return cfg, err
		}
		cfg.Assistant = prof
	}
	// Env overrides win over the profile file.
	cfg.Assistant.Model = getenv("OPENAI_MODEL", cfg.Assistant.Model)
	cfg.Assistant.Temperature = getfloat("OPENAI_TEMPERATURE", cfg.Assistant.Temperature)
	cfg.Assistant.HistoryWindow = getint("HISTORY_WINDOW", cfg.Assistant.HistoryWindow)
	cfg.Assistant.MaxForwarded = getint("MAX_FORWARDED", cfg.Assistant.MaxForwarded)

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	for i, e := range cfg.Auth.AdminEmails {
		cfg.Auth.AdminEmails[i] = strings.ToLower(e)
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
	if cfg.DB.URL == "" && strings.TrimSpace(cfg.DB.Path) == "" {
		return cfg, errors.New("DB_PATH must not be empty when DATABASE_URL is unset")
	}
	if cfg.DB.MaxConns < 1 {
		return cfg, errors.New("DB_MAX_CONNS must be >= 1")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return cfg, errors.New("JWT_SECRET must not be empty")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return cfg, errors.New("TOKEN_TTL must be > 0")
	}
	if cfg.Auth.MinPassword < 1 {
		return cfg, errors.New("MIN_PASSWORD_LENGTH must be >= 1")
	}
	if cfg.Completion.Timeout <= 0 {
		return cfg, errors.New("OPENAI_TIMEOUT must be > 0")
	}
	if err := cfg.Assistant.Validate(); err != nil {
		return cfg, err
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

// ---- helpers ----

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
