package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath != "/api" {
		t.Fatalf("API_BASE_PATH default expected '/api', got %q", cfg.APIBasePath)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DB.URL != "" || cfg.DB.Path != "app.db" || cfg.DB.MaxConns != 10 {
		t.Fatalf("db defaults unexpected: %+v", cfg.DB)
	}
	if cfg.Auth.TokenTTL != 7*24*time.Hour || cfg.Auth.MinPassword != 6 || cfg.Auth.EmailDomain != "" {
		t.Fatalf("auth defaults unexpected: %+v", cfg.Auth)
	}
	a := cfg.Assistant
	if a.Model != "gpt-4o-mini" || a.Temperature != 0.3 || a.HistoryWindow != 10 || a.MaxForwarded != 20 {
		t.Fatalf("assistant defaults unexpected: %+v", a)
	}
	if a.SystemPrompt != DefaultSystemPrompt || a.GuardPrompt != DefaultGuardPrompt || a.FallbackReply != "Sem resposta" {
		t.Fatalf("assistant prompt defaults unexpected")
	}
	if !reflect.DeepEqual(cfg.CORS.ProxyOrigins, []string{"http://localhost:5000"}) {
		t.Fatalf("proxy origins default unexpected: %#v", cfg.CORS.ProxyOrigins)
	}
	if cfg.Events.NatsURL != "" || cfg.Events.Subject != "support.exchanges" {
		t.Fatalf("events defaults unexpected: %+v", cfg.Events)
	}
}

func TestLoad_Success_Overrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // normalizes to "release"

	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/")

	t.Setenv("DATABASE_URL", " postgres://u:p@db:5432/app ")
	t.Setenv("DB_SSL", "true")
	t.Setenv("DB_MAX_CONNS", "4")

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("ADMIN_EMAILS", " Boss@Example.com , ops@example.com")
	t.Setenv("REGISTRATION_EMAIL_DOMAIN", " @Example.com ")

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://llm.local/v1/")
	t.Setenv("OPENAI_MODEL", "gpt-x")
	t.Setenv("OPENAI_TEMPERATURE", "0.7")
	t.Setenv("HISTORY_WINDOW", "4")
	t.Setenv("MAX_FORWARDED", "8")

	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("PROXY_ALLOWED_ORIGINS", "https://app.web.app")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	t.Setenv("NATS_URL", "nats://n:4222")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DB.URL != "postgres://u:p@db:5432/app" || !cfg.DB.SSL || cfg.DB.MaxConns != 4 {
		t.Fatalf("db unexpected: %+v", cfg.DB)
	}
	if cfg.Auth.JWTSecret != "s3cret" || cfg.Auth.TokenTTL != time.Hour || cfg.Auth.EmailDomain != "example.com" {
		t.Fatalf("auth unexpected: %+v", cfg.Auth)
	}
	if !reflect.DeepEqual(cfg.Auth.AdminEmails, []string{"boss@example.com", "ops@example.com"}) {
		t.Fatalf("admin emails unexpected: %#v", cfg.Auth.AdminEmails)
	}
	if cfg.Completion.APIKey != "sk-test" || cfg.Completion.BaseURL != "http://llm.local/v1" {
		t.Fatalf("completion unexpected: %+v", cfg.Completion)
	}
	a := cfg.Assistant
	if a.Model != "gpt-x" || a.Temperature != 0.7 || a.HistoryWindow != 4 || a.MaxForwarded != 8 {
		t.Fatalf("assistant overrides unexpected: %+v", a)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !reflect.DeepEqual(cfg.CORS.ProxyOrigins, []string{"https://app.web.app"}) {
		t.Fatalf("proxy origins unexpected: %#v", cfg.CORS.ProxyOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}
	if cfg.Events.NatsURL != "nats://n:4222" {
		t.Fatalf("events unexpected: %+v", cfg.Events)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_AssistantProfileFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assistant.toml")
	body := `
system_prompt = """
You answer questions about the billing product only.
"""
model = "gpt-4o"
history_window = 6
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("ASSISTANT_CONFIG", path)
	t.Setenv("HISTORY_WINDOW", "3") // env wins over file

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	a := cfg.Assistant
	if a.SystemPrompt != "You answer questions about the billing product only." {
		t.Fatalf("system prompt not taken from file: %q", a.SystemPrompt)
	}
	if a.Model != "gpt-4o" || a.HistoryWindow != 3 {
		t.Fatalf("profile merge unexpected: %+v", a)
	}
	if a.GuardPrompt != DefaultGuardPrompt || a.Temperature != 0.3 || a.MaxForwarded != 20 {
		t.Fatalf("absent keys should keep defaults: %+v", a)
	}
}

func TestLoadAssistantProfile_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadAssistantProfile(filepath.Join(dir, "nope.toml"), DefaultAssistantProfile()); err == nil {
			t.Fatalf("expected error for missing file")
		}
	})
	t.Run("unknown key", func(t *testing.T) {
		p := filepath.Join(dir, "bad.toml")
		_ = os.WriteFile(p, []byte("modle = \"x\"\n"), 0o600)
		_, err := LoadAssistantProfile(p, DefaultAssistantProfile())
		if err == nil || !containsErr(err, "unknown keys: modle") {
			t.Fatalf("expected unknown key error, got %v", err)
		}
	})
	t.Run("empty prompt fails validation via Load", func(t *testing.T) {
		p := filepath.Join(dir, "empty.toml")
		_ = os.WriteFile(p, []byte("system_prompt = \"  \"\n"), 0o600)
		t.Setenv("ASSISTANT_CONFIG", p)
		if _, err := Load(); err == nil || !containsErr(err, "system_prompt") {
			t.Fatalf("expected system_prompt validation error, got %v", err)
		}
	})
}

// Each case triggers exactly one validation error.
func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"invalid LOG_LEVEL", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"empty PORT via spaces", "PORT", "   ", "PORT must not be empty"},
		{"non-positive timeouts", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"max header bytes <= 0", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"empty DB_PATH", "DB_PATH", "   ", "DB_PATH must not be empty"},
		{"db max conns", "DB_MAX_CONNS", "0", "DB_MAX_CONNS"},
		{"token ttl", "TOKEN_TTL", "-1h", "TOKEN_TTL"},
		{"min password", "MIN_PASSWORD_LENGTH", "0", "MIN_PASSWORD_LENGTH"},
		{"completion timeout", "OPENAI_TIMEOUT", "0s", "OPENAI_TIMEOUT"},
		{"temperature", "OPENAI_TEMPERATURE", "3", "OPENAI_TEMPERATURE"},
		{"history window", "HISTORY_WINDOW", "-1", "HISTORY_WINDOW"},
		{"max forwarded", "MAX_FORWARDED", "1", "MAX_FORWARDED"},
		{"rate rps negative", "RATE_RPS", "-1", "RATE_RPS"},
		{"rate burst < 1", "RATE_BURST", "0", "RATE_BURST"},
		{"hsts max age negative", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"idempotency ttl", "IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL"},
		{"otel sample ratio", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected %s validation error, got: %v", tc.want, err)
			}
		})
	}

	t.Run("empty JWT secret", func(t *testing.T) {
		// getenv treats "" as unset, so only whitespace reaches validation.
		t.Setenv("JWT_SECRET", "  ")
		if _, err := Load(); err == nil || !containsErr(err, "JWT_SECRET") {
			t.Fatalf("expected JWT_SECRET validation error, got: %v", err)
		}
	})
}

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}
	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}
	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		k := "B_T_" + string(rune('a'+i))
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "false", "FALSE", " no ", "N", "off"} {
		k := "B_F_" + string(rune('a'+i))
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_JUNK", "maybe")
	if !getbool("B_JUNK", true) {
		t.Fatalf("getbool should keep default on unknown value")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: %#v", got)
	}
	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "DATABASE_URL", "OPENAI_API_KEY", "ASSISTANT_CONFIG", "NATS_URL", "API_BASE_PATH"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
