package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// requiredEnv sets the keys without defaults.
func requiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TOKEN_SECRET", "tok-secret")
	t.Setenv("ADMIN_EMAILS", "sales@example.com, ops@example.com")
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	return path
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	return err != nil && strings.Contains(err.Error(), want)
}

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	requiredEnv(t)
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	requiredEnv(t)
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic, got: %v", r)
		}
	}()
	if cfg := MustLoad(); cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	requiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api/v1" || cfg.Quote.DownloadPath != "/downloads" {
		t.Fatalf("paths: %q %q", cfg.APIBasePath, cfg.Quote.DownloadPath)
	}
	if cfg.Quote.FingerprintSecret != "tok-secret" {
		t.Fatalf("fingerprint secret should default to token secret, got %q", cfg.Quote.FingerprintSecret)
	}
	if cfg.Quote.TokenTTL != 24*time.Hour || cfg.Quote.DedupWindow != 15*time.Second || cfg.Quote.DedupSweepInterval != time.Minute {
		t.Fatalf("quote durations: %+v", cfg.Quote)
	}
	if !reflect.DeepEqual(cfg.Mail.AdminEmails, []string{"sales@example.com", "ops@example.com"}) {
		t.Fatalf("admins: %#v", cfg.Mail.AdminEmails)
	}
	if cfg.Mail.SMTP.Host != "" || cfg.Mail.SMTP.Port != 587 || cfg.Mail.SMTP.TLS != "opportunistic" {
		t.Fatalf("smtp: %+v", cfg.Mail.SMTP)
	}
	if cfg.Security.APIKey != "" || cfg.Storage.Bucket != "" || cfg.Storage.Dir == "" {
		t.Fatalf("security/storage: %+v %+v", cfg.Security, cfg.Storage)
	}
	if got := cfg.DownloadBaseURL(); got != "http://localhost:8080/api/v1/downloads" {
		t.Fatalf("DownloadBaseURL = %q", got)
	}
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	requiredEnv(t)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("WRITE_TIMEOUT", "90") // bare seconds
	t.Setenv("GIN_MODE", "weird")
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("DOWNLOAD_PATH", "files/")
	t.Setenv("PUBLIC_BASE_URL", "https://quotes.example.com/")
	t.Setenv("FINGERPRINT_SECRET", "fp-secret")
	t.Setenv("TOKEN_TTL", "3600")
	t.Setenv("DEDUP_WINDOW", "30s")
	t.Setenv("API_KEY", "k")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_TLS", "MANDATORY")
	t.Setenv("RATE_RPS", "x") // unparsable -> default
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example ,, https://b.example ")
	t.Setenv("QUOTE_CURRENCY", "eur")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.WriteTimeout != 90*time.Second {
		t.Fatalf("server: %+v", cfg)
	}
	if cfg.GinMode != "release" || cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled {
		t.Fatalf("logging/docs: %+v", cfg)
	}
	if got := cfg.DownloadBaseURL(); got != "https://quotes.example.com/api/v2/files" {
		t.Fatalf("DownloadBaseURL = %q", got)
	}
	if cfg.Quote.FingerprintSecret != "fp-secret" || cfg.Quote.TokenTTL != time.Hour || cfg.Quote.DedupWindow != 30*time.Second {
		t.Fatalf("quote: %+v", cfg.Quote)
	}
	if cfg.Quote.Currency != "EUR" || cfg.Security.APIKey != "k" || cfg.Mail.SMTP.TLS != "mandatory" {
		t.Fatalf("misc: %+v %+v", cfg.Quote, cfg.Mail.SMTP)
	}
	if cfg.RateRPS != 1.0 {
		t.Fatalf("RATE_RPS default expected, got %v", cfg.RateRPS)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("cors: %#v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_ConfigFileBeneathEnvironment(t *testing.T) {
	writeConfigFile(t, `
port: 9090
TOKEN_SECRET: from-file
TOKEN_TTL: 2h
ADMIN_EMAILS:
  - a@example.com
  - b@example.com
SMTP_PORT: 2525
`)
	t.Setenv("PORT", "7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("environment must win, got %q", cfg.Port)
	}
	if cfg.Quote.TokenSecret != "from-file" || cfg.Quote.TokenTTL != 2*time.Hour || cfg.Mail.SMTP.Port != 2525 {
		t.Fatalf("file values not applied: %+v %+v", cfg.Quote, cfg.Mail.SMTP)
	}
	if !reflect.DeepEqual(cfg.Mail.AdminEmails, []string{"a@example.com", "b@example.com"}) {
		t.Fatalf("admins: %#v", cfg.Mail.AdminEmails)
	}
}

func TestLoad_ConfigFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
		if _, err := Load(); !containsErr(err, "read config file") {
			t.Fatalf("expected read error, got %v", err)
		}
	})
	t.Run("not a mapping", func(t *testing.T) {
		writeConfigFile(t, "- a\n- b\n")
		if _, err := Load(); !containsErr(err, "mapping") {
			t.Fatalf("expected mapping error, got %v", err)
		}
	})
	t.Run("nested mapping", func(t *testing.T) {
		writeConfigFile(t, "SMTP:\n  HOST: x\n")
		if _, err := Load(); !containsErr(err, "unsupported value") {
			t.Fatalf("expected unsupported value error, got %v", err)
		}
	})
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"PORT", "   ", "PORT must not be empty"},
		{"READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"DB_PATH", "   ", "DB_PATH must not be empty"},
		{"STORAGE_DIR", " ", "STORAGE_DIR"},
		{"TOKEN_SECRET", " ", "TOKEN_SECRET is required"},
		{"TOKEN_TTL", "0", "TOKEN_TTL"},
		{"DEDUP_WINDOW", "-1s", "DEDUP_WINDOW"},
		{"DOWNLOAD_PATH", "/", "DOWNLOAD_PATH"},
		{"PUBLIC_BASE_URL", "quotes.example.com", "PUBLIC_BASE_URL"},
		{"ADMIN_EMAILS", " , ", "ADMIN_EMAILS must list"},
		{"ADMIN_EMAILS", "not-an-address", "ADMIN_EMAILS: invalid"},
		{"MAIL_FROM", "nobody", "MAIL_FROM"},
		{"MAIL_CONCURRENCY", "0", "MAIL_CONCURRENCY"},
		{"SMTP_TLS", "starttls", "SMTP_TLS"},
		{"SMTP_PORT", "70000", "SMTP_PORT"},
		{"RATE_RPS", "-1", "RATE_RPS"},
		{"RATE_BURST", "0", "RATE_BURST"},
		{"HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			requiredEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); !containsErr(err, tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

// --- helpers ---

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"15s":   15 * time.Second,
		"1h30m": 90 * time.Minute,
		"15":    15 * time.Second,
		" 2 ":   2 * time.Second,
		"nope":  time.Minute,
	}
	for in, want := range cases {
		if got := parseDuration(in, time.Minute); got != want {
			t.Fatalf("parseDuration(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestSource_TypedGetters(t *testing.T) {
	s := source{file: fileValues{"F_INT": "7", "F_BOOL": "off", "F_FLOAT": "0.25"}}
	t.Setenv("E_INT", "9")
	t.Setenv("E_BAD", "x")

	if s.getint("E_INT", 1) != 9 || s.getint("F_INT", 1) != 7 || s.getint("E_BAD", 1) != 1 || s.getint("MISSING", 1) != 1 {
		t.Fatalf("getint")
	}
	if s.getbool("F_BOOL", true) != false || s.getbool("E_BAD", true) != true {
		t.Fatalf("getbool")
	}
	if s.getfloat("F_FLOAT", 1) != 0.25 || s.getfloat("E_BAD", 1) != 1 {
		t.Fatalf("getfloat")
	}
	t.Setenv("E_EMPTY", "")
	if s.getenv("E_EMPTY", "def") != "def" {
		t.Fatalf("empty env should fall back to default")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if splitCSV("") != nil {
		t.Fatalf("splitCSV empty should be nil")
	}
	if got := splitCSV(" a, ,b ,"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("splitCSV = %#v", got)
	}
	for in, want := range map[string]string{"": "/", "/": "/", "api": "/api", "/api/v1/": "/api/v1", " /x ": "/x"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "CONFIG_FILE", "TOKEN_SECRET", "ADMIN_EMAILS", "API_KEY", "SMTP_HOST"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}
