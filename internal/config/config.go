// Package config provides application configuration loaded from environment
// variables with defaults and validation. An optional YAML file named by
// CONFIG_FILE supplies values beneath the environment: a key set in both
// places takes the environment value.
//
// The file is a flat mapping of the same keys the environment uses:
//
//	PORT: 8080
//	TOKEN_TTL: 12h
//	ADMIN_EMAILS:
//	  - sales@example.com
//	  - ops@example.com
package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tbourn/go-quote-backend/internal/mailer"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
	APIKey     string // API_KEY; empty disables the shared-secret check
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StorageConfig selects where generated PDFs are kept. A bucket wins over
// the local directory.
type StorageConfig struct {
	Dir    string // STORAGE_DIR
	Bucket string // STORAGE_BUCKET
	Prefix string // STORAGE_PREFIX
}

// MailConfig holds sender identity, recipients and SMTP transport. An empty
// SMTP host selects the logging sender.
type MailConfig struct {
	From        string   // MAIL_FROM
	AdminEmails []string // ADMIN_EMAILS (CSV)
	Concurrency int      // MAIL_CONCURRENCY
	SMTP        mailer.SMTPConfig
}

// QuoteConfig holds deduplication, token and rendering settings.
type QuoteConfig struct {
	TokenSecret        string        // TOKEN_SECRET
	FingerprintSecret  string        // FINGERPRINT_SECRET, defaults to TOKEN_SECRET
	TokenTTL           time.Duration // TOKEN_TTL
	DedupWindow        time.Duration // DEDUP_WINDOW
	DedupSweepInterval time.Duration // DEDUP_SWEEP_INTERVAL
	DownloadPath       string        // DOWNLOAD_PATH, relative to API_BASE_PATH
	PublicBaseURL      string        // PUBLIC_BASE_URL, scheme and host of links
	Title              string        // QUOTE_TITLE
	Currency           string        // QUOTE_CURRENCY
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 60s; submissions render and mail inline
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath  string // SQLite audit database
	Storage StorageConfig
	Mail    MailConfig
	Quote   QuoteConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// DownloadBaseURL is the absolute prefix of download links, e.g.
// https://quotes.example.com/api/v1/downloads.
func (c Config) DownloadBaseURL() string {
	base := c.APIBasePath
	if base == "/" {
		base = ""
	}
	return strings.TrimRight(c.Quote.PublicBaseURL, "/") + base + c.Quote.DownloadPath
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from the environment and the optional CONFIG_FILE,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	src := source{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}
	return src.load()
}

func (s source) load() (Config, error) {
	tokenSecret := s.getenv("TOKEN_SECRET", "")
	cfg := Config{
		// Server
		Port:              s.getenv("PORT", "8080"),
		ReadTimeout:       s.getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: s.getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      s.getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       s.getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    s.getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(s.getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(s.getenv("LOG_LEVEL", "info")),
		LogPretty:      s.getbool("LOG_PRETTY", false),
		SwaggerEnabled: s.getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(s.getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: s.getenv("DB_PATH", "quotes.db"),
		Storage: StorageConfig{
			Dir:    s.getenv("STORAGE_DIR", "data/quotes"),
			Bucket: s.getenv("STORAGE_BUCKET", ""),
			Prefix: s.getenv("STORAGE_PREFIX", "quotes"),
		},
		Mail: MailConfig{
			From:        s.getenv("MAIL_FROM", "quotes@localhost"),
			AdminEmails: splitCSV(s.getenv("ADMIN_EMAILS", "")),
			Concurrency: s.getint("MAIL_CONCURRENCY", 4),
			SMTP: mailer.SMTPConfig{
				Host:     s.getenv("SMTP_HOST", ""),
				Port:     s.getint("SMTP_PORT", 587),
				Username: s.getenv("SMTP_USERNAME", ""),
				Password: s.getenv("SMTP_PASSWORD", ""),
				TLS:      strings.ToLower(s.getenv("SMTP_TLS", mailer.TLSOpportunistic)),
				Timeout:  s.getdur("SMTP_TIMEOUT", 15*time.Second),
			},
		},
		Quote: QuoteConfig{
			TokenSecret:        tokenSecret,
			FingerprintSecret:  s.getenv("FINGERPRINT_SECRET", tokenSecret),
			TokenTTL:           s.getdur("TOKEN_TTL", 24*time.Hour),
			DedupWindow:        s.getdur("DEDUP_WINDOW", 15*time.Second),
			DedupSweepInterval: s.getdur("DEDUP_SWEEP_INTERVAL", 60*time.Second),
			DownloadPath:       normalizeBasePath(s.getenv("DOWNLOAD_PATH", "/downloads")),
			PublicBaseURL:      strings.TrimRight(s.getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			Title:              s.getenv("QUOTE_TITLE", "Quotation"),
			Currency:           strings.ToUpper(s.getenv("QUOTE_CURRENCY", "USD")),
		},

		// Rate limiting
		RateRPS:   s.getfloat("RATE_RPS", 1.0),
		RateBurst: s.getint("RATE_BURST", 5),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(s.getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: s.getbool("ENABLE_HSTS", false),
			HSTSMaxAge: s.getdur("HSTS_MAX_AGE", 180*24*time.Hour),
			APIKey:     s.getenv("API_KEY", ""),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     s.getbool("OTEL_ENABLED", false),
			Endpoint:    s.getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    s.getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: s.getenv("OTEL_SERVICE_NAME", "go-quote-backend"),
			SampleRatio: s.getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
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

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH must not be empty")
	}
	if cfg.Storage.Bucket == "" && strings.TrimSpace(cfg.Storage.Dir) == "" {
		return errors.New("one of STORAGE_DIR or STORAGE_BUCKET is required")
	}
	if strings.TrimSpace(cfg.Quote.TokenSecret) == "" {
		return errors.New("TOKEN_SECRET is required")
	}
	if cfg.Quote.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be > 0")
	}
	if cfg.Quote.DedupWindow <= 0 || cfg.Quote.DedupSweepInterval <= 0 {
		return errors.New("DEDUP_WINDOW and DEDUP_SWEEP_INTERVAL must be > 0")
	}
	if cfg.Quote.DownloadPath == "/" {
		return errors.New("DOWNLOAD_PATH must not be the root path")
	}
	if !strings.HasPrefix(cfg.Quote.PublicBaseURL, "http://") && !strings.HasPrefix(cfg.Quote.PublicBaseURL, "https://") {
		return errors.New("PUBLIC_BASE_URL must be an http(s) URL")
	}
	if len(cfg.Mail.AdminEmails) == 0 {
		return errors.New("ADMIN_EMAILS must list at least one address")
	}
	for _, a := range cfg.Mail.AdminEmails {
		if _, err := mail.ParseAddress(a); err != nil {
			return fmt.Errorf("ADMIN_EMAILS: invalid address %q", a)
		}
	}
	if _, err := mail.ParseAddress(cfg.Mail.From); err != nil {
		return fmt.Errorf("MAIL_FROM: invalid address %q", cfg.Mail.From)
	}
	if cfg.Mail.Concurrency < 1 {
		return errors.New("MAIL_CONCURRENCY must be >= 1")
	}
	switch cfg.Mail.SMTP.TLS {
	case mailer.TLSOpportunistic, mailer.TLSMandatory, mailer.TLSNone:
	default:
		return errors.New("SMTP_TLS must be one of: opportunistic, mandatory, none")
	}
	if cfg.Mail.SMTP.Port <= 0 || cfg.Mail.SMTP.Port > 65535 {
		return errors.New("SMTP_PORT must be in 1..65535")
	}
	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- sources ----

// fileValues is the decoded CONFIG_FILE. Scalars keep their literal text;
// sequences are joined with commas so list keys read like CSV env values.
type fileValues map[string]string

func (f *fileValues) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return errors.New("config file must be a mapping of KEY: value")
	}
	out := make(fileValues, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		k := strings.ToUpper(strings.TrimSpace(value.Content[i].Value))
		v := value.Content[i+1]
		switch v.Kind {
		case yaml.ScalarNode:
			out[k] = v.Value
		case yaml.SequenceNode:
			var items []string
			if err := v.Decode(&items); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			out[k] = strings.Join(items, ",")
		default:
			return fmt.Errorf("%s: unsupported value", k)
		}
	}
	*f = out
	return nil
}

func readFile(path string) (fileValues, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var f fileValues
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return f, nil
}

// source resolves a key from the environment, then the config file.
type source struct {
	file fileValues
}

func (s source) lookup(k string) (string, bool) {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v, true
	}
	if v, ok := s.file[k]; ok && v != "" {
		return v, true
	}
	return "", false
}

func (s source) getenv(k, def string) string {
	if v, ok := s.lookup(k); ok {
		return v
	}
	return def
}

func (s source) getfloat(k string, def float64) float64 {
	if v, ok := s.lookup(k); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (s source) getint(k string, def int) int {
	if v, ok := s.lookup(k); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (s source) getbool(k string, def bool) bool {
	if v, ok := s.lookup(k); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

// getdur accepts Go duration syntax ("15s", "1h30m") or bare integer seconds.
func (s source) getdur(k string, def time.Duration) time.Duration {
	if v, ok := s.lookup(k); ok {
		return parseDuration(v, def)
	}
	return def
}

func parseDuration(v string, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * time.Second
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
