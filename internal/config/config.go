package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/clubsite/server/internal/validation"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Site           SiteConfig           `yaml:"site"`
	Database       DatabaseConfig       `yaml:"database"`
	Auth           AuthConfig           `yaml:"auth"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	AdminBootstrap AdminBootstrapConfig `yaml:"admin_bootstrap"`
	Logging        LoggingConfig        `yaml:"logging"`
	Tracing        TracingConfig        `yaml:"tracing"`
	Email          EmailConfig          `yaml:"email"`
	CMS            CMSConfig            `yaml:"cms"`
	Storage        StorageConfig        `yaml:"storage"`
	Jobs           JobsConfig           `yaml:"jobs"`
	Environment    string               `yaml:"environment"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

// SiteConfig holds presentation defaults for the public site and the admin
// date pickers.
type SiteConfig struct {
	Name     string `yaml:"name"`
	Locale   string `yaml:"locale"`
	Timezone string `yaml:"timezone"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
	MaxIdle        int    `yaml:"max_idle"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	JWTExpiry time.Duration `yaml:"jwt_expiry"`
	CSRFKey   string        `yaml:"csrf_key"`
}

type RateLimitConfig struct {
	PublicPerMinute       int      `yaml:"public_per_minute"`
	AdminPerMinute        int      `yaml:"admin_per_minute"`
	LoginPer15Minutes     int      `yaml:"login_per_15_minutes"`
	RegistrationPerMinute int      `yaml:"registration_per_minute"`
	TrustedProxyCIDRs     []string `yaml:"trusted_proxy_cidrs"`
}

type AdminBootstrapConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

type EmailConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Provider     string `yaml:"provider"` // smtp or resend
	From         string `yaml:"from"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	ResendAPIKey string `yaml:"resend_api_key"`
}

// CMSConfig points at the headless CMS query endpoint.
type CMSConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Dataset  string        `yaml:"dataset"`
	Token    string        `yaml:"token"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Backend        string `yaml:"backend"` // disk or s3
	DiskPath       string `yaml:"disk_path"`
	PublicBaseURL  string `yaml:"public_base_url"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type JobsConfig struct {
	Enabled                   bool          `yaml:"enabled"`
	ReminderSchedule          string        `yaml:"reminder_schedule"`
	ReminderLeadTime          time.Duration `yaml:"reminder_lead_time"`
	InvitationCleanupSchedule string        `yaml:"invitation_cleanup_schedule"`
	RetryEmail                int           `yaml:"retry_email"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Site: SiteConfig{
			Name:     "Kulüp",
			Locale:   "tr",
			Timezone: "Europe/Istanbul",
		},
		Database: DatabaseConfig{
			MaxConnections: 25,
			MaxIdle:        5,
		},
		Auth: AuthConfig{
			JWTExpiry: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:       60,
			AdminPerMinute:        0,
			LoginPer15Minutes:     5,
			RegistrationPerMinute: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "clubsite",
			SampleRate:  1.0,
		},
		Email: EmailConfig{
			Provider: "smtp",
			SMTPPort: 587,
		},
		CMS: CMSConfig{
			Dataset:  "production",
			CacheTTL: 5 * time.Minute,
			Timeout:  5 * time.Second,
		},
		Storage: StorageConfig{
			Backend:        "disk",
			DiskPath:       "data/uploads",
			PublicBaseURL:  "/uploads",
			S3Region:       "eu-central-1",
			MaxUploadBytes: 10 << 20,
		},
		Jobs: JobsConfig{
			Enabled:                   true,
			ReminderSchedule:          "0 8 * * *",
			ReminderLeadTime:          24 * time.Hour,
			InvitationCleanupSchedule: "30 3 * * *",
			RetryEmail:                5,
		},
		Environment: "development",
	}
}

// Load reads configuration from the environment (and a .env file when present).
func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile layers configuration: defaults, then the optional YAML file at
// path, then environment variables.
func LoadFile(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("SERVER_BASE_URL", cfg.Server.BaseURL)

	cfg.Site.Name = getEnv("SITE_NAME", cfg.Site.Name)
	cfg.Site.Locale = getEnv("SITE_LOCALE", cfg.Site.Locale)
	cfg.Site.Timezone = getEnv("SITE_TIMEZONE", cfg.Site.Timezone)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.MaxIdle = getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", cfg.Database.MaxIdle)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTExpiry = getEnvDuration("JWT_EXPIRY", cfg.Auth.JWTExpiry)
	cfg.Auth.CSRFKey = getEnv("CSRF_KEY", cfg.Auth.CSRFKey)

	cfg.RateLimit.PublicPerMinute = getEnvInt("RATE_LIMIT_PUBLIC", cfg.RateLimit.PublicPerMinute)
	cfg.RateLimit.AdminPerMinute = getEnvInt("RATE_LIMIT_ADMIN", cfg.RateLimit.AdminPerMinute)
	cfg.RateLimit.LoginPer15Minutes = getEnvInt("RATE_LIMIT_LOGIN", cfg.RateLimit.LoginPer15Minutes)
	cfg.RateLimit.RegistrationPerMinute = getEnvInt("RATE_LIMIT_REGISTRATION", cfg.RateLimit.RegistrationPerMinute)
	cfg.RateLimit.TrustedProxyCIDRs = getEnvList("TRUSTED_PROXY_CIDRS", cfg.RateLimit.TrustedProxyCIDRs)

	cfg.AdminBootstrap.Username = getEnv("ADMIN_USERNAME", cfg.AdminBootstrap.Username)
	cfg.AdminBootstrap.Password = getEnv("ADMIN_PASSWORD", cfg.AdminBootstrap.Password)
	cfg.AdminBootstrap.Email = getEnv("ADMIN_EMAIL", cfg.AdminBootstrap.Email)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.Email.Enabled = getEnvBool("EMAIL_ENABLED", cfg.Email.Enabled)
	cfg.Email.Provider = getEnv("EMAIL_PROVIDER", cfg.Email.Provider)
	cfg.Email.From = getEnv("EMAIL_FROM", cfg.Email.From)
	cfg.Email.SMTPHost = getEnv("SMTP_HOST", cfg.Email.SMTPHost)
	cfg.Email.SMTPPort = getEnvInt("SMTP_PORT", cfg.Email.SMTPPort)
	cfg.Email.SMTPUser = getEnv("SMTP_USER", cfg.Email.SMTPUser)
	cfg.Email.SMTPPassword = getEnv("SMTP_PASSWORD", cfg.Email.SMTPPassword)
	cfg.Email.ResendAPIKey = getEnv("RESEND_API_KEY", cfg.Email.ResendAPIKey)

	cfg.CMS.BaseURL = getEnv("CMS_BASE_URL", cfg.CMS.BaseURL)
	cfg.CMS.Dataset = getEnv("CMS_DATASET", cfg.CMS.Dataset)
	cfg.CMS.Token = getEnv("CMS_TOKEN", cfg.CMS.Token)
	cfg.CMS.CacheTTL = getEnvDuration("CMS_CACHE_TTL", cfg.CMS.CacheTTL)
	cfg.CMS.Timeout = getEnvDuration("CMS_TIMEOUT", cfg.CMS.Timeout)

	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.DiskPath = getEnv("STORAGE_DISK_PATH", cfg.Storage.DiskPath)
	cfg.Storage.PublicBaseURL = getEnv("STORAGE_PUBLIC_BASE_URL", cfg.Storage.PublicBaseURL)
	cfg.Storage.S3Bucket = getEnv("S3_BUCKET", cfg.Storage.S3Bucket)
	cfg.Storage.S3Region = getEnv("S3_REGION", cfg.Storage.S3Region)
	cfg.Storage.S3Endpoint = getEnv("S3_ENDPOINT", cfg.Storage.S3Endpoint)
	cfg.Storage.S3AccessKey = getEnv("S3_ACCESS_KEY", cfg.Storage.S3AccessKey)
	cfg.Storage.S3SecretKey = getEnv("S3_SECRET_KEY", cfg.Storage.S3SecretKey)
	cfg.Storage.MaxUploadBytes = int64(getEnvInt("STORAGE_MAX_UPLOAD_BYTES", int(cfg.Storage.MaxUploadBytes)))

	cfg.Jobs.Enabled = getEnvBool("JOBS_ENABLED", cfg.Jobs.Enabled)
	cfg.Jobs.ReminderSchedule = getEnv("JOB_REMINDER_SCHEDULE", cfg.Jobs.ReminderSchedule)
	cfg.Jobs.ReminderLeadTime = getEnvDuration("JOB_REMINDER_LEAD_TIME", cfg.Jobs.ReminderLeadTime)
	cfg.Jobs.InvitationCleanupSchedule = getEnv("JOB_INVITATION_CLEANUP_SCHEDULE", cfg.Jobs.InvitationCleanupSchedule)
	cfg.Jobs.RetryEmail = getEnvInt("JOB_RETRY_EMAIL", cfg.Jobs.RetryEmail)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
}

// Validate checks required settings. Production is stricter than development.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Environment != "development" && c.Environment != "test" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters outside development")
	}
	if err := validation.ValidateBaseURL(c.Server.BaseURL, "SERVER_BASE_URL", c.IsProduction()); err != nil {
		return err
	}
	if err := validation.ValidateURL(c.CMS.BaseURL, "CMS_BASE_URL", false); err != nil {
		return err
	}
	if c.Storage.Backend != "disk" && c.Storage.Backend != "s3" {
		return fmt.Errorf("STORAGE_BACKEND must be disk or s3, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" && c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
	}
	if c.Email.Provider != "smtp" && c.Email.Provider != "resend" {
		return fmt.Errorf("EMAIL_PROVIDER must be smtp or resend, got %q", c.Email.Provider)
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		return fmt.Errorf("SITE_TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the site's time zone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction reports whether secure cookies and HSTS should be enforced.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
