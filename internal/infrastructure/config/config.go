package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// credentialKeySize is the XChaCha20-Poly1305 key length
const credentialKeySize = 32

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Auth        AuthConfig
	Marketplace MarketplaceConfig
	Credentials CredentialsConfig
	Enrichment  EnrichmentConfig
	Shipments   ShipmentsConfig
	Scheduler   SchedulerConfig
	Telemetry   TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// AuthConfig holds service-token settings for the /api/v1/returns group
type AuthConfig struct {
	Enabled  bool
	Secret   string
	Issuer   string
	Audience string
}

// MarketplaceConfig holds marketplace API and fetcher settings
type MarketplaceConfig struct {
	BaseURL           string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	Timeout           time.Duration
	PageSize          int
	MaxPages          int
	PageDelay         time.Duration
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RequestsPerSecond float64
	Burst             int
	DefaultWindow     time.Duration
}

// CredentialsConfig holds the credential store encryption key
type CredentialsConfig struct {
	// EncryptionKey is the base64-encoded 32-byte bundle key
	EncryptionKey string
}

// Key decodes the encryption key
func (c CredentialsConfig) Key() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("credentials.encryption_key is not valid base64: %w", err)
	}
	return key, nil
}

// EnrichmentConfig holds enrichment worker settings
type EnrichmentConfig struct {
	DefaultLimit int
	RecordDelay  time.Duration
	LockTTL      time.Duration
}

// ShipmentsConfig holds cache-aside shipment read settings
type ShipmentsConfig struct {
	TTL               time.Duration
	PageSize          int
	MaxPages          int
	DetailConcurrency int
}

// SchedulerConfig holds periodic sync scheduler configuration
type SchedulerConfig struct {
	Enabled       bool
	Interval      time.Duration
	Accounts      []string
	Window        time.Duration
	Workers       int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	EnrichLimit   int
	SyncLockTTL   time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only, disable in prod for security)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
	// Metrics and logs export
	MetricsInterval time.Duration // Metrics export interval (default: 60s)
	LogsEnabled     bool          // Bridge zap logs to the collector
	// Continuous profiling
	ProfilingEnabled bool   // Start the Pyroscope profiler
	ProfilingServer  string // Pyroscope server address
	SpanProfiles     bool   // Link CPU profiles to trace spans
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CLAIMSYNC_ prefix (e.g., CLAIMSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("CLAIMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Auth: AuthConfig{
			Enabled:  v.GetBool("auth.enabled"),
			Secret:   v.GetString("auth.secret"),
			Issuer:   v.GetString("auth.issuer"),
			Audience: v.GetString("auth.audience"),
		},
		Marketplace: MarketplaceConfig{
			BaseURL:           v.GetString("marketplace.base_url"),
			TokenURL:          v.GetString("marketplace.token_url"),
			ClientID:          v.GetString("marketplace.client_id"),
			ClientSecret:      v.GetString("marketplace.client_secret"),
			Timeout:           v.GetDuration("marketplace.timeout"),
			PageSize:          v.GetInt("marketplace.page_size"),
			MaxPages:          v.GetInt("marketplace.max_pages"),
			PageDelay:         v.GetDuration("marketplace.page_delay"),
			RetryAttempts:     v.GetInt("marketplace.retry_attempts"),
			RetryBaseDelay:    v.GetDuration("marketplace.retry_base_delay"),
			RequestsPerSecond: v.GetFloat64("marketplace.requests_per_second"),
			Burst:             v.GetInt("marketplace.burst"),
			DefaultWindow:     v.GetDuration("marketplace.default_window"),
		},
		Credentials: CredentialsConfig{
			EncryptionKey: v.GetString("credentials.encryption_key"),
		},
		Enrichment: EnrichmentConfig{
			DefaultLimit: v.GetInt("enrichment.default_limit"),
			RecordDelay:  v.GetDuration("enrichment.record_delay"),
			LockTTL:      v.GetDuration("enrichment.lock_ttl"),
		},
		Shipments: ShipmentsConfig{
			TTL:               v.GetDuration("shipments.ttl"),
			PageSize:          v.GetInt("shipments.page_size"),
			MaxPages:          v.GetInt("shipments.max_pages"),
			DetailConcurrency: v.GetInt("shipments.detail_concurrency"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			Interval:      v.GetDuration("scheduler.interval"),
			Accounts:      v.GetStringSlice("scheduler.accounts"),
			Window:        v.GetDuration("scheduler.window"),
			Workers:       v.GetInt("scheduler.workers"),
			JobTimeout:    v.GetDuration("scheduler.job_timeout"),
			RetryAttempts: v.GetInt("scheduler.retry_attempts"),
			RetryDelay:    v.GetDuration("scheduler.retry_delay"),
			EnrichLimit:   v.GetInt("scheduler.enrich_limit"),
			SyncLockTTL:   v.GetDuration("scheduler.sync_lock_ttl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilingServer:   v.GetString("telemetry.profiling_server"),
			SpanProfiles:      v.GetBool("telemetry.span_profiles"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "claimsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "claimsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	// Sync and enrichment requests run for minutes.
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 10 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// No default CORS origin: cross-origin calls stay disabled until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "claimsync"
	}
	if cfg.Auth.Audience == "" {
		cfg.Auth.Audience = "claimsync"
	}
	if cfg.Marketplace.BaseURL == "" {
		cfg.Marketplace.BaseURL = "https://api.mercadolibre.com"
	}
	if cfg.Marketplace.Timeout == 0 {
		cfg.Marketplace.Timeout = 30 * time.Second
	}
	if cfg.Marketplace.PageSize == 0 {
		cfg.Marketplace.PageSize = 50
	}
	if cfg.Marketplace.MaxPages == 0 {
		cfg.Marketplace.MaxPages = 100
	}
	if cfg.Marketplace.PageDelay == 0 {
		cfg.Marketplace.PageDelay = 200 * time.Millisecond
	}
	if cfg.Marketplace.RetryAttempts == 0 {
		cfg.Marketplace.RetryAttempts = 3
	}
	if cfg.Marketplace.RetryBaseDelay == 0 {
		cfg.Marketplace.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.Marketplace.RequestsPerSecond == 0 {
		cfg.Marketplace.RequestsPerSecond = 10
	}
	if cfg.Marketplace.Burst == 0 {
		cfg.Marketplace.Burst = 5
	}
	if cfg.Marketplace.DefaultWindow == 0 {
		cfg.Marketplace.DefaultWindow = 30 * 24 * time.Hour
	}
	if cfg.Enrichment.DefaultLimit == 0 {
		cfg.Enrichment.DefaultLimit = 50
	}
	if cfg.Enrichment.RecordDelay == 0 {
		cfg.Enrichment.RecordDelay = 300 * time.Millisecond
	}
	if cfg.Enrichment.LockTTL == 0 {
		cfg.Enrichment.LockTTL = 30 * time.Minute
	}
	if cfg.Shipments.TTL == 0 {
		cfg.Shipments.TTL = 15 * time.Minute
	}
	if cfg.Shipments.PageSize == 0 {
		cfg.Shipments.PageSize = 50
	}
	if cfg.Shipments.MaxPages == 0 {
		cfg.Shipments.MaxPages = 10
	}
	if cfg.Shipments.DetailConcurrency == 0 {
		cfg.Shipments.DetailConcurrency = 5
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = 15 * time.Minute
	}
	if cfg.Scheduler.Window == 0 {
		cfg.Scheduler.Window = 72 * time.Hour
	}
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = 2
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 5 * time.Minute
	}
	if cfg.Scheduler.EnrichLimit == 0 {
		cfg.Scheduler.EnrichLimit = 50
	}
	if cfg.Scheduler.SyncLockTTL == 0 {
		cfg.Scheduler.SyncLockTTL = time.Hour
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "claimsync"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Marketplace.PageSize < 1 || c.Marketplace.PageSize > 200 {
		return fmt.Errorf("marketplace.page_size must be between 1 and 200, got %d", c.Marketplace.PageSize)
	}
	if c.Marketplace.MaxPages < 1 {
		return fmt.Errorf("marketplace.max_pages must be positive")
	}
	if c.Marketplace.RequestsPerSecond < 0 {
		return fmt.Errorf("marketplace.requests_per_second cannot be negative")
	}
	if c.Shipments.DetailConcurrency < 1 {
		return fmt.Errorf("shipments.detail_concurrency must be positive")
	}
	if c.Scheduler.Enabled && len(c.Scheduler.Accounts) == 0 {
		return fmt.Errorf("scheduler.accounts is required when the scheduler is enabled")
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required when auth is enabled")
	}
	if c.Credentials.EncryptionKey != "" {
		key, err := c.Credentials.Key()
		if err != nil {
			return err
		}
		if len(key) != credentialKeySize {
			return fmt.Errorf("credentials.encryption_key must decode to %d bytes, got %d", credentialKeySize, len(key))
		}
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Credentials.EncryptionKey == "" {
			return fmt.Errorf("credentials.encryption_key is required in production")
		}
		if c.Marketplace.ClientID == "" || c.Marketplace.ClientSecret == "" {
			return fmt.Errorf("marketplace.client_id and marketplace.client_secret are required in production")
		}
		if !c.Auth.Enabled {
			return fmt.Errorf("auth.enabled must be true in production")
		}
		if len(c.Auth.Secret) < 32 {
			return fmt.Errorf("auth.secret must be at least 32 characters in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingServer == "" {
		return fmt.Errorf("telemetry.profiling_server is required when profiling is enabled")
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
