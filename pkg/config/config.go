// Package config loads application configuration from YAML files with
// environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Search, History, Auth, Blob,
// Gateway, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Search   SearchConfig   `yaml:"search"`
	History  HistoryConfig  `yaml:"history"`
	Auth     AuthConfig     `yaml:"auth"`
	Blob     BlobConfig     `yaml:"blob"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	MigrateOnStart  bool          `yaml:"migrateOnStart"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SearchEvents    string `yaml:"searchEvents"`
	HistoryEvents   string `yaml:"historyEvents"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// SearchConfig holds the thresholds of the fuzzy relevance scan and the tag
// recommender, plus paging limits and store resilience settings.
type SearchConfig struct {
	MatchThreshold     float64       `yaml:"matchThreshold"`
	TagThreshold       float64       `yaml:"tagThreshold"`
	TagMaxIndex        int           `yaml:"tagMaxIndex"`
	SampleSize         int           `yaml:"sampleSize"`
	MinRecommendations int           `yaml:"minRecommendations"`
	DefaultPerPage     int           `yaml:"defaultPerPage"`
	MaxPerPage         int           `yaml:"maxPerPage"`
	ScanWorkers        int           `yaml:"scanWorkers"`
	StoreTimeout       time.Duration `yaml:"storeTimeout"`
	RetryAttempts      int           `yaml:"retryAttempts"`
	BreakerFailures    uint32        `yaml:"breakerFailures"`
	BreakerCooldown    time.Duration `yaml:"breakerCooldown"`
}

// HistoryConfig controls how search and browse history weights accumulate.
// MaxKeys of zero leaves the per-user history unbounded.
type HistoryConfig struct {
	SearchWeight int `yaml:"searchWeight"`
	BrowseWeight int `yaml:"browseWeight"`
	MaxKeys      int `yaml:"maxKeys"`
	TopTerms     int `yaml:"topTerms"`
}

// AuthConfig holds access-token verification and request rate limiting.
type AuthConfig struct {
	AccessSecret       string        `yaml:"accessSecret"`
	Issuer             string        `yaml:"issuer"`
	AccessTTL          time.Duration `yaml:"accessTTL"`
	Leeway             time.Duration `yaml:"leeway"`
	RateLimitPerMinute int           `yaml:"rateLimitPerMinute"`
}

// BlobConfig locates the product image store.
type BlobConfig struct {
	Dir          string `yaml:"dir"`
	BaseURL      string `yaml:"baseUrl"`
	MaxImageSize int64  `yaml:"maxImageSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls request span recording.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// GatewayConfig holds the storefront gateway port, the searcher upstream and
// the origins allowed by CORS.
type GatewayConfig struct {
	Port           int      `yaml:"port"`
	SearcherURL    string   `yaml:"searcherUrl"`
	AnalyticsURL   string   `yaml:"analyticsUrl"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Default returns the built-in configuration without reading a file or the
// environment.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "buyit",
			User:            "buyit",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "buyit-group",
			Topics: KafkaTopics{
				SearchEvents:    "search-events",
				HistoryEvents:   "history-events",
				CacheInvalidate: "cache-invalidate",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Search: SearchConfig{
			MatchThreshold:     85,
			TagThreshold:       80,
			TagMaxIndex:        1,
			SampleSize:         4,
			MinRecommendations: 4,
			DefaultPerPage:     8,
			MaxPerPage:         100,
			ScanWorkers:        4,
			StoreTimeout:       5 * time.Second,
			RetryAttempts:      3,
			BreakerFailures:    5,
			BreakerCooldown:    30 * time.Second,
		},
		History: HistoryConfig{
			SearchWeight: 5,
			BrowseWeight: 1,
			MaxKeys:      0,
			TopTerms:     5,
		},
		Auth: AuthConfig{
			Issuer:             "buyit-identity",
			AccessTTL:          15 * time.Minute,
			Leeway:             30 * time.Second,
			RateLimitPerMinute: 600,
		},
		Blob: BlobConfig{
			Dir:          "./data/images",
			BaseURL:      "http://localhost:8082/images",
			MaxImageSize: 5 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Gateway: GatewayConfig{
			Port:           8082,
			SearcherURL:    "http://localhost:8080",
			AnalyticsURL:   "http://localhost:8083",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// applyEnvOverrides reads BI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setInt("BI_SERVER_PORT", &cfg.Server.Port)
	setString("BI_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("BI_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("BI_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("BI_POSTGRES_USER", &cfg.Postgres.User)
	setString("BI_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("BI_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	if v := os.Getenv("BI_POSTGRES_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.MigrateOnStart = b
		}
	}
	if v := os.Getenv("BI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString("BI_REDIS_ADDR", &cfg.Redis.Addr)
	setString("BI_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("BI_HISTORY_MAX_KEYS", &cfg.History.MaxKeys)
	setString("BI_AUTH_ACCESS_SECRET", &cfg.Auth.AccessSecret)
	setString("BI_AUTH_ISSUER", &cfg.Auth.Issuer)
	setString("BI_BLOB_DIR", &cfg.Blob.Dir)
	setString("BI_BLOB_BASE_URL", &cfg.Blob.BaseURL)
	setString("BI_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("BI_LOGGING_FORMAT", &cfg.Logging.Format)
	setInt("BI_GATEWAY_PORT", &cfg.Gateway.Port)
	setString("BI_GATEWAY_SEARCHER_URL", &cfg.Gateway.SearcherURL)
	setString("BI_GATEWAY_ANALYTICS_URL", &cfg.Gateway.AnalyticsURL)
	if v := os.Getenv("BI_GATEWAY_ALLOWED_ORIGINS"); v != "" {
		cfg.Gateway.AllowedOrigins = strings.Split(v, ",")
	}
}
